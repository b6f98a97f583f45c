package client_sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// ObjectStoreConfig - параметры подключения к объектному хранилищу снапшотов.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Namespace string
}

// ObjectStoreFetcher читает снапшоты напрямую из MinIO, минуя API выдачи.
// Вариант для бэкенд-сервисов: хранилище переживает недоступность API,
// а версия в имени объекта (UUIDv7) делает выбор последнего снапшота
// обычной лексикографической сортировкой.
type ObjectStoreFetcher struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewObjectStoreFetcher создает клиента MinIO и транспорт поверх него.
func NewObjectStoreFetcher(cfg ObjectStoreConfig, logger *zap.Logger) (*ObjectStoreFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &ObjectStoreFetcher{
		client: client,
		bucket: cfg.Bucket,
		prefix: "ns/" + cfg.Namespace + "/",
		logger: logger,
	}, nil
}

// Fetch находит и загружает самый свежий снапшот пространства имен.
// Атрибуты не участвуют: объектное хранилище отдает один документ на всех.
func (f *ObjectStoreFetcher) Fetch(ctx context.Context, _, _ rc_types.ValueMap) (rc_types.RawSnapshot, error) {
	objectCh := f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: f.prefix})

	var objectNames []string
	for object := range objectCh {
		if object.Err != nil {
			return rc_types.RawSnapshot{}, classifyObjectStoreError(object.Err)
		}
		objectNames = append(objectNames, object.Key)
	}

	if len(objectNames) == 0 {
		return rc_types.RawSnapshot{}, newFetchError(FetchServerRejected, http.StatusNotFound,
			fmt.Errorf("no snapshots under prefix %s", f.prefix))
	}

	// Версия в имени - UUIDv7, поэтому лексикографическая сортировка верна.
	sort.Strings(objectNames)
	latest := objectNames[len(objectNames)-1]
	f.logger.Debug("found latest snapshot object", zap.String("object", latest))

	obj, err := f.client.GetObject(ctx, f.bucket, latest, minio.GetObjectOptions{})
	if err != nil {
		return rc_types.RawSnapshot{}, classifyObjectStoreError(err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return rc_types.RawSnapshot{}, classifyObjectStoreError(err)
	}

	raw, err := rc_types.NewRawSnapshot(buf.Bytes())
	if err != nil {
		return rc_types.RawSnapshot{}, newFetchError(FetchMalformedResponse, 0, err)
	}
	return raw, nil
}

func classifyObjectStoreError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetch canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newFetchError(FetchTimeout, 0, err)
	}

	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return newFetchError(FetchServerRejected, resp.StatusCode, err)
	}
	return newFetchError(FetchNetworkUnavailable, 0, err)
}
