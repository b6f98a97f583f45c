package client_sdk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConfigStore - локальное хранилище последней успешно полученной
// конфигурации. Одна запись на логическое пространство имен плюс
// служебные записи (назначения экспериментов).
//
// Реализация обязана писать атомарно: наполовину записанная конфигурация
// хуже отсутствующей.
type ConfigStore interface {
	// Save сохраняет запись целиком, фиксируя момент сохранения.
	Save(key string, data []byte, savedAt time.Time) error

	// Load возвращает запись и момент ее сохранения.
	// ok=false без ошибки - записи просто нет.
	Load(key string) (data []byte, savedAt time.Time, ok bool, err error)
}

// FileStore хранит каждую запись отдельным файлом в каталоге.
// Момент сохранения кодируется временем модификации файла, атомарность
// достигается записью во временный файл и переименованием.
type FileStore struct {
	dir string
}

// NewFileStore создает каталог кеша, если его нет.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	// Ключ попадает в имя файла: разделители путей недопустимы.
	safe := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_").Replace(key)
	return filepath.Join(s.dir, safe+".json")
}

// Save пишет запись атомарно через временный файл.
func (s *FileStore) Save(key string, data []byte, savedAt time.Time) error {
	target := s.path(key)

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Chtimes(tmpName, savedAt, savedAt); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to stamp cache file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish cache file: %w", err)
	}
	return nil
}

// Load читает запись; отсутствие файла - не ошибка.
func (s *FileStore) Load(key string) ([]byte, time.Time, bool, error) {
	target := s.path(key)

	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to stat cache file: %w", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to read cache file: %w", err)
	}
	return data, info.ModTime(), true, nil
}
