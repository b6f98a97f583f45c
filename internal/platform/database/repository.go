package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// Ошибки репозитория, на которые реагирует HTTP-слой.
var (
	ErrNamespaceNotFound = errors.New("namespace not found")
	ErrNamespaceExists   = errors.New("namespace already exists")
)

// Типы событий, попадающих в outbox вместе с каждой записью.
const (
	EventTypeUpsert = "UPSERT"
	EventTypeDelete = "DELETE"
)

const uniqueViolationCode = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(p *pgxpool.Pool) *Repository {
	return &Repository{pool: p}
}

// CreateNamespace сохраняет новое пространство имён и событие в outbox в одной транзакции.
func (r *Repository) CreateNamespace(ctx context.Context, cfg *rc_types.NamespaceConfig) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO config_namespaces (namespace, version, payload, updated_at)
		VALUES ($1, $2, $3, $4)`
	_, err = tx.Exec(ctx, query, cfg.Namespace, cfg.Version, cfg.Payload, cfg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("namespace %s: %w", cfg.Namespace, ErrNamespaceExists)
		}

		return fmt.Errorf("failed to insert namespace config: %w", err)
	}

	if err := insertOutboxEvent(ctx, tx, cfg.Namespace, EventTypeUpsert, cfg.Payload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindNamespace возвращает текущую запись пространства имён.
func (r *Repository) FindNamespace(ctx context.Context, namespace string) (*rc_types.NamespaceConfig, error) {
	var cfg rc_types.NamespaceConfig

	query := `
		SELECT namespace, version, payload, updated_at
		FROM config_namespaces WHERE namespace = $1 LIMIT 1`

	err := r.pool.QueryRow(ctx, query, namespace).Scan(
		&cfg.Namespace, &cfg.Version, &cfg.Payload, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("namespace %s: %w", namespace, ErrNamespaceNotFound)
		}

		return nil, fmt.Errorf("failed to find namespace config: %w", err)
	}

	return &cfg, nil
}

// ListNamespaces возвращает все пространства имён в алфавитном порядке.
func (r *Repository) ListNamespaces(ctx context.Context) ([]rc_types.NamespaceConfig, error) {
	query := `
		SELECT namespace, version, payload, updated_at
		FROM config_namespaces ORDER BY namespace`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query namespaces: %w", err)
	}
	defer rows.Close()

	var configs []rc_types.NamespaceConfig
	for rows.Next() {
		var cfg rc_types.NamespaceConfig
		if err := rows.Scan(&cfg.Namespace, &cfg.Version, &cfg.Payload, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan namespace row: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over namespaces: %w", err)
	}

	return configs, nil
}

// UpdateNamespace обновляет существующую запись и событие в outbox в одной транзакции.
func (r *Repository) UpdateNamespace(ctx context.Context, cfg *rc_types.NamespaceConfig) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE config_namespaces
		SET version = $1, payload = $2, updated_at = $3
		WHERE namespace = $4`
	tag, err := tx.Exec(ctx, query, cfg.Version, cfg.Payload, cfg.UpdatedAt, cfg.Namespace)
	if err != nil {
		return fmt.Errorf("failed to update namespace config: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("namespace %s: %w", cfg.Namespace, ErrNamespaceNotFound)
	}

	if err := insertOutboxEvent(ctx, tx, cfg.Namespace, EventTypeUpsert, cfg.Payload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeleteNamespace удаляет запись и фиксирует событие удаления в outbox в одной транзакции.
func (r *Repository) DeleteNamespace(ctx context.Context, namespace string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM config_namespaces WHERE namespace = $1`, namespace)
	if err != nil {
		return fmt.Errorf("failed to execute delete on namespace: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("namespace %s: %w", namespace, ErrNamespaceNotFound)
	}

	deletePayload, err := json.Marshal(map[string]string{"namespace": namespace})
	if err != nil {
		return fmt.Errorf("failed to marshal delete event payload: %w", err)
	}

	if err := insertOutboxEvent(ctx, tx, namespace, EventTypeDelete, deletePayload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// insertOutboxEvent добавляет событие в outbox внутри уже открытой транзакции.
func insertOutboxEvent(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte) error {
	query := `
		INSERT INTO outbox (event_id, aggregate_id, event_type, payload, created_at, processing_state)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')`
	_, err := tx.Exec(ctx, query, uuid.New(), aggregateID, eventType, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}
