package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Состояния строки outbox. PENDING ждёт публикации, LOCKED удерживается
// конкретным воркером; опубликованные строки удаляются.
const (
	outboxStatePending = "PENDING"
	outboxStateLocked  = "LOCKED"
)

// OutboxEvent - одна неопубликованная запись транзакционного outbox.
type OutboxEvent struct {
	EventID     uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// OutboxStore читает и сопровождает строки outbox для воркера-публикатора.
// Несколько воркеров могут работать параллельно: захват события атомарен,
// проигравший просто пропускает строку.
type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(p *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: p}
}

// FetchPending возвращает порцию неопубликованных событий в порядке создания.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	query := `
		SELECT event_id, aggregate_id, event_type, payload, created_at
		FROM outbox WHERE processing_state = $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, outboxStatePending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.EventID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over outbox rows: %w", err)
	}

	return events, nil
}

// ClaimEvent пытается захватить событие. false означает, что строку уже
// забрал другой воркер или она успела исчезнуть.
func (s *OutboxStore) ClaimEvent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox SET processing_state = $1
		WHERE event_id = $2 AND processing_state = $3`

	tag, err := s.pool.Exec(ctx, query, outboxStateLocked, eventID, outboxStatePending)
	if err != nil {
		return false, fmt.Errorf("failed to claim outbox event: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ReleaseEvent возвращает событие в очередь после неудачной публикации.
func (s *OutboxStore) ReleaseEvent(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE outbox SET processing_state = $1 WHERE event_id = $2`

	if _, err := s.pool.Exec(ctx, query, outboxStatePending, eventID); err != nil {
		return fmt.Errorf("failed to release outbox event: %w", err)
	}

	return nil
}

// DeleteEvent убирает успешно опубликованное событие.
func (s *OutboxStore) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM outbox WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to delete outbox event: %w", err)
	}

	return nil
}
