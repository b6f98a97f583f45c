package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// NewCassandraSession открывает сессию к аналитическому кластеру Cassandra.
func NewCassandraSession(hosts []string, keyspace string) (*gocql.Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum // Уровень консистентности по умолчанию для надежности
	cluster.Timeout = 10 * time.Second
	cluster.ProtoVersion = 4 // Рекомендуется для Cassandra 4.x

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return session, nil
}

// AssignmentSink пишет события участия в экспериментах в аналитическую
// таблицу. Запись идемпотентна: повторная доставка того же события из Kafka
// просто перезапишет строку тем же содержимым.
type AssignmentSink struct {
	session *gocql.Session
}

func NewAssignmentSink(session *gocql.Session) *AssignmentSink {
	return &AssignmentSink{session: session}
}

// InsertAssignment сохраняет одно событие участия.
func (s *AssignmentSink) InsertAssignment(ctx context.Context, ev rc_types.ExposureEvent) error {
	query := `
		INSERT INTO assignments (user_id, experiment_id, namespace, variant_id, config_version, assigned_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	err := s.session.Query(query,
		ev.UserID, ev.ExperimentID, ev.Namespace, ev.VariantID, ev.ConfigVersion, ev.AssignedAt).
		WithContext(ctx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	return nil
}
