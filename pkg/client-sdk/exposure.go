package client_sdk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goriiin/go-config-service/internal/platform/queue"
	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// ExposurePublisher доставляет exposure-события в аналитический контур.
// Клиент публикует событие один раз на пару (пользователь, эксперимент);
// доставка не должна блокировать игровой код - Manager вызывает Publish
// из отдельной горутины.
type ExposurePublisher interface {
	Publish(ctx context.Context, event rc_types.ExposureEvent) error
}

// KafkaExposurePublisher шлет события в Kafka. Ключ сообщения - UserID,
// чтобы события одного пользователя попадали в одну партицию.
type KafkaExposurePublisher struct {
	producer *queue.Producer // Переиспользуем наш платформенный пакет
}

func NewKafkaExposurePublisher(brokers []string, topic string) *KafkaExposurePublisher {
	return &KafkaExposurePublisher{producer: queue.NewProducer(brokers, topic)}
}

func (p *KafkaExposurePublisher) Publish(ctx context.Context, event rc_types.ExposureEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal exposure event: %w", err)
	}
	return p.producer.Publish(ctx, []byte(event.UserID), payload)
}

func (p *KafkaExposurePublisher) Close() error {
	return p.producer.Close()
}
