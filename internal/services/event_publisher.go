package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ispdesk/backend/internal/models"
)

// LedgerEvent announces committed ledger changes to downstream consumers.
type LedgerEvent struct {
	Type          string               `json:"type"`
	CorrelationID string               `json:"correlation_id"`
	Entries       []models.LedgerEntry `json:"entries"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

const (
	EventEntriesSettled  = "entries.settled"
	EventPaymentPending  = "payment.pending_verification"
	EventPaymentApproved = "payment.approved"
	EventPaymentRejected = "payment.rejected"
	EventEntriesReversed = "entries.reversed"
)

type EventPublisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
}

type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, LedgerEvent) error { return nil }

// RedisEventPublisher appends events to a Redis list, the same queue shape the
// settlement workers already consume.
type RedisEventPublisher struct {
	client *redis.Client
	queue  string
}

func NewRedisEventPublisher(client *redis.Client, queue string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, queue: queue}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.RPush(ctx, p.queue, data).Err()
}
