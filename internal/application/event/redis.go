package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/docflow/pkg/common/logger"
)

// RedisPublisher decorates a Publisher with Redis pub/sub fan-out so
// external observers (webhook workers, other nodes) receive the stream.
// Channel names are per tenant: <prefix><tenant_id>.
type RedisPublisher struct {
	inner  Publisher
	client *redis.Client
	prefix string
	logger *logger.Logger
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher wraps inner, publishing every event to Redis as JSON.
func NewRedisPublisher(inner Publisher, client *redis.Client, prefix string, log *logger.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "docflow:events:"
	}
	return &RedisPublisher{
		inner:  inner,
		client: client,
		prefix: prefix,
		logger: log.With("component", "event_redis_publisher"),
	}
}

// Publish delivers the event in-process and to the tenant's Redis channel.
// Redis failures are logged, never surfaced: the event stream is advisory.
func (p *RedisPublisher) Publish(e *Event) {
	p.inner.Publish(e)

	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.prefix+e.TenantID, data).Err(); err != nil {
		p.logger.Warn(ctx, "failed to publish event to redis",
			"event_type", string(e.Type), "tenant_id", e.TenantID, "error", err)
	}
}
