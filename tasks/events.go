package tasks

import (
	"context"
	"encoding/json"

	"github.com/drewmudry/visium-api/models"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Publisher announces task status transitions to interested listeners.
type Publisher interface {
	Publish(ctx context.Context, task models.Task)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.Task) {}

// RedisPublisher fans status events out over Redis Pub/Sub.
type RedisPublisher struct {
	RDB     *redis.Client
	Channel string
	Logger  *zap.Logger
}

// NewRedisPublisher publishes on ChannelTaskStatus.
func NewRedisPublisher(rdb *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{RDB: rdb, Channel: ChannelTaskStatus, Logger: logger}
}

// Publish never fails the caller; delivery problems are only logged.
func (p *RedisPublisher) Publish(ctx context.Context, task models.Task) {
	payload, err := Marshal(NewStatusEvent(task))
	if err != nil {
		p.Logger.Error("marshal status event", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if err := p.RDB.Publish(ctx, p.Channel, payload).Err(); err != nil {
		p.Logger.Warn("publish status event", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// Subscribe delivers status events from channel to handle until ctx is done
// or the subscription closes. Malformed payloads are skipped.
func Subscribe(ctx context.Context, rdb *redis.Client, channel string, handle func(StatusEvent)) error {
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed before returning control
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			handle(event)
		}
	}
}
