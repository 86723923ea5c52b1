package events

import (
	"context"
	"encoding/json"
	"fmt"

	"dovakin0007.com/notebook-grpc/internal/models"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notebook:"

// RedisBus shares change events between server replicas through Redis
// pub/sub, one channel per notebook.
type RedisBus struct {
	rdb    *redis.Client
	logger hclog.Logger
}

func NewRedisBus(ctx context.Context, addr string, logger hclog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RedisBus{rdb: rdb, logger: logger}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev models.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+ev.NotebookID, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, notebookID string) (<-chan models.ChangeEvent, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, channelPrefix+notebookID)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", notebookID, err)
	}

	out := make(chan models.ChangeEvent, subscriberBuffer)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev models.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed change event", "notebook", notebookID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
