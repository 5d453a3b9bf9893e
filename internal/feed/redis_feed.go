package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "feed:"

func channelName(table, eventType string) string {
	return channelPrefix + table + ":" + eventType
}

// RedisFeed implementa Feed y Publisher sobre Redis pub/sub. No hay
// garantias de orden ni de entrega mas alla de best-effort.
type RedisFeed struct {
	logger *zap.Logger
	client *redis.Client
}

func NewRedisFeed(logger *zap.Logger, client *redis.Client) *RedisFeed {
	return &RedisFeed{logger: logger, client: client}
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, channelName(ev.Table, ev.Type), raw).Err()
}

func (f *RedisFeed) Subscribe(table, eventType string, h Handler) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := f.client.Subscribe(ctx, channelName(table, eventType))

	// Espera la confirmacion de la suscripcion antes de devolverla.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Warn("feed event decode failed", zap.Error(err), zap.String("channel", msg.Channel))
				continue
			}
			h(ev)
		}
	}()

	return &redisSubscription{pubsub: pubsub, cancel: cancel}, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func (s *redisSubscription) Unsubscribe() {
	s.cancel()
	_ = s.pubsub.Close()
}
