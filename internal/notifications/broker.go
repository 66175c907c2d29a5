package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corpalert/corpalert-backend/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

// Broker carries envelopes to every API instance.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
}

type publisher interface {
	Publish(ctx context.Context, channel string, payload any) (int64, error)
}

type subscriber interface {
	Subscribe(ctx context.Context, channel string) (*goredis.PubSub, error)
}

// RedisBroker publishes envelopes on a Redis pub/sub channel.
type RedisBroker struct {
	client  publisher
	channel string
}

func NewRedisBroker(client publisher, channel string) *RedisBroker {
	return &RedisBroker{client: client, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if _, err := b.client.Publish(ctx, b.channel, body); err != nil {
		return fmt.Errorf("publish %s: %w", env.Room, err)
	}
	return nil
}

// LocalBroker hands envelopes straight to an in-process hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.hub.Deliver(env)
	return nil
}

// Relay feeds envelopes from the Redis channel into the local hub.
type Relay struct {
	client  subscriber
	channel string
	hub     *Hub
	logg    *logger.Logger
}

func NewRelay(client subscriber, channel string, hub *Hub, logg *logger.Logger) *Relay {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Relay{client: client, channel: channel, hub: hub, logg: logg}
}

// Run subscribes and delivers until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.client.Subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	defer sub.Close()

	r.logg.Info(r.logg.WithField(ctx, "channel", r.channel), "notifications.relay_started")
	r.consume(ctx, sub.Channel())
	return ctx.Err()
}

func (r *Relay) consume(ctx context.Context, messages <-chan *goredis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "notifications.relay_decode_failed")
				continue
			}
			r.hub.Deliver(env)
		}
	}
}
