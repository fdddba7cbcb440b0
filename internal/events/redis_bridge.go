package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tcmhub/internal/logger"
	"tcmhub/internal/redis"

	"github.com/google/uuid"
)

// RedisBridge mirrors local hub events onto a redis channel and replays
// events published by other instances into the local hub.
type RedisBridge struct {
	log      *logger.Logger
	client   *redis.Client
	channel  string
	instance string
	hub      *Hub

	unsubscribe func()
	done        chan struct{}
}

func NewRedisBridge(log *logger.Logger, client *redis.Client, channel string, hub *Hub) *RedisBridge {
	return &RedisBridge{
		log:      logger.OrNop(log).With("component", "RedisBridge"),
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		hub:      hub,
		done:     make(chan struct{}),
	}
}

// Start subscribes to the channel and begins forwarding in both directions.
// It returns once the subscription is confirmed; forwarding stops when ctx
// is cancelled.
func (b *RedisBridge) Start(ctx context.Context) error {
	if b.client == nil || b.hub == nil {
		return errors.New("redis bridge requires a client and a hub")
	}
	sub, err := b.client.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}

	b.unsubscribe = b.hub.Subscribe(b.publishRemote)

	go func() {
		defer close(b.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.log.Warn("drop malformed event", "error", err)
					continue
				}
				if e.Origin == "" || e.Origin == b.instance {
					continue
				}
				b.hub.Publish(e)
			}
		}
	}()
	return nil
}

func (b *RedisBridge) publishRemote(e Event) {
	if e.Origin != "" {
		return
	}
	e.Origin = b.instance
	raw, err := json.Marshal(e)
	if err != nil {
		b.log.Warn("encode event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, raw); err != nil {
		b.log.Warn("publish event", "topic", e.Topic, "error", err)
	}
}

// Close detaches from the hub and waits for the forwarder to exit. The
// context passed to Start must be cancelled first.
func (b *RedisBridge) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		<-b.done
	}
}
