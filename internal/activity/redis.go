package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"subtrans/backend/internal/logger"
)

// redisMessage is the wire shape published to the cross-instance channel.
type redisMessage struct {
	InstanceID string `json:"instanceId"`
	ConfigHash string `json:"configHash"`
	Entry      Record `json:"entry"`
}

// redisBroadcaster holds two separate connections, per spec.md §9: one
// publish-only, one subscribe-only. Subscribing puts a connection in
// read-only mode, so the two must never be shared.
type redisBroadcaster struct {
	publisher  *redis.Client
	subscriber *redis.Client
	pubsub     *redis.PubSub
	channel    string
	instanceID string
	cancel     context.CancelFunc
}

// EnableRedis wires a cross-instance broadcaster: addr is the Redis
// address, keyPrefix namespaces the pub/sub channel name (pub/sub is not
// prefixed automatically). On failure it returns the error and leaves the
// bus in single-instance mode.
func (b *Bus) EnableRedis(addr, keyPrefix string) error {
	channel := keyPrefix + "stream-activity"

	pubClient := redis.NewClient(&redis.Options{Addr: addr})
	subClient := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := subClient.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		_ = pubClient.Close()
		_ = subClient.Close()
		return err
	}

	rb := &redisBroadcaster{
		publisher:  pubClient,
		subscriber: subClient,
		pubsub:     pubsub,
		channel:    channel,
		instanceID: b.instanceID,
		cancel:     cancel,
	}
	b.broadcast = rb

	go b.receiveRedis(ctx, rb)

	logger.Info("stream activity redis broadcaster enabled", "module", "activity", "action", "connect", "resource", "redis", "result", "ok", "channel", channel)
	return nil
}

func (rb *redisBroadcaster) publish(ctx context.Context, configHash string, rec Record) {
	msg := redisMessage{InstanceID: rb.instanceID, ConfigHash: configHash, Entry: rec}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("stream activity publish marshal failed", "module", "activity", "action", "publish", "resource", "redis", "result", "failed", "error", err)
		return
	}

	// Publishing is fire-and-forget and must not block recording; the
	// timeout is scoped to the goroutine so it isn't canceled by the
	// deferred cancel of a context created in the caller's stack frame.
	go func() {
		publishCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rb.publisher.Publish(publishCtx, rb.channel, data).Err(); err != nil {
			logger.Debug("stream activity publish failed", "module", "activity", "action", "publish", "resource", "redis", "result", "failed", "error", err)
		}
	}()
}

func (rb *redisBroadcaster) close() {
	rb.cancel()
	_ = rb.pubsub.Close()
	_ = rb.publisher.Close()
	_ = rb.subscriber.Close()
}

func (b *Bus) receiveRedis(ctx context.Context, rb *redisBroadcaster) {
	ch := rb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var parsed redisMessage
			if err := json.Unmarshal([]byte(msg.Payload), &parsed); err != nil {
				logger.Debug("stream activity message unmarshal failed", "module", "activity", "action", "receive", "resource", "redis", "result", "failed", "error", err)
				continue
			}
			if parsed.InstanceID == b.instanceID {
				continue
			}
			b.applyRemote(parsed.ConfigHash, parsed.Entry)
		}
	}
}
