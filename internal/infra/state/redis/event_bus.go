package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"agilekit/internal/repository"
)

// RedisRoomEventBus 是 RoomEventBus 接口的 Redis 实现，同时提供基于计数器的限流。
type RedisRoomEventBus struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRoomEventBus 创建 RedisRoomEventBus 实例
func NewRedisRoomEventBus(client *redis.Client, keyPrefix string) *RedisRoomEventBus {
	if client == nil {
		panic("redis client cannot be nil for RedisRoomEventBus")
	}
	if keyPrefix == "" {
		keyPrefix = "ak:" // 默认前缀 "ak:" (agilekit)
	}
	return &RedisRoomEventBus{client: client, keyPrefix: keyPrefix}
}

// --- Key Generation Helpers ---
func (r *RedisRoomEventBus) roomEventsChannel(roomID string) string {
	return fmt.Sprintf("%sroom:%s:events", r.keyPrefix, roomID)
}

func (r *RedisRoomEventBus) roomEventsPattern() string {
	return r.keyPrefix + "room:*:events"
}

func (r *RedisRoomEventBus) rateLimitKey(key string) string {
	return r.keyPrefix + "ratelimit:" + key
}

// roomIDFromChannel 从频道名中取出房间 ID
func (r *RedisRoomEventBus) roomIDFromChannel(channel string) (string, bool) {
	rest := strings.TrimPrefix(channel, r.keyPrefix+"room:")
	if rest == channel || !strings.HasSuffix(rest, ":events") {
		return "", false
	}
	id := strings.TrimSuffix(rest, ":events")
	return id, id != ""
}

// PublishRoomChanged 将房间变更发布到该房间的频道
func (r *RedisRoomEventBus) PublishRoomChanged(ctx context.Context, roomID string, reason string) error {
	channel := r.roomEventsChannel(roomID)
	payloadBytes, err := json.Marshal(repository.RoomChangedEvent{RoomID: roomID, Reason: reason, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room event for room %s: %w", roomID, err)
	}
	if err := r.client.Publish(ctx, channel, payloadBytes).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel": channel,
			"room_id": roomID,
			"reason":  reason,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish room event to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅所有房间的变更频道，对每个事件调用 handler，直到 ctx 被取消。
func (r *RedisRoomEventBus) Subscribe(ctx context.Context, handler func(repository.RoomChangedEvent)) error {
	pattern := r.roomEventsPattern()
	pubsub := r.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	// 等待订阅确认，连接失败时尽早返回
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: failed to subscribe to %s: %w", pattern, err)
	}
	logrus.WithField("pattern", pattern).Info("Subscribed to room events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event repository.RoomChangedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil || event.RoomID == "" {
				id, ok := r.roomIDFromChannel(msg.Channel)
				if !ok {
					logrus.WithField("channel", msg.Channel).Warn("redis: dropping malformed room event")
					continue
				}
				event = repository.RoomChangedEvent{RoomID: id}
			}
			handler(event)
		}
	}
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
// 窗口从第一次请求开始计时，只有计数为 1 时才设置过期时间，后续请求不会延长窗口。
func (r *RedisRoomEventBus) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to incr rate limit counter on key %s: %w", fullKey, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("redis: failed to set rate limit window on key %s: %w", fullKey, err)
		}
	}
	return count > int64(limit), nil
}
