package localstate

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"agilekit/internal/repository"
)

// subscriberBuffer 是每个订阅者的事件缓冲
const subscriberBuffer = 256

// LocalRoomEventBus 是进程内的 RoomEventBus，用于没有 Redis 的单实例部署和测试。
// 订阅者处理太慢时事件会被丢弃，订阅者下一次收到的事件仍然会触发完整的重新读取。
type LocalRoomEventBus struct {
	mu          sync.RWMutex
	subscribers map[chan repository.RoomChangedEvent]struct{}
}

// NewLocalRoomEventBus 创建 LocalRoomEventBus 实例
func NewLocalRoomEventBus() *LocalRoomEventBus {
	return &LocalRoomEventBus{subscribers: make(map[chan repository.RoomChangedEvent]struct{})}
}

// PublishRoomChanged 非阻塞地把事件分发给所有订阅者
func (b *LocalRoomEventBus) PublishRoomChanged(ctx context.Context, roomID string, reason string) error {
	event := repository.RoomChangedEvent{RoomID: roomID, Reason: reason, At: time.Now().UTC()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			logrus.WithFields(logrus.Fields{"room_id": roomID, "reason": reason}).Warn("Local event subscriber is full, dropping event")
		}
	}
	return nil
}

// Subscribe 对每个事件调用 handler，直到 ctx 被取消
func (b *LocalRoomEventBus) Subscribe(ctx context.Context, handler func(repository.RoomChangedEvent)) error {
	ch := make(chan repository.RoomChangedEvent, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-ch:
			handler(event)
		}
	}
}

// Subscribers 返回当前订阅者数量
func (b *LocalRoomEventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
