package repository

import (
	"context"
	"time"
)

// RoomChangedEvent 是房间变更通知。只携带房间 ID，订阅者收到后重新读取并按查看者脱敏。
type RoomChangedEvent struct {
	RoomID string    `json:"roomId"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// RoomEventBus 在房间状态提交后通知所有订阅者重新读取，通常由 Redis Pub/Sub 实现。
type RoomEventBus interface {
	// PublishRoomChanged 发布房间变更事件，reason 仅用于日志和调试。
	PublishRoomChanged(ctx context.Context, roomID string, reason string) error
}

// RoomEventSubscriber 接收所有房间的变更事件，阻塞直到 ctx 被取消。
type RoomEventSubscriber interface {
	Subscribe(ctx context.Context, handler func(RoomChangedEvent)) error
}
