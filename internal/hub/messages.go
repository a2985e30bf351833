package hub

import "agilekit/internal/service"

// 客户端可以发送的命令
const (
	CommandVote             = "vote"
	CommandRetract          = "retract"
	CommandReveal           = "reveal"
	CommandReset            = "reset"
	CommandCancelAutoReveal = "cancel_auto_reveal"
)

// 服务端推送的消息类型
const (
	OutboundRoomState  = "room_state"
	OutboundRoomClosed = "room_closed"
	OutboundError      = "error"
)

// Command 是客户端发来的一条 JSON 命令
type Command struct {
	Type string `json:"type"`
	Card string `json:"card,omitempty"`
}

// OutboundMessage 是推送给客户端的消息
type OutboundMessage struct {
	Type    string            `json:"type"`
	Room    *service.RoomView `json:"room,omitempty"`
	Command string            `json:"command,omitempty"`
	Error   string            `json:"error,omitempty"`
}
