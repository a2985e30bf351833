package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// 每个连接的命令速率: 每秒 5 条，突发 10 条
const (
	commandRate  = rate.Limit(5)
	commandBurst = 10
	// 单条命令的处理超时
	commandTimeout = 5 * time.Second
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	roomID    string
	accountID string
	send      chan []byte
	limiter   *rate.Limiter
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, roomID, accountID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		roomID:    roomID,
		accountID: accountID,
		send:      make(chan []byte, 256),
		limiter:   rate.NewLimiter(commandRate, commandBurst),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logCtx() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"account_id": c.accountID, "room_id": c.roomID})
}

// ReadPump 读取客户端命令并按顺序执行。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.messageChan <- HubMessage{Type: MessageUnregister, RoomID: c.roomID, Client: c}:
		case <-time.After(1 * time.Second):
			c.logCtx().Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		c.logCtx().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logCtx().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logCtx().Debug("WebSocket connection closed normally or read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			c.logCtx().Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.handleCommand(message)
	}
}

// handleCommand 解析并执行一条命令，失败时只回复给发送者
func (c *Client) handleCommand(raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.hub.sendTo(c, OutboundMessage{Type: OutboundError, Error: "invalid command payload"})
		return
	}
	if !c.limiter.Allow() {
		c.hub.sendTo(c, OutboundMessage{Type: OutboundError, Command: cmd.Type, Error: "too many commands"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	rooms := c.hub.roomService
	var err error
	switch cmd.Type {
	case CommandVote:
		err = rooms.CastVote(ctx, c.roomID, c.accountID, cmd.Card)
	case CommandRetract:
		err = rooms.RetractVote(ctx, c.roomID, c.accountID)
	case CommandReveal:
		err = rooms.RevealCards(ctx, c.roomID, c.accountID)
	case CommandReset:
		err = rooms.ResetGame(ctx, c.roomID, c.accountID)
	case CommandCancelAutoReveal:
		err = rooms.CancelAutoReveal(ctx, c.roomID, c.accountID)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}
	if err != nil {
		c.logCtx().WithError(err).WithField("command", cmd.Type).Debug("Client command rejected")
		c.hub.sendTo(c, OutboundMessage{Type: OutboundError, Command: cmd.Type, Error: err.Error()})
	}
}

// WritePump 将消息从 send 通道写到 WebSocket 连接，并定期发送 Ping。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logCtx().Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logCtx().WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logCtx().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) RoomID() string    { return c.roomID }
func (c *Client) AccountID() string { return c.accountID }
func (c *Client) CloseConn()        { c.conn.Close() }
