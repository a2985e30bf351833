package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"agilekit/internal/repository"
	"agilekit/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// 单个 goroutine 渲染并推送房间视图的超时
	pushTimeout = 5 * time.Second
)

// Hub 内部消息类型
const (
	MessageRegister   = "register"
	MessageUnregister = "unregister"
	MessageNotify     = "notify"
)

// HubMessage 定义了在 Hub 内部通道传递的消息
type HubMessage struct {
	Type   string
	RoomID string
	Client *Client // 仅用于 register/unregister
}

// RoomService 是 Hub 用到的房间操作，由 service.RoomService 实现
type RoomService interface {
	GetRoom(ctx context.Context, roomID, viewerAccountID string) (*service.RoomView, error)
	CastVote(ctx context.Context, roomID, accountID, card string) error
	RetractVote(ctx context.Context, roomID, accountID string) error
	RevealCards(ctx context.Context, roomID, accountID string) error
	ResetGame(ctx context.Context, roomID, accountID string) error
	CancelAutoReveal(ctx context.Context, roomID, accountID string) error
}

// Hub 维护活跃客户端集合，并在房间变化时向每个连接推送按查看者脱敏的房间视图。
// 推送内容总是重新读取的最新状态，所以同一房间的多次变更通知可以合并。
type Hub struct {
	messageChan chan HubMessage
	done        chan struct{}
	stopOnce    sync.Once

	// map[roomID]map[*Client]bool，只在 Run 的 goroutine 中修改
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	// 每个房间同时最多一个推送 goroutine，推送期间到达的通知标记为 dirty
	pushMu  sync.Mutex
	pushing map[string]bool
	dirty   map[string]bool

	roomService RoomService
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(roomService RoomService) *Hub {
	if roomService == nil {
		panic("RoomService cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		done:        make(chan struct{}),
		rooms:       make(map[string]map[*Client]bool),
		pushing:     make(map[string]bool),
		dirty:       make(map[string]bool),
		roomService: roomService,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行，Stop 之后返回。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case MessageRegister:
				h.registerClient(msg.Client)
			case MessageUnregister:
				h.unregisterClient(msg.Client)
			case MessageNotify:
				h.schedulePush(msg.RoomID)
			default:
				log.Warnf("Hub: Received unknown message type: %s for room %s", msg.Type, msg.RoomID)
			}
		case <-h.done:
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop 让 Run 退出并关闭所有客户端
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":    client.RoomID(),
		"account_id": client.AccountID(),
		"action":     "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[client.RoomID()]; !ok {
		h.rooms[client.RoomID()] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID()][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	// 新连接需要一份当前视图
	h.schedulePush(client.RoomID())
}

// unregisterClient 处理客户端注销逻辑。send 通道只在这里和 closeAll 中关闭。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":    client.RoomID(),
		"account_id": client.AccountID(),
		"action":     "unregisterClient",
	})

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	roomClients, ok := h.rooms[client.RoomID()]
	if !ok || !roomClients[client] {
		logCtx.Debug("Client not found during unregister")
		return
	}
	delete(roomClients, client)
	close(client.send)
	if len(roomClients) == 0 {
		delete(h.rooms, client.RoomID())
		logCtx.Debug("Room empty, removed from Hub")
	}
	logCtx.Info("Client unregistered from Hub")
}

func (h *Hub) closeAll() {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	for roomID, roomClients := range h.rooms {
		for client := range roomClients {
			close(client.send)
		}
		delete(h.rooms, roomID)
	}
}

// schedulePush 为房间启动推送，已有推送进行中时只做标记
func (h *Hub) schedulePush(roomID string) {
	h.pushMu.Lock()
	if h.pushing[roomID] {
		h.dirty[roomID] = true
		h.pushMu.Unlock()
		return
	}
	h.pushing[roomID] = true
	h.pushMu.Unlock()

	go func() {
		for {
			h.pushRoomState(roomID)

			h.pushMu.Lock()
			if h.dirty[roomID] {
				delete(h.dirty, roomID)
				h.pushMu.Unlock()
				continue
			}
			delete(h.pushing, roomID)
			h.pushMu.Unlock()
			return
		}
	}()
}

// pushRoomState 按账号渲染房间视图并发给该房间的每个连接
func (h *Hub) pushRoomState(roomID string) {
	clients := h.roomClients(roomID)
	if len(clients) == 0 {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "pushRoomState"})
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	// 同一账号的多个连接共用一份视图
	rendered := make(map[string][]byte, len(clients))
	for _, client := range clients {
		if _, ok := rendered[client.AccountID()]; ok {
			continue
		}
		view, err := h.roomService.GetRoom(ctx, roomID, client.AccountID())
		var msg OutboundMessage
		switch {
		case err == nil:
			msg = OutboundMessage{Type: OutboundRoomState, Room: view}
		case errors.Is(err, service.ErrRoomNotFound):
			msg = OutboundMessage{Type: OutboundRoomClosed}
		default:
			logCtx.WithError(err).Error("Failed to render room view")
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			logCtx.WithError(err).Error("Failed to marshal room view")
			continue
		}
		rendered[client.AccountID()] = data
	}

	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	for _, client := range clients {
		data, ok := rendered[client.AccountID()]
		if !ok || !h.rooms[roomID][client] {
			continue
		}
		select {
		case client.send <- data:
		default:
			logCtx.WithField("account_id", client.AccountID()).Warn("Client send channel full, skipping room state")
		}
	}
	logCtx.WithField("recipient_count", len(clients)).Debug("Room state pushed")
}

func (h *Hub) roomClients(roomID string) []*Client {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	return clients
}

// sendTo 向仍在注册中的客户端发送一条消息 (非阻塞)
func (h *Hub) sendTo(client *Client, msg OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("Hub: Failed to marshal outbound message")
		return
	}
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	if !h.rooms[client.RoomID()][client] {
		return
	}
	select {
	case client.send <- data:
	default:
		logrus.WithFields(logrus.Fields{"room_id": client.RoomID(), "account_id": client.AccountID()}).
			Warn("Client send channel full, dropping message")
	}
}

// --- 公共方法 ---

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// Notify 请求向房间的所有连接推送最新视图
func (h *Hub) Notify(roomID string) bool {
	return h.QueueMessage(HubMessage{Type: MessageNotify, RoomID: roomID})
}

// HandleRoomChanged 是事件订阅的回调，只处理本实例有连接的房间
func (h *Hub) HandleRoomChanged(event repository.RoomChangedEvent) {
	if h.ClientCount(event.RoomID) == 0 {
		return
	}
	h.Notify(event.RoomID)
}

// ClientCount 返回房间当前的连接数
func (h *Hub) ClientCount(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}
