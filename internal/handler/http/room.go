package http

import (
	"context"
	"net/http"

	"agilekit/internal/domain"
	"agilekit/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 封装了房间状态机相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// ScaleRequest 描述卡组，custom 类型需要 cards
type ScaleRequest struct {
	Type  domain.ScaleType `json:"type"`
	Cards []string         `json:"cards"`
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name               string                  `json:"name" binding:"max=100"`
	DisplayName        string                  `json:"displayName" binding:"required,max=100"`
	VotingScale        *ScaleRequest           `json:"votingScale"`
	AutoCompleteVoting bool                    `json:"autoCompleteVoting"`
	VotingCategorized  bool                    `json:"votingCategorized"`
	Permissions        *domain.RoomPermissions `json:"permissions"`
}

// CreateRoomResponse 定义创建房间成功的响应结构体
type CreateRoomResponse struct {
	Room         *service.RoomView `json:"room"`
	MembershipID string            `json:"membershipId"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	// 1. 获取认证账号
	accountID, ok := requireAccount(c, "CreateRoom")
	if !ok {
		return
	}
	logCtx := logrus.WithField("account_id", accountID)

	// 2. 绑定请求
	var req CreateRoomRequest
	if !bindJSON(c, "CreateRoom", &req) {
		return
	}
	in := service.CreateRoomInput{
		Name:               req.Name,
		AutoCompleteVoting: req.AutoCompleteVoting,
		VotingCategorized:  req.VotingCategorized,
		Permissions:        req.Permissions,
	}
	if req.VotingScale != nil {
		in.ScaleType = req.VotingScale.Type
		in.CustomCards = req.VotingScale.Cards
	}

	// 3. 调用 Service 层创建房间
	room, owner, err := h.roomService.CreateRoom(c.Request.Context(), accountID, req.DisplayName, in)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}
	view, err := h.roomService.GetRoom(c.Request.Context(), room.ID, accountID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.WithField("room_id", room.ID).Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusCreated, CreateRoomResponse{Room: view, MembershipID: owner.ID})
}

// GetRoom 返回查看者视角的房间视图
func (h *RoomHandler) GetRoom(c *gin.Context) {
	accountID, ok := requireAccount(c, "GetRoom")
	if !ok {
		return
	}
	respondRoom(c, h.roomService, c.Param("roomId"), accountID, http.StatusOK)
}

// VoteRequest 定义投票请求的结构体
type VoteRequest struct {
	Card string `json:"card" binding:"required"`
}

// CastVote 记录或修改当前账号的投票
func (h *RoomHandler) CastVote(c *gin.Context) {
	var req VoteRequest
	if !bindJSON(c, "CastVote", &req) {
		return
	}
	h.command(c, "CastVote", func(ctx context.Context, roomID, accountID string) error {
		return h.roomService.CastVote(ctx, roomID, accountID, req.Card)
	})
}

// RetractVote 撤回当前账号的投票
func (h *RoomHandler) RetractVote(c *gin.Context) {
	h.command(c, "RetractVote", h.roomService.RetractVote)
}

// RevealCards 翻牌
func (h *RoomHandler) RevealCards(c *gin.Context) {
	h.command(c, "RevealCards", h.roomService.RevealCards)
}

// ResetGame 开始新一轮
func (h *RoomHandler) ResetGame(c *gin.Context) {
	h.command(c, "ResetGame", h.roomService.ResetGame)
}

// CancelAutoReveal 取消进行中的自动翻牌倒计时
func (h *RoomHandler) CancelAutoReveal(c *gin.Context) {
	h.command(c, "CancelAutoReveal", h.roomService.CancelAutoReveal)
}

// ToggleRequest 定义开关请求的结构体
type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ToggleAutoComplete 打开或关闭全员投票后自动翻牌
func (h *RoomHandler) ToggleAutoComplete(c *gin.Context) {
	var req ToggleRequest
	if !bindJSON(c, "ToggleAutoComplete", &req) {
		return
	}
	h.command(c, "ToggleAutoComplete", func(ctx context.Context, roomID, accountID string) error {
		return h.roomService.ToggleAutoComplete(ctx, roomID, accountID, *req.Enabled)
	})
}

// SettingsRequest 定义修改房间设置请求的结构体，省略的字段保持不变
type SettingsRequest struct {
	Name              *string       `json:"name"`
	VotingScale       *ScaleRequest `json:"votingScale"`
	VotingCategorized *bool         `json:"votingCategorized"`
}

// UpdateSettings 修改房间名称和卡组
func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if !bindJSON(c, "UpdateSettings", &req) {
		return
	}
	in := service.RoomSettingsInput{Name: req.Name, VotingCategorized: req.VotingCategorized}
	if req.VotingScale != nil {
		scaleType := req.VotingScale.Type
		in.ScaleType = &scaleType
		in.CustomCards = req.VotingScale.Cards
	}
	h.command(c, "UpdateSettings", func(ctx context.Context, roomID, accountID string) error {
		return h.roomService.UpdateSettings(ctx, roomID, accountID, in)
	})
}

// UpdatePermissions 修改权限配置
func (h *RoomHandler) UpdatePermissions(c *gin.Context) {
	var req domain.RoomPermissions
	if !bindJSON(c, "UpdatePermissions", &req) {
		return
	}
	h.command(c, "UpdatePermissions", func(ctx context.Context, roomID, accountID string) error {
		return h.roomService.UpdatePermissions(ctx, roomID, accountID, req)
	})
}

// command 执行一个房间变更，成功后返回调用者视角的最新视图
func (h *RoomHandler) command(c *gin.Context, name string, fn func(ctx context.Context, roomID, accountID string) error) {
	accountID, ok := requireAccount(c, name)
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	if err := fn(c.Request.Context(), roomID, accountID); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "account_id": accountID}).
			WithError(err).Debugf("Handler.%s: Rejected by service", name)
		HandleServiceError(c, err)
		return
	}
	respondRoom(c, h.roomService, roomID, accountID, http.StatusOK)
}

// respondRoom 读取并返回房间视图
func respondRoom(c *gin.Context, rooms *service.RoomService, roomID, accountID string, code int) {
	view, err := rooms.GetRoom(c.Request.Context(), roomID, accountID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, code, view)
}
