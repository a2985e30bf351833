package http

import (
	"context"
	"net/http"

	"agilekit/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MembershipHandler 封装了成员和角色相关的 HTTP 处理逻辑
type MembershipHandler struct {
	memberService *service.MembershipService
	roomService   *service.RoomService
}

// NewMembershipHandler 创建 MembershipHandler 实例
func NewMembershipHandler(memberService *service.MembershipService, roomService *service.RoomService) *MembershipHandler {
	if memberService == nil || roomService == nil {
		panic("MembershipService and RoomService cannot be nil for MembershipHandler")
	}
	return &MembershipHandler{memberService: memberService, roomService: roomService}
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	IsSpectator bool   `json:"isSpectator"`
}

// JoinRoomResponse 定义加入房间成功的响应结构体
type JoinRoomResponse struct {
	Room         *service.RoomView `json:"room"`
	MembershipID string            `json:"membershipId"`
}

// JoinRoom 处理加入房间的请求，重复加入返回已有成员
func (h *MembershipHandler) JoinRoom(c *gin.Context) {
	// 1. 获取认证账号
	accountID, ok := requireAccount(c, "JoinRoom")
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	logCtx := logrus.WithFields(logrus.Fields{"account_id": accountID, "room_id": roomID})

	// 2. 绑定请求体
	var req JoinRoomRequest
	if !bindJSON(c, "JoinRoom", &req) {
		return
	}

	// 3. 调用 Service 层处理加入房间逻辑
	member, err := h.memberService.Join(c.Request.Context(), roomID, accountID, req.Name, req.IsSpectator)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Failed to join room via service")
		HandleServiceError(c, err)
		return
	}
	view, err := h.roomService.GetRoom(c.Request.Context(), roomID, accountID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.WithField("membership_id", member.ID).Info("Handler.JoinRoom: Account joined room successfully")
	SuccessResponse(c, http.StatusOK, JoinRoomResponse{Room: view, MembershipID: member.ID})
}

// LeaveRoom 离开房间
func (h *MembershipHandler) LeaveRoom(c *gin.Context) {
	accountID, ok := requireAccount(c, "LeaveRoom")
	if !ok {
		return
	}
	if err := h.memberService.Leave(c.Request.Context(), c.Param("roomId"), accountID); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember 把目标账号移出房间
func (h *MembershipHandler) RemoveMember(c *gin.Context) {
	h.targetCommand(c, "RemoveMember", h.memberService.RemoveMember)
}

// PromoteToFacilitator 把参与者提升为主持人
func (h *MembershipHandler) PromoteToFacilitator(c *gin.Context) {
	h.targetCommand(c, "PromoteToFacilitator", h.memberService.PromoteToFacilitator)
}

// DemoteFacilitator 把主持人降为参与者
func (h *MembershipHandler) DemoteFacilitator(c *gin.Context) {
	h.targetCommand(c, "DemoteFacilitator", h.memberService.DemoteFacilitator)
}

// TransferOwnership 把房主转交给目标账号
func (h *MembershipHandler) TransferOwnership(c *gin.Context) {
	h.targetCommand(c, "TransferOwnership", h.memberService.TransferOwnership)
}

// RenameRequest 定义修改显示名请求的结构体
type RenameRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// Rename 修改自己在房间里的显示名
func (h *MembershipHandler) Rename(c *gin.Context) {
	accountID, ok := requireAccount(c, "Rename")
	if !ok {
		return
	}
	var req RenameRequest
	if !bindJSON(c, "Rename", &req) {
		return
	}
	roomID := c.Param("roomId")
	if err := h.memberService.Rename(c.Request.Context(), roomID, accountID, req.Name); err != nil {
		HandleServiceError(c, err)
		return
	}
	respondRoom(c, h.roomService, roomID, accountID, http.StatusOK)
}

// SpectatorRequest 定义切换观众状态请求的结构体
type SpectatorRequest struct {
	IsSpectator *bool `json:"isSpectator" binding:"required"`
}

// SetSpectator 切换自己的观众状态
func (h *MembershipHandler) SetSpectator(c *gin.Context) {
	accountID, ok := requireAccount(c, "SetSpectator")
	if !ok {
		return
	}
	var req SpectatorRequest
	if !bindJSON(c, "SetSpectator", &req) {
		return
	}
	err := h.memberService.SetSpectator(c.Request.Context(), c.Param("membershipId"), accountID, *req.IsSpectator)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// targetCommand 执行针对 :accountId 的成员操作，成功后返回最新视图
func (h *MembershipHandler) targetCommand(c *gin.Context, name string, fn func(ctx context.Context, roomID, requesterAccountID, targetAccountID string) error) {
	accountID, ok := requireAccount(c, name)
	if !ok {
		return
	}
	roomID, target := c.Param("roomId"), c.Param("accountId")
	if err := fn(c.Request.Context(), roomID, accountID, target); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "account_id": accountID, "target_account_id": target}).
			WithError(err).Debugf("Handler.%s: Rejected by service", name)
		HandleServiceError(c, err)
		return
	}
	respondRoom(c, h.roomService, roomID, accountID, http.StatusOK)
}
