package http

import (
	"net/http"

	"agilekit/internal/service"

	"github.com/gin-gonic/gin"
)

// IssueHandler 封装了议题相关的 HTTP 处理逻辑
type IssueHandler struct {
	issueService *service.IssueService
	roomService  *service.RoomService
}

// NewIssueHandler 创建 IssueHandler 实例
func NewIssueHandler(issueService *service.IssueService, roomService *service.RoomService) *IssueHandler {
	if issueService == nil || roomService == nil {
		panic("IssueService and RoomService cannot be nil for IssueHandler")
	}
	return &IssueHandler{issueService: issueService, roomService: roomService}
}

// ListIssues 按顺序返回房间的议题
func (h *IssueHandler) ListIssues(c *gin.Context) {
	if _, ok := requireAccount(c, "ListIssues"); !ok {
		return
	}
	issues, err := h.issueService.ListIssues(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"issues": issues})
}

// CreateIssueRequest 定义创建议题请求的结构体
type CreateIssueRequest struct {
	Title string `json:"title" binding:"required"`
}

// CreateIssue 追加一个议题
func (h *IssueHandler) CreateIssue(c *gin.Context) {
	accountID, ok := requireAccount(c, "CreateIssue")
	if !ok {
		return
	}
	var req CreateIssueRequest
	if !bindJSON(c, "CreateIssue", &req) {
		return
	}
	issue, err := h.issueService.CreateIssue(c.Request.Context(), c.Param("roomId"), accountID, req.Title)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, service.NewIssueView(*issue))
}

// StartIssue 开始对议题估点
func (h *IssueHandler) StartIssue(c *gin.Context) {
	accountID, ok := requireAccount(c, "StartIssue")
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	if err := h.issueService.StartIssue(c.Request.Context(), roomID, accountID, c.Param("issueId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	respondRoom(c, h.roomService, roomID, accountID, http.StatusOK)
}

// DeleteIssue 删除议题
func (h *IssueHandler) DeleteIssue(c *gin.Context) {
	accountID, ok := requireAccount(c, "DeleteIssue")
	if !ok {
		return
	}
	if err := h.issueService.DeleteIssue(c.Request.Context(), c.Param("roomId"), accountID, c.Param("issueId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateIssueTitleRequest 定义修改议题标题请求的结构体
type UpdateIssueTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateIssueTitle 修改议题标题
func (h *IssueHandler) UpdateIssueTitle(c *gin.Context) {
	accountID, ok := requireAccount(c, "UpdateIssueTitle")
	if !ok {
		return
	}
	var req UpdateIssueTitleRequest
	if !bindJSON(c, "UpdateIssueTitle", &req) {
		return
	}
	roomID := c.Param("roomId")
	if err := h.issueService.UpdateIssueTitle(c.Request.Context(), roomID, accountID, c.Param("issueId"), req.Title); err != nil {
		HandleServiceError(c, err)
		return
	}
	respondRoom(c, h.roomService, roomID, accountID, http.StatusOK)
}

// UpdateIssueEstimateRequest 定义手动设置估点请求的结构体
type UpdateIssueEstimateRequest struct {
	Estimate string `json:"estimate" binding:"required"`
}

// UpdateIssueEstimate 手动覆盖议题的最终估点
func (h *IssueHandler) UpdateIssueEstimate(c *gin.Context) {
	accountID, ok := requireAccount(c, "UpdateIssueEstimate")
	if !ok {
		return
	}
	var req UpdateIssueEstimateRequest
	if !bindJSON(c, "UpdateIssueEstimate", &req) {
		return
	}
	roomID := c.Param("roomId")
	if err := h.issueService.UpdateIssueEstimate(c.Request.Context(), roomID, accountID, c.Param("issueId"), req.Estimate); err != nil {
		HandleServiceError(c, err)
		return
	}
	respondRoom(c, h.roomService, roomID, accountID, http.StatusOK)
}

// ReorderIssuesRequest 定义议题排序请求的结构体
type ReorderIssuesRequest struct {
	IssueIDs []string `json:"issueIds" binding:"required,min=1"`
}

// ReorderIssues 按请求顺序重排议题，返回新的议题列表
func (h *IssueHandler) ReorderIssues(c *gin.Context) {
	accountID, ok := requireAccount(c, "ReorderIssues")
	if !ok {
		return
	}
	var req ReorderIssuesRequest
	if !bindJSON(c, "ReorderIssues", &req) {
		return
	}
	roomID := c.Param("roomId")
	if err := h.issueService.ReorderIssues(c.Request.Context(), roomID, accountID, req.IssueIDs); err != nil {
		HandleServiceError(c, err)
		return
	}
	issues, err := h.issueService.ListIssues(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"issues": issues})
}

// ClearCurrentIssue 取消当前议题，回到快速投票
func (h *IssueHandler) ClearCurrentIssue(c *gin.Context) {
	accountID, ok := requireAccount(c, "ClearCurrentIssue")
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	if err := h.issueService.ClearCurrentIssue(c.Request.Context(), roomID, accountID); err != nil {
		HandleServiceError(c, err)
		return
	}
	respondRoom(c, h.roomService, roomID, accountID, http.StatusOK)
}
