package http

import "github.com/gin-gonic/gin"

// Handlers 汇总所有 HTTP 处理器
type Handlers struct {
	Auth    *AuthHandler
	Rooms   *RoomHandler
	Members *MembershipHandler
	Issues  *IssueHandler
}

// RegisterRoutes 在 api 分组下注册所有 REST 路由。auth 用于需要登录的路由。
func RegisterRoutes(api *gin.RouterGroup, h Handlers, auth gin.HandlerFunc) {
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/guest", h.Auth.Guest)
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
	}

	rooms := api.Group("/rooms", auth)
	{
		rooms.POST("", h.Rooms.CreateRoom)
		rooms.GET("/:roomId", h.Rooms.GetRoom)
		rooms.POST("/:roomId/join", h.Members.JoinRoom)
		rooms.POST("/:roomId/leave", h.Members.LeaveRoom)
		rooms.PATCH("/:roomId/me", h.Members.Rename)

		rooms.POST("/:roomId/vote", h.Rooms.CastVote)
		rooms.DELETE("/:roomId/vote", h.Rooms.RetractVote)
		rooms.POST("/:roomId/reveal", h.Rooms.RevealCards)
		rooms.POST("/:roomId/reset", h.Rooms.ResetGame)
		rooms.POST("/:roomId/auto-reveal/cancel", h.Rooms.CancelAutoReveal)
		rooms.PUT("/:roomId/auto-complete", h.Rooms.ToggleAutoComplete)
		rooms.PATCH("/:roomId/settings", h.Rooms.UpdateSettings)
		rooms.PUT("/:roomId/permissions", h.Rooms.UpdatePermissions)

		rooms.DELETE("/:roomId/members/:accountId", h.Members.RemoveMember)
		rooms.POST("/:roomId/members/:accountId/promote", h.Members.PromoteToFacilitator)
		rooms.POST("/:roomId/members/:accountId/demote", h.Members.DemoteFacilitator)
		rooms.POST("/:roomId/members/:accountId/transfer-ownership", h.Members.TransferOwnership)

		rooms.GET("/:roomId/issues", h.Issues.ListIssues)
		rooms.POST("/:roomId/issues", h.Issues.CreateIssue)
		rooms.PUT("/:roomId/issues", h.Issues.ReorderIssues)
		rooms.PATCH("/:roomId/issues/:issueId", h.Issues.UpdateIssueTitle)
		rooms.PUT("/:roomId/issues/:issueId/estimate", h.Issues.UpdateIssueEstimate)
		rooms.POST("/:roomId/issues/:issueId/start", h.Issues.StartIssue)
		rooms.DELETE("/:roomId/issues/:issueId", h.Issues.DeleteIssue)
		rooms.DELETE("/:roomId/current-issue", h.Issues.ClearCurrentIssue)
	}

	api.PUT("/memberships/:membershipId/spectator", auth, h.Members.SetSpectator)
}
