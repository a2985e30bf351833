package http

import (
	"net/http"

	"agilekit/internal/domain"
	"agilekit/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthHandler 封装了与账号认证相关的 HTTP 处理逻辑
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	if authService == nil {
		panic("AuthService cannot be nil for AuthHandler")
	}
	return &AuthHandler{authService: authService}
}

// AccountResponse 是返回给客户端的账号信息，不包含密码哈希
type AccountResponse struct {
	ID          string  `json:"id"`
	Username    *string `json:"username,omitempty"`
	DisplayName string  `json:"displayName"`
	IsGuest     bool    `json:"isGuest"`
}

func newAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Username: a.Username, DisplayName: a.DisplayName, IsGuest: a.IsGuest}
}

// TokenResponse 定义登录成功的响应结构体
type TokenResponse struct {
	Token   string          `json:"token"`
	Account AccountResponse `json:"account"`
}

// GuestRequest 定义匿名账号请求的结构体
type GuestRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=100"`
}

// Guest 创建匿名账号并签发 token
func (h *AuthHandler) Guest(c *gin.Context) {
	var req GuestRequest
	if !bindJSON(c, "Guest", &req) {
		return
	}
	result, err := h.authService.Guest(c.Request.Context(), req.DisplayName)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, TokenResponse{Token: result.Token, Account: newAccountResponse(result.Account)})
}

// RegisterRequest 定义注册请求的结构体
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"displayName" binding:"omitempty,max=100"`
}

// Register 处理账号注册请求
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	// 1. 绑定并验证输入 JSON
	if !bindJSON(c, "Register", &req) {
		return
	}

	// 2. 调用 Service 层处理注册逻辑
	account, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		logrus.WithField("username", req.Username).WithError(err).Warn("Handler.Register: Registration failed")
		HandleServiceError(c, err)
		return
	}

	// 3. 注册成功响应
	logrus.WithField("account_id", account.ID).Info("Handler.Register: Account registered successfully")
	SuccessResponse(c, http.StatusCreated, newAccountResponse(account))
}

// LoginRequest 定义登录请求的结构体
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Login: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: username and password required")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logrus.WithField("username", req.Username).WithError(err).Warn("Handler.Login: Login failed")
		HandleServiceError(c, err)
		return
	}

	logrus.WithField("username", req.Username).Info("Handler.Login: Account logged in successfully")
	SuccessResponse(c, http.StatusOK, TokenResponse{Token: result.Token, Account: newAccountResponse(result.Account)})
}
