package http

import (
	"net/http"

	"agilekit/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// requireAccount 取出 Auth 中间件设置的账号 ID，缺失时直接响应 401
func requireAccount(c *gin.Context, handler string) (string, bool) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		logrus.Warnf("Handler.%s: Account ID not found in context, middleware missing or failed?", handler)
		ErrorResponse(c, http.StatusUnauthorized, "Account not authenticated")
		return "", false
	}
	return accountID, true
}

// bindJSON 绑定请求体，失败时响应 400
func bindJSON(c *gin.Context, handler string, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logrus.WithError(err).Warnf("Handler.%s: Invalid input format", handler)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return false
	}
	return true
}
