package http

import (
	"errors"
	"net/http"

	"agilekit/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleServiceError 把服务层的业务错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrNotAMember):
		// ErrOwnerAbsent 也是 ErrPermissionDenied
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrRoomAlreadyRevealed),
		errors.Is(err, service.ErrRegistrationFailed):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrMembershipNotFound),
		errors.Is(err, service.ErrIssueNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidCard),
		errors.Is(err, service.ErrInvalidScale), errors.Is(err, service.ErrInvalidTargetRole),
		errors.Is(err, service.ErrSpectatorCannotVote):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
