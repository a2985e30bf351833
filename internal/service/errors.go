package service

import (
	"errors"

	"agilekit/internal/domain"
	"agilekit/internal/repository"

	"github.com/sirupsen/logrus"
)

var (
	ErrPermissionDenied     = domain.ErrPermissionDenied
	ErrOwnerAbsent          = domain.ErrOwnerAbsent
	ErrInvalidScale         = domain.ErrInvalidScale
	ErrInvalidState         = errors.New("invalid state for this transition")
	ErrRoomNotFound         = errors.New("room not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrIssueNotFound        = errors.New("issue not found")
	ErrNotAMember           = errors.New("not a member of this room")
	ErrSpectatorCannotVote  = errors.New("spectators cannot vote")
	ErrRoomAlreadyRevealed  = errors.New("cards have already been revealed")
	ErrInvalidTargetRole    = errors.New("invalid target role")
	ErrInvalidCard          = errors.New("invalid card")
	ErrInvalidInput         = errors.New("invalid input")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username already exists")
	ErrInternalServer       = errors.New("internal server error")
)

// businessErrors 是可以原样返回给调用者的业务错误
var businessErrors = []error{
	ErrPermissionDenied, ErrInvalidScale, ErrInvalidState, ErrRoomNotFound,
	ErrMembershipNotFound, ErrIssueNotFound, ErrNotAMember, ErrSpectatorCannotVote,
	ErrRoomAlreadyRevealed, ErrInvalidTargetRole, ErrInvalidCard, ErrInvalidInput,
	ErrAuthenticationFailed, ErrRegistrationFailed, ErrInternalServer,
}

func isBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// mapRepoError 将仓库层的错误映射到服务层定义的错误。
// 业务错误原样返回，房间不存在映射为 ErrRoomNotFound，其他错误记录日志后返回 ErrInternalServer。
func mapRepoError(logCtx *logrus.Entry, err error) error {
	if err == nil {
		return nil
	}
	if isBusinessError(err) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRoomNotFound
	}
	logCtx.WithError(err).Error("Repository error")
	return ErrInternalServer
}
