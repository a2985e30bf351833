package service

import (
	"context"
	"errors"
	"time"

	"agilekit/internal/domain"
	"agilekit/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// mutation 收集事务内决定、提交后才执行的副作用
type mutation struct {
	arm      *time.Time
	armDelay time.Duration
	cancels  []time.Time
	noop     bool // 状态没有变化，不需要通知订阅者
}

// mutate 在房间事务中执行 fn，提交成功后再调度倒计时并发布变更事件。
// 副作用失败只记录日志: 过期的回调会被 ExecuteAutoReveal 的检查挡住。
func (s *RoomService) mutate(ctx context.Context, roomID, reason string, fn func(tx repository.RoomTx, m *mutation) error) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": reason})
	m := &mutation{}

	err := s.store.InRoom(ctx, roomID, func(tx repository.RoomTx) error {
		return fn(tx, m)
	})
	if err != nil {
		mapped := mapRepoError(logCtx, err)
		if mapped != ErrInternalServer {
			logCtx.WithError(err).Debug("Room mutation rejected")
		}
		return mapped
	}

	for _, startedAt := range m.cancels {
		if err := s.scheduler.Cancel(ctx, roomID, startedAt); err != nil {
			logCtx.WithError(err).Warn("Failed to cancel auto-reveal callback")
		}
	}
	if m.arm != nil {
		if err := s.scheduler.Arm(ctx, roomID, *m.arm, m.armDelay); err != nil {
			logCtx.WithError(err).Error("Failed to schedule auto-reveal callback")
		} else {
			logCtx.WithField("started_at", m.arm.UnixMilli()).Info("Auto-reveal countdown armed")
		}
	}
	if !m.noop {
		if err := s.events.PublishRoomChanged(ctx, roomID, reason); err != nil {
			logCtx.WithError(err).Warn("Failed to publish room change")
		}
	}
	return nil
}

// findMember 根据账号查找本房间成员，不存在时返回 ErrNotAMember
func findMember(tx repository.RoomTx, accountID string) (*domain.Membership, error) {
	member, err := tx.FindMembership(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotAMember
		}
		return nil, err
	}
	return member, nil
}

// findTarget 根据账号查找被操作的成员，不存在时返回 ErrMembershipNotFound
func findTarget(tx repository.RoomTx, accountID string) (*domain.Membership, error) {
	member, err := tx.FindMembership(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return member, nil
}

// authorize 读取最新的成员列表并检查调用者对 category 的权限
func authorize(tx repository.RoomTx, room *domain.Room, accountID string, category domain.PermissionCategory) (*domain.Membership, []domain.Membership, error) {
	member, err := findMember(tx, accountID)
	if err != nil {
		return nil, nil, err
	}
	members, err := tx.Memberships()
	if err != nil {
		return nil, nil, err
	}
	if err := domain.EffectivePermission(category, room.PermissionSet(), member.Role, domain.OwnerAbsent(members)); err != nil {
		return nil, nil, err
	}
	return member, members, nil
}

// completion 判断当前是否所有非观众成员都已投票
func completion(tx repository.RoomTx) (bool, error) {
	members, err := tx.Memberships()
	if err != nil {
		return false, err
	}
	votes, err := tx.Votes()
	if err != nil {
		return false, err
	}
	return domain.AllVotesIn(members, votes), nil
}

func jsonStats(stats domain.IssueStats) datatypes.JSONType[domain.IssueStats] {
	return datatypes.NewJSONType(stats)
}
