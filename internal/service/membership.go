package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agilekit/internal/domain"
	"agilekit/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxMemberNameLength = 64

// MembershipService 负责加入、离开、观众切换和角色管理。
// 所有变更都复用 RoomService 的房间事务，并在成员变化后重新评估倒计时。
type MembershipService struct {
	rooms *RoomService
}

// NewMembershipService 创建 MembershipService 实例
func NewMembershipService(rooms *RoomService) *MembershipService {
	if rooms == nil {
		panic("RoomService cannot be nil for MembershipService")
	}
	return &MembershipService{rooms: rooms}
}

// Join 加入房间。同一账号重复加入返回已有的成员记录。
// 房间记录的创建者在没有其他房主时重新加入，会收回 owner 角色。
func (s *MembershipService) Join(ctx context.Context, roomID, accountID, name string, isSpectator bool) (*domain.Membership, error) {
	name = strings.TrimSpace(name)
	if accountID == "" || name == "" || len([]rune(name)) > maxMemberNameLength {
		return nil, fmt.Errorf("%w: a display name of at most %d characters is required", ErrInvalidInput, maxMemberNameLength)
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "account_id": accountID, "operation": "Join"})

	var joined *domain.Membership
	err := s.rooms.mutate(ctx, roomID, "member_joined", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()

		// 1. 已经是成员则直接返回
		if existing, err := tx.FindMembership(accountID); err == nil {
			joined = existing
			m.noop = true
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		// 2. 决定角色
		members, err := tx.Memberships()
		if err != nil {
			return err
		}
		wasComplete, err := completion(tx)
		if err != nil {
			return err
		}
		role := domain.RoleParticipant
		if room.OwnerAccountID == accountID && domain.OwnerAbsent(members) {
			role = domain.RoleOwner
		}

		// 3. 保存成员并重新评估倒计时 (新的投票者会让完成度变为否)
		now := s.rooms.now()
		joined = &domain.Membership{
			ID:          uuid.NewString(),
			RoomID:      roomID,
			AccountID:   accountID,
			Name:        name,
			IsSpectator: isSpectator,
			Role:        role,
			JoinedAt:    now,
			JoinOrder:   nextJoinOrder(members),
		}
		if err := tx.SaveMembership(joined); err != nil {
			return err
		}
		room.LastActivityAt = now
		if err := s.rooms.reconcileCountdown(tx, room, m, wasComplete, false); err != nil {
			return err
		}
		return tx.SaveRoom(room)
	})
	if err != nil {
		return nil, err
	}
	logCtx.WithFields(logrus.Fields{"membership_id": joined.ID, "role": joined.Role}).Info("Member joined room")
	return joined, nil
}

// Leave 离开房间，删除自己的投票和成员记录。房主离开后房间进入房主缺席状态。
func (s *MembershipService) Leave(ctx context.Context, roomID, accountID string) error {
	return s.rooms.mutate(ctx, roomID, "member_left", func(tx repository.RoomTx, m *mutation) error {
		member, err := findMember(tx, accountID)
		if err != nil {
			return err
		}
		return s.dropMember(tx, member, m)
	})
}

// RemoveMember 移除其他成员，受 CanRemoveMember 约束。不能通过此接口移除自己。
func (s *MembershipService) RemoveMember(ctx context.Context, roomID, requesterAccountID, targetAccountID string) error {
	return s.rooms.mutate(ctx, roomID, "member_removed", func(tx repository.RoomTx, m *mutation) error {
		requester, err := findMember(tx, requesterAccountID)
		if err != nil {
			return err
		}
		target, err := findTarget(tx, targetAccountID)
		if err != nil {
			return err
		}
		if requester.ID == target.ID {
			return fmt.Errorf("%w: use leave to remove yourself", ErrInvalidTargetRole)
		}
		if !domain.CanRemoveMember(requester.Role, target.Role) {
			return fmt.Errorf("%w: %s cannot remove %s", ErrPermissionDenied, requester.Role, target.Role)
		}
		return s.dropMember(tx, target, m)
	})
}

// SetSpectator 切换自己的观众状态。成为观众时删除本轮投票。
func (s *MembershipService) SetSpectator(ctx context.Context, membershipID, requesterAccountID string, isSpectator bool) error {
	logCtx := logrus.WithFields(logrus.Fields{"membership_id": membershipID, "account_id": requesterAccountID, "operation": "SetSpectator"})
	found, err := s.rooms.store.FindMembershipByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMembershipNotFound
		}
		logCtx.WithError(err).Error("Failed to find membership")
		return ErrInternalServer
	}
	if found.AccountID != requesterAccountID {
		return fmt.Errorf("%w: spectator mode can only be changed for your own membership", ErrPermissionDenied)
	}

	err = s.rooms.mutate(ctx, found.RoomID, "spectator_changed", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		member, err := tx.FindMembershipByID(membershipID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}
		if member.IsSpectator == isSpectator {
			m.noop = true
			return nil
		}
		wasComplete, err := completion(tx)
		if err != nil {
			return err
		}
		member.IsSpectator = isSpectator
		if err := tx.SaveMembership(member); err != nil {
			return err
		}
		if isSpectator {
			if err := tx.DeleteMemberVotes(member.ID); err != nil {
				return err
			}
		}
		room.LastActivityAt = s.rooms.now()
		if err := s.rooms.reconcileCountdown(tx, room, m, wasComplete, false); err != nil {
			return err
		}
		return tx.SaveRoom(room)
	})
	if errors.Is(err, ErrRoomNotFound) {
		return ErrMembershipNotFound
	}
	return err
}

// Rename 修改自己在房间里的显示名
func (s *MembershipService) Rename(ctx context.Context, roomID, accountID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxMemberNameLength {
		return fmt.Errorf("%w: a display name of at most %d characters is required", ErrInvalidInput, maxMemberNameLength)
	}
	return s.rooms.mutate(ctx, roomID, "member_renamed", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		member, err := findMember(tx, accountID)
		if err != nil {
			return err
		}
		if member.Name == name {
			m.noop = true
			return nil
		}
		member.Name = name
		if err := tx.SaveMembership(member); err != nil {
			return err
		}
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// PromoteToFacilitator 把参与者提升为主持人
func (s *MembershipService) PromoteToFacilitator(ctx context.Context, roomID, requesterAccountID, targetAccountID string) error {
	return s.changeRole(ctx, roomID, requesterAccountID, targetAccountID, "member_promoted", func(requester, target *domain.Membership) error {
		if !domain.CanPromoteToFacilitator(requester.Role) {
			return fmt.Errorf("%w: only owners and facilitators can promote", ErrPermissionDenied)
		}
		if target.Role != domain.RoleParticipant {
			return fmt.Errorf("%w: target must be a participant", ErrInvalidTargetRole)
		}
		target.Role = domain.RoleFacilitator
		return nil
	})
}

// DemoteFacilitator 把主持人降为参与者
func (s *MembershipService) DemoteFacilitator(ctx context.Context, roomID, requesterAccountID, targetAccountID string) error {
	return s.changeRole(ctx, roomID, requesterAccountID, targetAccountID, "member_demoted", func(requester, target *domain.Membership) error {
		if !domain.CanDemoteFacilitator(requester.Role) {
			return fmt.Errorf("%w: only the owner can demote facilitators", ErrPermissionDenied)
		}
		if target.Role != domain.RoleFacilitator {
			return fmt.Errorf("%w: target must be a facilitator", ErrInvalidTargetRole)
		}
		target.Role = domain.RoleParticipant
		return nil
	})
}

// TransferOwnership 转移房主身份。房主缺席时主持人也可以转移，用于恢复房主级权限。
func (s *MembershipService) TransferOwnership(ctx context.Context, roomID, requesterAccountID, targetAccountID string) error {
	return s.rooms.mutate(ctx, roomID, "ownership_transferred", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		requester, err := findMember(tx, requesterAccountID)
		if err != nil {
			return err
		}
		members, err := tx.Memberships()
		if err != nil {
			return err
		}
		ownerAbsent := domain.OwnerAbsent(members)
		if !domain.CanTransferOwnership(requester.Role, ownerAbsent) {
			return fmt.Errorf("%w: cannot transfer ownership", ErrPermissionDenied)
		}
		target, err := findTarget(tx, targetAccountID)
		if err != nil {
			return err
		}
		if target.ID == requester.ID && !ownerAbsent {
			return fmt.Errorf("%w: already the owner", ErrInvalidTargetRole)
		}

		// 原房主降为参与者
		for i := range members {
			if members[i].Role == domain.RoleOwner && members[i].ID != target.ID {
				members[i].Role = domain.RoleParticipant
				if err := tx.SaveMembership(&members[i]); err != nil {
					return err
				}
			}
		}
		target.Role = domain.RoleOwner
		if err := tx.SaveMembership(target); err != nil {
			return err
		}
		room.OwnerAccountID = target.AccountID
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// IsOwnerAbsent 判断房间当前是否没有房主
func (s *MembershipService) IsOwnerAbsent(ctx context.Context, roomID string) (bool, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "IsOwnerAbsent"})
	snap, err := s.rooms.store.Snapshot(ctx, roomID)
	if err != nil {
		return false, mapRepoError(logCtx, err)
	}
	return domain.OwnerAbsent(snap.Memberships), nil
}

func (s *MembershipService) changeRole(ctx context.Context, roomID, requesterAccountID, targetAccountID, reason string, apply func(requester, target *domain.Membership) error) error {
	return s.rooms.mutate(ctx, roomID, reason, func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		requester, err := findMember(tx, requesterAccountID)
		if err != nil {
			return err
		}
		target, err := findTarget(tx, targetAccountID)
		if err != nil {
			return err
		}
		if err := apply(requester, target); err != nil {
			return err
		}
		if err := tx.SaveMembership(target); err != nil {
			return err
		}
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// nextJoinOrder 返回下一个加入序号。序号在房间事务内分配，同一毫秒内加入的成员也有确定顺序。
func nextJoinOrder(members []domain.Membership) int {
	next := 1
	for _, m := range members {
		if m.JoinOrder >= next {
			next = m.JoinOrder + 1
		}
	}
	return next
}

// dropMember 删除成员及其投票，并重新评估倒计时
func (s *MembershipService) dropMember(tx repository.RoomTx, member *domain.Membership, m *mutation) error {
	room := tx.Room()
	wasComplete, err := completion(tx)
	if err != nil {
		return err
	}
	if err := tx.DeleteMemberVotes(member.ID); err != nil {
		return err
	}
	if err := tx.DeleteMembership(member.ID); err != nil {
		return err
	}
	room.LastActivityAt = s.rooms.now()
	if err := s.rooms.reconcileCountdown(tx, room, m, wasComplete, false); err != nil {
		return err
	}
	return tx.SaveRoom(room)
}
