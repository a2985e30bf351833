package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied 表示调用者的角色不满足操作所需的权限级别
	ErrPermissionDenied = errors.New("permission denied")
	// ErrOwnerAbsent 表示操作需要房主，但房间当前没有房主
	ErrOwnerAbsent = fmt.Errorf("%w: room owner has left, transfer ownership to re-enable this action", ErrPermissionDenied)
)

// PermissionLevel 表示执行某类操作所需的最低级别。
type PermissionLevel string

const (
	LevelEveryone     PermissionLevel = "everyone"
	LevelFacilitators PermissionLevel = "facilitators"
	LevelOwner        PermissionLevel = "owner"
)

// Valid 判断是否是已知的权限级别
func (l PermissionLevel) Valid() bool {
	switch l {
	case LevelEveryone, LevelFacilitators, LevelOwner:
		return true
	}
	return false
}

// PermissionCategory 是受权限控制的操作类别。
type PermissionCategory string

const (
	PermRevealCards     PermissionCategory = "revealCards"
	PermGameFlow        PermissionCategory = "gameFlow"
	PermIssueManagement PermissionCategory = "issueManagement"
	PermRoomSettings    PermissionCategory = "roomSettings"
)

// RoomPermissions 是房间对四类操作的权限配置。
// 以 JSON 列存储在 rooms 表中。
type RoomPermissions struct {
	RevealCards     PermissionLevel `json:"revealCards"`
	GameFlow        PermissionLevel `json:"gameFlow"`
	IssueManagement PermissionLevel `json:"issueManagement"`
	RoomSettings    PermissionLevel `json:"roomSettings"`
}

// DefaultPermissions 返回默认配置: 所有操作对所有人开放。
func DefaultPermissions() RoomPermissions {
	return RoomPermissions{
		RevealCards:     LevelEveryone,
		GameFlow:        LevelEveryone,
		IssueManagement: LevelEveryone,
		RoomSettings:    LevelEveryone,
	}
}

// Level 返回某类操作的级别，未配置或非法值按 everyone 处理
func (p RoomPermissions) Level(category PermissionCategory) PermissionLevel {
	var level PermissionLevel
	switch category {
	case PermRevealCards:
		level = p.RevealCards
	case PermGameFlow:
		level = p.GameFlow
	case PermIssueManagement:
		level = p.IssueManagement
	case PermRoomSettings:
		level = p.RoomSettings
	}
	if !level.Valid() {
		return LevelEveryone
	}
	return level
}

// Validate 检查所有字段都是合法级别
func (p RoomPermissions) Validate() error {
	for _, l := range []PermissionLevel{p.RevealCards, p.GameFlow, p.IssueManagement, p.RoomSettings} {
		if !l.Valid() {
			return fmt.Errorf("invalid permission level %q", l)
		}
	}
	return nil
}

// RoleSatisfiesLevel 判断角色是否满足级别要求。
func RoleSatisfiesLevel(role Role, level PermissionLevel) bool {
	switch level {
	case LevelOwner:
		return role.AtLeast(RoleOwner)
	case LevelFacilitators:
		return role.AtLeast(RoleFacilitator)
	default:
		return true
	}
}

// EffectivePermission 计算调用者能否执行某类操作。
// 当级别为 owner 且房主缺席时，所有人都被拒绝，直到房主身份被转移或收回。
func EffectivePermission(category PermissionCategory, perms RoomPermissions, role Role, ownerAbsent bool) error {
	level := perms.Level(category)
	if level == LevelOwner && ownerAbsent {
		return ErrOwnerAbsent
	}
	if !RoleSatisfiesLevel(role, level) {
		return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, category, level)
	}
	return nil
}

// CanRemoveMember: 房主可以移除任何人，主持人只能移除参与者，参与者不能移除任何人。
// 自己离开走 Leave 流程，不经过这里。
func CanRemoveMember(actor, target Role) bool {
	switch actor {
	case RoleOwner:
		return true
	case RoleFacilitator:
		return target == RoleParticipant
	default:
		return false
	}
}

func CanPromoteToFacilitator(actor Role) bool {
	return actor.AtLeast(RoleFacilitator)
}

func CanDemoteFacilitator(actor Role) bool {
	return actor == RoleOwner
}

// CanTransferOwnership: 房主可以转移；房主缺席时主持人也可以。
func CanTransferOwnership(actor Role, ownerAbsent bool) bool {
	if actor == RoleOwner {
		return true
	}
	return ownerAbsent && actor == RoleFacilitator
}

func CanChangePermissions(actor Role) bool {
	return actor == RoleOwner
}
