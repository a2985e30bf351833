package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Room 表示一个估点房间 (一次 planning poker 会话)。
type Room struct {
	ID             string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"size:191;not null"`
	OwnerAccountID string `gorm:"size:36;index"` // 创建者账号，用于房主离开后重新加入时收回身份

	ScaleType      ScaleType                   `gorm:"size:32;not null"`
	ScaleCards     datatypes.JSONSlice[string] `gorm:"not null"`
	ScaleIsNumeric bool

	Permissions datatypes.JSONType[RoomPermissions]

	IsGameOver         bool // true 表示已翻牌
	AutoCompleteVoting bool
	// 仅在投票中且开启自动完成时非空；回调按此时间戳判断自己是否仍然有效
	AutoRevealCountdownStartedAt *time.Time
	VotingCategorized            bool
	IsDemoRoom                   bool    `gorm:"index"`
	CurrentIssueID               *string `gorm:"size:36"`

	CreatedAt      time.Time `gorm:"autoCreateTime"`
	LastActivityAt time.Time `gorm:"index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Scale 返回房间的卡组配置
func (r *Room) Scale() VotingScale {
	return VotingScale{
		Type:      r.ScaleType,
		Cards:     append([]string(nil), r.ScaleCards...),
		IsNumeric: r.ScaleIsNumeric,
	}
}

// SetScale 写入卡组配置
func (r *Room) SetScale(s VotingScale) {
	r.ScaleType = s.Type
	r.ScaleCards = datatypes.JSONSlice[string](append([]string(nil), s.Cards...))
	r.ScaleIsNumeric = s.IsNumeric
}

// PermissionSet 返回房间权限，未设置过的字段按默认值处理
func (r *Room) PermissionSet() RoomPermissions {
	p := r.Permissions.Data()
	d := DefaultPermissions()
	if !p.RevealCards.Valid() {
		p.RevealCards = d.RevealCards
	}
	if !p.GameFlow.Valid() {
		p.GameFlow = d.GameFlow
	}
	if !p.IssueManagement.Valid() {
		p.IssueManagement = d.IssueManagement
	}
	if !p.RoomSettings.Valid() {
		p.RoomSettings = d.RoomSettings
	}
	return p
}

// SetPermissions 写入权限配置
func (r *Room) SetPermissions(p RoomPermissions) {
	r.Permissions = datatypes.NewJSONType(p)
}

// CountdownArmed 判断自动翻牌倒计时是否在进行中
func (r *Room) CountdownArmed() bool {
	return !r.IsGameOver && r.AutoRevealCountdownStartedAt != nil
}

// Phase 是由房间字段推导出的会话阶段，不单独存储。
type Phase string

const (
	PhaseVoting         Phase = "voting"
	PhaseCountdownArmed Phase = "countdown_armed"
	PhaseRevealed       Phase = "revealed"
)

// Phase 推导当前阶段
func (r *Room) Phase() Phase {
	switch {
	case r.IsGameOver:
		return PhaseRevealed
	case r.AutoRevealCountdownStartedAt != nil:
		return PhaseCountdownArmed
	default:
		return PhaseVoting
	}
}
