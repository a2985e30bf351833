package domain

import "time"

// Membership 把一个账号绑定到一个房间。
// 同一账号在同一房间只有一条记录 (room_id + account_id 唯一)。
type Membership struct {
	ID          string `gorm:"primaryKey;size:36"`
	RoomID      string `gorm:"size:36;not null;uniqueIndex:idx_membership_room_account"`
	AccountID   string `gorm:"size:36;not null;uniqueIndex:idx_membership_room_account"`
	Name        string `gorm:"size:191;not null"`
	IsSpectator bool
	IsBot       bool
	Role        Role      `gorm:"size:16;not null"`
	AvatarURL   string    `gorm:"size:512"`
	JoinedAt    time.Time `gorm:"autoCreateTime"`
	JoinOrder   int       `gorm:"not null;default:0"` // 房间内的加入顺序，从 1 开始
}

// CanVote 判断该成员的投票是否计入完成度和统计
func (m *Membership) CanVote() bool {
	return !m.IsSpectator
}

// OwnerAbsent 判断成员列表里是否没有任何人持有 owner 角色
func OwnerAbsent(members []Membership) bool {
	for i := range members {
		if members[i].Role == RoleOwner {
			return false
		}
	}
	return true
}
