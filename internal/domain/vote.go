package domain

import "time"

// Vote 是某成员在当前轮次的投票。
// 每个 (房间, 成员) 最多一条，重置时整房间删除。
type Vote struct {
	ID           string  `gorm:"primaryKey;size:36"`
	RoomID       string  `gorm:"size:36;not null;uniqueIndex:idx_vote_room_member"`
	MembershipID string  `gorm:"size:36;not null;uniqueIndex:idx_vote_room_member"`
	CardLabel    *string `gorm:"size:32"` // nil 表示还没投
	CardValue    *float64
	CardIcon     *string   `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// HasVoted 判断是否已投出卡片
func (v *Vote) HasVoted() bool {
	return v.CardLabel != nil && *v.CardLabel != ""
}
