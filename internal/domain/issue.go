package domain

import (
	"time"

	"gorm.io/datatypes"
)

type IssueStatus string

const (
	IssuePending   IssueStatus = "pending"
	IssueVoting    IssueStatus = "voting"
	IssueCompleted IssueStatus = "completed"
)

// IssueStats 是翻牌时写入议题的统计结果
type IssueStats struct {
	Average   *float64 `json:"average,omitempty"`
	Median    *float64 `json:"median,omitempty"`
	Agreement int      `json:"agreement"`
	VoteCount int      `json:"voteCount"`
}

// Issue 是房间里待估点的议题。
type Issue struct {
	ID            string      `gorm:"primaryKey;size:36"`
	RoomID        string      `gorm:"size:36;not null;index"`
	SequentialID  int         `gorm:"not null"`
	Title         string      `gorm:"size:512;not null"`
	Status        IssueStatus `gorm:"size:16;not null"`
	FinalEstimate *string     `gorm:"size:32"`
	VoteStats     datatypes.JSONType[IssueStats]
	Order         int       `gorm:"column:display_order"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}
