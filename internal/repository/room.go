package repository

import (
	"context"
	"time"

	"agilekit/internal/domain"
)

// RoomSnapshot 是一次一致性读取得到的房间完整状态。
type RoomSnapshot struct {
	Room        domain.Room
	Memberships []domain.Membership
	Votes       []domain.Vote
	Issues      []domain.Issue
}

// RoomStore 定义了房间及其成员、投票、议题的存储操作。
type RoomStore interface {
	// CreateRoom 保存新房间。
	CreateRoom(ctx context.Context, room *domain.Room) error

	// FindRoom 根据 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindRoom(ctx context.Context, roomID string) (*domain.Room, error)

	// InRoom 在一个事务中执行 fn，事务开始时对房间行加排他锁。
	// 同一房间的所有变更都通过它串行化；fn 返回错误时事务回滚。
	// 房间不存在时返回 ErrRoomNotFound 且不调用 fn。
	InRoom(ctx context.Context, roomID string, fn func(tx RoomTx) error) error

	// Snapshot 读取房间、成员、投票和议题。
	Snapshot(ctx context.Context, roomID string) (*RoomSnapshot, error)

	// FindMembershipByID 根据成员 ID 查找成员记录 (不加锁)。
	FindMembershipByID(ctx context.Context, membershipID string) (*domain.Membership, error)

	// FindInactiveRooms 返回 LastActivityAt 早于 before 的非演示房间。
	FindInactiveRooms(ctx context.Context, before time.Time, limit int) ([]domain.Room, error)

	// DeleteRoomCascade 删除房间及其投票、成员和议题。
	DeleteRoomCascade(ctx context.Context, roomID string) error

	// FindDemoRoom 返回演示房间，不存在时返回 ErrRoomNotFound。
	FindDemoRoom(ctx context.Context) (*domain.Room, error)
}

// RoomTx 是 InRoom 回调内可用的操作，全部绑定在同一个事务和 context 上。
type RoomTx interface {
	// Room 返回事务开始时加锁读取的房间，修改后需调用 SaveRoom。
	Room() *domain.Room
	SaveRoom(room *domain.Room) error

	Memberships() ([]domain.Membership, error)
	// FindMembership 根据账号 ID 查找本房间的成员，不存在时返回 ErrMembershipNotFound。
	FindMembership(accountID string) (*domain.Membership, error)
	FindMembershipByID(membershipID string) (*domain.Membership, error)
	SaveMembership(m *domain.Membership) error
	DeleteMembership(membershipID string) error

	Votes() ([]domain.Vote, error)
	FindVote(membershipID string) (*domain.Vote, error)
	// SaveVote 按 (房间, 成员) 插入或更新投票。
	SaveVote(v *domain.Vote) error
	DeleteVotes() error
	DeleteMemberVotes(membershipID string) error

	Issues() ([]domain.Issue, error)
	FindIssue(issueID string) (*domain.Issue, error)
	SaveIssue(issue *domain.Issue) error
	DeleteIssue(issueID string) error
}
