package gormpersistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agilekit/internal/domain"
	"agilekit/internal/repository"
)

// GormRoomStore 是 RoomStore 接口的 GORM 实现。
// InRoom 在事务开始时以 SELECT ... FOR UPDATE 锁住房间行，同一房间的变更因此串行执行。
type GormRoomStore struct {
	db *gorm.DB
}

// NewGormRoomStore 创建 GormRoomStore 实例
func NewGormRoomStore(db *gorm.DB) *GormRoomStore {
	if db == nil {
		panic("database connection cannot be nil for GormRoomStore")
	}
	return &GormRoomStore{db: db}
}

// CreateRoom 实现保存新房间
func (r *GormRoomStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Create(room).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (id: %s): %w", room.ID, err)
	}
	return nil
}

// FindRoom 实现根据 ID 查找房间
func (r *GormRoomStore) FindRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %s: %w", roomID, err)
	}
	return &room, nil
}

// InRoom 实现房间事务
func (r *GormRoomStore) InRoom(ctx context.Context, roomID string, fn func(tx repository.RoomTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, "id = ?", roomID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRoomNotFound
			}
			return fmt.Errorf("gorm: lock room %s: %w", roomID, err)
		}
		return fn(&gormRoomTx{db: tx, room: &room})
	})
}

// snapshotTxOptions 让房间、成员、投票和议题读自同一个快照。
// Postgres 默认的 READ COMMITTED 下每条语句各看一次提交，揭示前后可能拼出不一致的状态。
var snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// Snapshot 实现在一个只读的可重复读事务中读取房间完整状态
func (r *GormRoomStore) Snapshot(ctx context.Context, roomID string) (*repository.RoomSnapshot, error) {
	snap := &repository.RoomSnapshot{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&snap.Room, "id = ?", roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRoomNotFound
			}
			return fmt.Errorf("gorm: find room by id %s: %w", roomID, err)
		}
		t := &gormRoomTx{db: tx, room: &snap.Room}
		var err error
		if snap.Memberships, err = t.Memberships(); err != nil {
			return err
		}
		if snap.Votes, err = t.Votes(); err != nil {
			return err
		}
		snap.Issues, err = t.Issues()
		return err
	}, snapshotTxOptions)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// FindMembershipByID 实现根据成员 ID 查找成员
func (r *GormRoomStore) FindMembershipByID(ctx context.Context, membershipID string) (*domain.Membership, error) {
	var m domain.Membership
	err := r.db.WithContext(ctx).First(&m, "id = ?", membershipID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership by id %s: %w", membershipID, err)
	}
	return &m, nil
}

// FindInactiveRooms 实现按最后活动时间查找待清理的房间
func (r *GormRoomStore) FindInactiveRooms(ctx context.Context, before time.Time, limit int) ([]domain.Room, error) {
	var rooms []domain.Room
	q := r.db.WithContext(ctx).
		Where("last_activity_at < ? AND is_demo_room = ?", before, false).
		Order("last_activity_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("gorm: find inactive rooms before %s: %w", before.Format(time.RFC3339), err)
	}
	return rooms, nil
}

// DeleteRoomCascade 实现删除房间及其所有子记录
func (r *GormRoomStore) DeleteRoomCascade(ctx context.Context, roomID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&domain.Vote{}, &domain.Issue{}, &domain.Membership{}} {
			if err := tx.Where("room_id = ?", roomID).Delete(model).Error; err != nil {
				return fmt.Errorf("gorm: delete children of room %s: %w", roomID, err)
			}
		}
		result := tx.Where("id = ?", roomID).Delete(&domain.Room{})
		if result.Error != nil {
			return fmt.Errorf("gorm: delete room %s: %w", roomID, result.Error)
		}
		if result.RowsAffected == 0 {
			return repository.ErrRoomNotFound
		}
		return nil
	})
}

// FindDemoRoom 实现查找演示房间
func (r *GormRoomStore) FindDemoRoom(ctx context.Context) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("is_demo_room = ?", true).Order("created_at ASC").First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find demo room: %w", err)
	}
	return &room, nil
}

// gormRoomTx 把 RoomTx 的操作绑定到一个 *gorm.DB 事务，所有查询都限定在 room.ID 内
type gormRoomTx struct {
	db   *gorm.DB
	room *domain.Room
}

func (t *gormRoomTx) Room() *domain.Room { return t.room }

func (t *gormRoomTx) SaveRoom(room *domain.Room) error {
	if room.ID != t.room.ID {
		return fmt.Errorf("gorm: save room %s inside transaction of %s", room.ID, t.room.ID)
	}
	if err := t.db.Save(room).Error; err != nil {
		return fmt.Errorf("gorm: save room %s: %w", room.ID, err)
	}
	return nil
}

func (t *gormRoomTx) Memberships() ([]domain.Membership, error) {
	var members []domain.Membership
	err := t.db.Where("room_id = ?", t.room.ID).Order("join_order ASC, id ASC").Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list memberships of room %s: %w", t.room.ID, err)
	}
	return members, nil
}

func (t *gormRoomTx) FindMembership(accountID string) (*domain.Membership, error) {
	var m domain.Membership
	err := t.db.Where("room_id = ? AND account_id = ?", t.room.ID, accountID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership of account %s: %w", accountID, err)
	}
	return &m, nil
}

func (t *gormRoomTx) FindMembershipByID(membershipID string) (*domain.Membership, error) {
	var m domain.Membership
	err := t.db.Where("room_id = ? AND id = ?", t.room.ID, membershipID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership %s: %w", membershipID, err)
	}
	return &m, nil
}

func (t *gormRoomTx) SaveMembership(m *domain.Membership) error {
	m.RoomID = t.room.ID
	if err := t.db.Save(m).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save membership %s: %w", m.ID, err)
	}
	return nil
}

func (t *gormRoomTx) DeleteMembership(membershipID string) error {
	err := t.db.Where("room_id = ? AND id = ?", t.room.ID, membershipID).Delete(&domain.Membership{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete membership %s: %w", membershipID, err)
	}
	return nil
}

func (t *gormRoomTx) Votes() ([]domain.Vote, error) {
	var votes []domain.Vote
	err := t.db.Where("room_id = ?", t.room.ID).Order("created_at ASC, membership_id ASC").Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list votes of room %s: %w", t.room.ID, err)
	}
	return votes, nil
}

func (t *gormRoomTx) FindVote(membershipID string) (*domain.Vote, error) {
	var v domain.Vote
	err := t.db.Where("room_id = ? AND membership_id = ?", t.room.ID, membershipID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find vote of membership %s: %w", membershipID, err)
	}
	return &v, nil
}

// SaveVote 以 (room_id, membership_id) 唯一索引做 upsert
func (t *gormRoomTx) SaveVote(v *domain.Vote) error {
	v.RoomID = t.room.ID
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "membership_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"card_label", "card_value", "card_icon", "updated_at"}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert vote of membership %s: %w", v.MembershipID, err)
	}
	return nil
}

func (t *gormRoomTx) DeleteVotes() error {
	if err := t.db.Where("room_id = ?", t.room.ID).Delete(&domain.Vote{}).Error; err != nil {
		return fmt.Errorf("gorm: delete votes of room %s: %w", t.room.ID, err)
	}
	return nil
}

func (t *gormRoomTx) DeleteMemberVotes(membershipID string) error {
	err := t.db.Where("room_id = ? AND membership_id = ?", t.room.ID, membershipID).Delete(&domain.Vote{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete votes of membership %s: %w", membershipID, err)
	}
	return nil
}

func (t *gormRoomTx) Issues() ([]domain.Issue, error) {
	var issues []domain.Issue
	err := t.db.Where("room_id = ?", t.room.ID).Order("display_order ASC, sequential_id ASC").Find(&issues).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list issues of room %s: %w", t.room.ID, err)
	}
	return issues, nil
}

func (t *gormRoomTx) FindIssue(issueID string) (*domain.Issue, error) {
	var issue domain.Issue
	err := t.db.Where("room_id = ? AND id = ?", t.room.ID, issueID).First(&issue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrIssueNotFound
		}
		return nil, fmt.Errorf("gorm: find issue %s: %w", issueID, err)
	}
	return &issue, nil
}

func (t *gormRoomTx) SaveIssue(issue *domain.Issue) error {
	issue.RoomID = t.room.ID
	if err := t.db.Save(issue).Error; err != nil {
		return fmt.Errorf("gorm: save issue %s: %w", issue.ID, err)
	}
	return nil
}

func (t *gormRoomTx) DeleteIssue(issueID string) error {
	err := t.db.Where("room_id = ? AND id = ?", t.room.ID, issueID).Delete(&domain.Issue{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete issue %s: %w", issueID, err)
	}
	return nil
}
