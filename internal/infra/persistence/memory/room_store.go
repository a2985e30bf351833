// Package memory 提供进程内的存储实现，用于开发模式和测试。
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agilekit/internal/domain"
	"agilekit/internal/repository"
)

type roomData struct {
	room    domain.Room
	members map[string]domain.Membership // key: membership ID
	votes   map[string]domain.Vote       // key: membership ID
	issues  map[string]domain.Issue      // key: issue ID
}

func (d *roomData) clone() *roomData {
	c := &roomData{
		room:    cloneRoom(d.room),
		members: make(map[string]domain.Membership, len(d.members)),
		votes:   make(map[string]domain.Vote, len(d.votes)),
		issues:  make(map[string]domain.Issue, len(d.issues)),
	}
	for k, v := range d.members {
		c.members[k] = v
	}
	for k, v := range d.votes {
		c.votes[k] = v
	}
	for k, v := range d.issues {
		c.issues[k] = v
	}
	return c
}

func cloneRoom(r domain.Room) domain.Room {
	r.ScaleCards = append(r.ScaleCards[:0:0], r.ScaleCards...)
	if r.AutoRevealCountdownStartedAt != nil {
		t := *r.AutoRevealCountdownStartedAt
		r.AutoRevealCountdownStartedAt = &t
	}
	if r.CurrentIssueID != nil {
		id := *r.CurrentIssueID
		r.CurrentIssueID = &id
	}
	return r
}

// RoomStore 是 repository.RoomStore 的内存实现。
// 每个房间一把互斥锁，InRoom 在副本上执行，成功后整体替换，失败则丢弃。
type RoomStore struct {
	mu      sync.RWMutex
	rooms   map[string]*roomData
	roomMus map[string]*sync.Mutex
}

// NewRoomStore 创建空的内存房间存储
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:   make(map[string]*roomData),
		roomMus: make(map[string]*sync.Mutex),
	}
}

func (s *RoomStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; exists {
		return repository.ErrDuplicateEntry
	}
	s.rooms[room.ID] = &roomData{
		room:    cloneRoom(*room),
		members: make(map[string]domain.Membership),
		votes:   make(map[string]domain.Vote),
		issues:  make(map[string]domain.Issue),
	}
	s.roomMus[room.ID] = &sync.Mutex{}
	return nil
}

func (s *RoomStore) FindRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.rooms[roomID]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	r := cloneRoom(d.room)
	return &r, nil
}

func (s *RoomStore) InRoom(ctx context.Context, roomID string, fn func(tx repository.RoomTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	roomMu, ok := s.roomMus[roomID]
	s.mu.RUnlock()
	if !ok {
		return repository.ErrRoomNotFound
	}

	roomMu.Lock()
	defer roomMu.Unlock()

	s.mu.RLock()
	current, ok := s.rooms[roomID]
	var work *roomData
	if ok {
		work = current.clone()
	}
	s.mu.RUnlock()
	if !ok {
		// 等锁期间房间被删除
		return repository.ErrRoomNotFound
	}

	if err := fn(&roomTx{data: work}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, still := s.rooms[roomID]; !still {
		return repository.ErrRoomNotFound
	}
	s.rooms[roomID] = work
	return nil
}

func (s *RoomStore) Snapshot(ctx context.Context, roomID string) (*repository.RoomSnapshot, error) {
	s.mu.RLock()
	d, ok := s.rooms[roomID]
	var c *roomData
	if ok {
		c = d.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	tx := &roomTx{data: c}
	members, _ := tx.Memberships()
	votes, _ := tx.Votes()
	issues, _ := tx.Issues()
	return &repository.RoomSnapshot{Room: c.room, Memberships: members, Votes: votes, Issues: issues}, nil
}

func (s *RoomStore) FindMembershipByID(ctx context.Context, membershipID string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.rooms {
		if m, ok := d.members[membershipID]; ok {
			return &m, nil
		}
	}
	return nil, repository.ErrMembershipNotFound
}

func (s *RoomStore) FindInactiveRooms(ctx context.Context, before time.Time, limit int) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Room
	for _, d := range s.rooms {
		if d.room.IsDemoRoom || !d.room.LastActivityAt.Before(before) {
			continue
		}
		out = append(out, cloneRoom(d.room))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RoomStore) DeleteRoomCascade(ctx context.Context, roomID string) error {
	s.mu.RLock()
	roomMu, ok := s.roomMus[roomID]
	s.mu.RUnlock()
	if !ok {
		return repository.ErrRoomNotFound
	}
	roomMu.Lock()
	defer roomMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	delete(s.roomMus, roomID)
	return nil
}

func (s *RoomStore) FindDemoRoom(ctx context.Context) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.rooms {
		if d.room.IsDemoRoom {
			r := cloneRoom(d.room)
			return &r, nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

// roomTx 直接操作 InRoom 中的副本
type roomTx struct {
	data *roomData
}

func (t *roomTx) Room() *domain.Room { return &t.data.room }

func (t *roomTx) SaveRoom(room *domain.Room) error {
	if room.ID != t.data.room.ID {
		return fmt.Errorf("memory: save room %s inside transaction of %s", room.ID, t.data.room.ID)
	}
	t.data.room = cloneRoom(*room)
	return nil
}

func (t *roomTx) Memberships() ([]domain.Membership, error) {
	out := make([]domain.Membership, 0, len(t.data.members))
	for _, m := range t.data.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinOrder != out[j].JoinOrder {
			return out[i].JoinOrder < out[j].JoinOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *roomTx) FindMembership(accountID string) (*domain.Membership, error) {
	for _, m := range t.data.members {
		if m.AccountID == accountID {
			return &m, nil
		}
	}
	return nil, repository.ErrMembershipNotFound
}

func (t *roomTx) FindMembershipByID(membershipID string) (*domain.Membership, error) {
	m, ok := t.data.members[membershipID]
	if !ok {
		return nil, repository.ErrMembershipNotFound
	}
	return &m, nil
}

func (t *roomTx) SaveMembership(m *domain.Membership) error {
	for id, existing := range t.data.members {
		if id != m.ID && existing.AccountID == m.AccountID {
			return repository.ErrDuplicateEntry
		}
	}
	m.RoomID = t.data.room.ID
	t.data.members[m.ID] = *m
	return nil
}

func (t *roomTx) DeleteMembership(membershipID string) error {
	delete(t.data.members, membershipID)
	return nil
}

func (t *roomTx) Votes() ([]domain.Vote, error) {
	out := make([]domain.Vote, 0, len(t.data.votes))
	for _, v := range t.data.votes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MembershipID < out[j].MembershipID
	})
	return out, nil
}

func (t *roomTx) FindVote(membershipID string) (*domain.Vote, error) {
	v, ok := t.data.votes[membershipID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (t *roomTx) SaveVote(v *domain.Vote) error {
	v.RoomID = t.data.room.ID
	if existing, ok := t.data.votes[v.MembershipID]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	}
	t.data.votes[v.MembershipID] = *v
	return nil
}

func (t *roomTx) DeleteVotes() error {
	t.data.votes = make(map[string]domain.Vote)
	return nil
}

func (t *roomTx) DeleteMemberVotes(membershipID string) error {
	delete(t.data.votes, membershipID)
	return nil
}

func (t *roomTx) Issues() ([]domain.Issue, error) {
	out := make([]domain.Issue, 0, len(t.data.issues))
	for _, i := range t.data.issues {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Order != out[b].Order {
			return out[a].Order < out[b].Order
		}
		return out[a].SequentialID < out[b].SequentialID
	})
	return out, nil
}

func (t *roomTx) FindIssue(issueID string) (*domain.Issue, error) {
	i, ok := t.data.issues[issueID]
	if !ok {
		return nil, repository.ErrIssueNotFound
	}
	return &i, nil
}

func (t *roomTx) SaveIssue(issue *domain.Issue) error {
	issue.RoomID = t.data.room.ID
	t.data.issues[issue.ID] = *issue
	return nil
}

func (t *roomTx) DeleteIssue(issueID string) error {
	delete(t.data.issues, issueID)
	return nil
}
