package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agilekit/internal/clock"
	"agilekit/internal/domain"
	"agilekit/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultCountdown 是全员投票后到自动翻牌的等待时间
const DefaultCountdown = 3000 * time.Millisecond

const (
	defaultRoomName   = "Planning Poker"
	maxRoomNameLength = 100
	maxCardLength     = 32
)

// RevealScheduler 负责自动翻牌的延迟回调。
// 同一房间最多一个待执行回调，Arm 会先取消之前的回调。
// 回调触发时调用 RoomService.ExecuteAutoReveal(roomID, startedAt)。
type RevealScheduler interface {
	Arm(ctx context.Context, roomID string, startedAt time.Time, delay time.Duration) error
	Cancel(ctx context.Context, roomID string, startedAt time.Time) error
}

// RoomService 负责房间状态机: 投票、翻牌、重置、自动翻牌倒计时。
type RoomService struct {
	store     repository.RoomStore
	events    repository.RoomEventBus
	scheduler RevealScheduler
	clock     clock.Clock
	countdown time.Duration
}

// NewRoomService 创建 RoomService 实例。countdown <= 0 时使用 DefaultCountdown。
func NewRoomService(store repository.RoomStore, events repository.RoomEventBus, scheduler RevealScheduler, clk clock.Clock, countdown time.Duration) *RoomService {
	if store == nil {
		panic("RoomStore cannot be nil for RoomService")
	}
	if events == nil {
		panic("RoomEventBus cannot be nil for RoomService")
	}
	if scheduler == nil {
		panic("RevealScheduler cannot be nil for RoomService")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if countdown <= 0 {
		countdown = DefaultCountdown
	}
	return &RoomService{
		store:     store,
		events:    events,
		scheduler: scheduler,
		clock:     clk,
		countdown: countdown,
	}
}

// Countdown 返回配置的倒计时长度
func (s *RoomService) Countdown() time.Duration { return s.countdown }

// CreateRoomInput 是创建房间的参数
type CreateRoomInput struct {
	Name               string
	ScaleType          domain.ScaleType
	CustomCards        []string
	AutoCompleteVoting bool
	VotingCategorized  bool
	Permissions        *domain.RoomPermissions
}

// CreateRoom 创建房间，创建者以 owner 身份加入。
func (s *RoomService) CreateRoom(ctx context.Context, accountID, displayName string, in CreateRoomInput) (*domain.Room, *domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{"account_id": accountID, "operation": "CreateRoom"})

	// 1. 校验输入
	displayName = strings.TrimSpace(displayName)
	if accountID == "" || displayName == "" {
		return nil, nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	name, err := normalizeRoomName(in.Name)
	if err != nil {
		return nil, nil, err
	}
	scale, err := domain.NewVotingScale(in.ScaleType, in.CustomCards)
	if err != nil {
		return nil, nil, err
	}
	perms := domain.DefaultPermissions()
	if in.Permissions != nil {
		if err := in.Permissions.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		perms = *in.Permissions
	}

	// 2. 保存房间
	now := s.now()
	room := &domain.Room{
		ID:                 uuid.NewString(),
		Name:               name,
		OwnerAccountID:     accountID,
		AutoCompleteVoting: in.AutoCompleteVoting,
		VotingCategorized:  in.VotingCategorized,
		CreatedAt:          now,
		LastActivityAt:     now,
	}
	room.SetScale(scale)
	room.SetPermissions(perms)
	if err := s.store.CreateRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save new room")
		return nil, nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	// 3. 创建者加入
	owner := &domain.Membership{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		AccountID: accountID,
		Name:      displayName,
		Role:      domain.RoleOwner,
		JoinedAt:  now,
		JoinOrder: 1,
	}
	err = s.mutate(ctx, room.ID, "room_created", func(tx repository.RoomTx, m *mutation) error {
		return tx.SaveMembership(owner)
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to add creator to new room")
		return nil, nil, err
	}

	logCtx.Info("Room created successfully")
	return room, owner, nil
}

// GetRoom 返回查看者视角的房间视图，投票经过脱敏处理。
func (s *RoomService) GetRoom(ctx context.Context, roomID, viewerAccountID string) (*RoomView, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "account_id": viewerAccountID, "operation": "GetRoom"})
	snap, err := s.store.Snapshot(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(logCtx, err)
	}
	return buildRoomView(snap, viewerAccountID, s.now(), s.countdown), nil
}

// CastVote 记录或修改投票。只有投票阶段的非观众成员可以投票。
func (s *RoomService) CastVote(ctx context.Context, roomID, accountID, card string) error {
	card = strings.TrimSpace(card)
	if card == "" || len([]rune(card)) > maxCardLength {
		return ErrInvalidCard
	}
	return s.mutate(ctx, roomID, "vote_cast", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()

		// 1. 校验成员身份和阶段
		member, err := findMember(tx, accountID)
		if err != nil {
			return err
		}
		if member.IsSpectator {
			return ErrSpectatorCannotVote
		}
		if room.IsGameOver {
			return ErrRoomAlreadyRevealed
		}
		wasComplete, err := completion(tx)
		if err != nil {
			return err
		}

		// 2. 按 (房间, 成员) upsert
		now := s.now()
		vote := &domain.Vote{ID: uuid.NewString(), RoomID: roomID, MembershipID: member.ID, CreatedAt: now}
		if existing, err := tx.FindVote(member.ID); err == nil {
			vote = existing
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		vote.CardLabel = &card
		vote.CardValue = nil
		if v, ok := domain.ParseNumericCard(card); ok {
			vote.CardValue = &v
		}
		vote.UpdatedAt = now
		if err := tx.SaveVote(vote); err != nil {
			return err
		}

		// 3. 检查是否需要启动倒计时
		room.LastActivityAt = now
		if err := s.reconcileCountdown(tx, room, m, wasComplete, false); err != nil {
			return err
		}
		return tx.SaveRoom(room)
	})
}

// RetractVote 撤回自己的投票
func (s *RoomService) RetractVote(ctx context.Context, roomID, accountID string) error {
	return s.mutate(ctx, roomID, "vote_retracted", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		member, err := findMember(tx, accountID)
		if err != nil {
			return err
		}
		if room.IsGameOver {
			return ErrRoomAlreadyRevealed
		}
		wasComplete, err := completion(tx)
		if err != nil {
			return err
		}
		if err := tx.DeleteMemberVotes(member.ID); err != nil {
			return err
		}
		room.LastActivityAt = s.now()
		if err := s.reconcileCountdown(tx, room, m, wasComplete, false); err != nil {
			return err
		}
		return tx.SaveRoom(room)
	})
}

// RevealCards 翻牌。已翻牌时再次调用视为成功的空操作。
func (s *RoomService) RevealCards(ctx context.Context, roomID, accountID string) error {
	return s.mutate(ctx, roomID, "cards_revealed", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermRevealCards); err != nil {
			return err
		}
		if room.IsGameOver {
			m.noop = true
			return nil
		}
		return s.revealInTx(tx, room, m, true)
	})
}

// ResetGame 开始新一轮。只能在翻牌后调用，投票中调用返回 ErrInvalidState。
func (s *RoomService) ResetGame(ctx context.Context, roomID, accountID string) error {
	return s.mutate(ctx, roomID, "game_reset", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermGameFlow); err != nil {
			return err
		}
		if !room.IsGameOver {
			return fmt.Errorf("%w: cannot reset while voting is in progress", ErrInvalidState)
		}
		return s.resetInTx(tx, room, m)
	})
}

// ToggleAutoComplete 开关自动完成。关闭时取消倒计时，开启时若已全员投票则立即启动。
func (s *RoomService) ToggleAutoComplete(ctx context.Context, roomID, accountID string, enabled bool) error {
	return s.mutate(ctx, roomID, "auto_complete_toggled", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermGameFlow); err != nil {
			return err
		}
		if room.AutoCompleteVoting == enabled {
			m.noop = true
			return nil
		}
		room.AutoCompleteVoting = enabled
		room.LastActivityAt = s.now()
		if !enabled {
			s.clearCountdown(room, m)
		} else if err := s.reconcileCountdown(tx, room, m, false, true); err != nil {
			return err
		}
		return tx.SaveRoom(room)
	})
}

// CancelAutoReveal 取消进行中的倒计时，不关闭自动完成。
func (s *RoomService) CancelAutoReveal(ctx context.Context, roomID, accountID string) error {
	return s.mutate(ctx, roomID, "auto_reveal_canceled", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermGameFlow); err != nil {
			return err
		}
		if room.AutoRevealCountdownStartedAt == nil {
			m.noop = true
			return nil
		}
		s.clearCountdown(room, m)
		room.LastActivityAt = s.now()
		return tx.SaveRoom(room)
	})
}

// ExecuteAutoReveal 是倒计时回调的入口。
// 只有房间仍在投票中、倒计时仍在进行、且开始时间与回调一致时才会翻牌，否则静默返回。
func (s *RoomService) ExecuteAutoReveal(ctx context.Context, roomID string, startedAt time.Time) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":    roomID,
		"started_at": startedAt.UnixMilli(),
		"operation":  "ExecuteAutoReveal",
	})
	err := s.mutate(ctx, roomID, "auto_revealed", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()

		// 1. 回调是否仍然有效
		if room.IsGameOver || room.AutoRevealCountdownStartedAt == nil ||
			room.AutoRevealCountdownStartedAt.UnixMilli() != startedAt.UnixMilli() {
			logCtx.Debug("Stale auto-reveal callback ignored")
			m.noop = true
			return nil
		}

		// 2. 提前触发时按剩余时间重新调度
		if remaining := room.AutoRevealCountdownStartedAt.Add(s.countdown).Sub(s.now()); remaining > 0 {
			logCtx.WithField("remaining_ms", remaining.Milliseconds()).Info("Auto-reveal fired early, rescheduling")
			at := *room.AutoRevealCountdownStartedAt
			m.noop = true
			m.arm = &at
			m.armDelay = remaining
			return nil
		}

		// 3. 翻牌
		return s.revealInTx(tx, room, m, false)
	})
	if errors.Is(err, ErrRoomNotFound) {
		logCtx.Debug("Auto-reveal fired for a room that no longer exists")
		return nil
	}
	return err
}

// RoomSettingsInput 是可修改的房间设置，nil 字段保持不变
type RoomSettingsInput struct {
	Name              *string
	ScaleType         *domain.ScaleType
	CustomCards       []string
	VotingCategorized *bool
}

// UpdateSettings 修改房间名称、卡组等设置，受 roomSettings 权限控制
func (s *RoomService) UpdateSettings(ctx context.Context, roomID, accountID string, in RoomSettingsInput) error {
	var (
		name  string
		scale domain.VotingScale
		err   error
	)
	if in.Name != nil {
		if name, err = normalizeRoomName(*in.Name); err != nil {
			return err
		}
	}
	if in.ScaleType != nil {
		if scale, err = domain.NewVotingScale(*in.ScaleType, in.CustomCards); err != nil {
			return err
		}
	}
	return s.mutate(ctx, roomID, "settings_updated", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermRoomSettings); err != nil {
			return err
		}
		if in.Name != nil {
			room.Name = name
		}
		if in.ScaleType != nil {
			room.SetScale(scale)
		}
		if in.VotingCategorized != nil {
			room.VotingCategorized = *in.VotingCategorized
		}
		room.LastActivityAt = s.now()
		return tx.SaveRoom(room)
	})
}

// UpdatePermissions 修改权限配置，只有房主可以调用
func (s *RoomService) UpdatePermissions(ctx context.Context, roomID, accountID string, perms domain.RoomPermissions) error {
	if err := perms.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.mutate(ctx, roomID, "permissions_updated", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		member, err := findMember(tx, accountID)
		if err != nil {
			return err
		}
		if !domain.CanChangePermissions(member.Role) {
			return fmt.Errorf("%w: only the room owner can change permissions", ErrPermissionDenied)
		}
		room.SetPermissions(perms)
		room.LastActivityAt = s.now()
		return tx.SaveRoom(room)
	})
}

// --- 事务内的状态迁移 ---

// revealInTx 翻牌，有共识时完成当前议题。没有共识的议题保持投票中，重置后可以重新投票。
// cancelTimer 为 false 时表示由回调自身触发，不再取消调度。
func (s *RoomService) revealInTx(tx repository.RoomTx, room *domain.Room, m *mutation, cancelTimer bool) error {
	if cancelTimer {
		s.clearCountdown(room, m)
	} else {
		room.AutoRevealCountdownStartedAt = nil
	}
	room.IsGameOver = true
	room.LastActivityAt = s.now()

	if room.CurrentIssueID != nil {
		issue, err := tx.FindIssue(*room.CurrentIssueID)
		switch {
		case err == nil && issue.Status == domain.IssueVoting:
			members, err := tx.Memberships()
			if err != nil {
				return err
			}
			votes, err := tx.Votes()
			if err != nil {
				return err
			}
			results := domain.ComputeResults(votes, members)
			if results.Consensus == nil {
				break
			}
			issue.Status = domain.IssueCompleted
			issue.FinalEstimate = results.Consensus
			issue.VoteStats = jsonStats(results.Stats())
			if err := tx.SaveIssue(issue); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return err
		}
	}
	return tx.SaveRoom(room)
}

// resetInTx 删除本轮投票并回到投票阶段
func (s *RoomService) resetInTx(tx repository.RoomTx, room *domain.Room, m *mutation) error {
	if err := tx.DeleteVotes(); err != nil {
		return err
	}
	s.clearCountdown(room, m)
	room.IsGameOver = false
	room.LastActivityAt = s.now()

	if room.CurrentIssueID != nil {
		issue, err := tx.FindIssue(*room.CurrentIssueID)
		if err == nil && issue.Status == domain.IssueVoting {
			issue.Status = domain.IssuePending
			if err := tx.SaveIssue(issue); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return tx.SaveRoom(room)
}

// reconcileCountdown 在投票或成员变更后调整倒计时:
// 完成度由否变是 (或 force) 且未启动时启动；完成度变为否时取消。
// 只改卡片不改变完成度，因此不会重置已启动的倒计时。
func (s *RoomService) reconcileCountdown(tx repository.RoomTx, room *domain.Room, m *mutation, wasComplete, force bool) error {
	if !room.AutoCompleteVoting || room.IsGameOver {
		return nil
	}
	complete, err := completion(tx)
	if err != nil {
		return err
	}
	switch {
	case complete && room.AutoRevealCountdownStartedAt == nil && (!wasComplete || force):
		now := s.now()
		room.AutoRevealCountdownStartedAt = &now
		m.arm = &now
		m.armDelay = s.countdown
	case !complete && room.AutoRevealCountdownStartedAt != nil:
		s.clearCountdown(room, m)
	}
	return nil
}

// clearCountdown 清除倒计时，并登记提交后需要取消的调度
func (s *RoomService) clearCountdown(room *domain.Room, m *mutation) {
	if room.AutoRevealCountdownStartedAt == nil {
		return
	}
	m.cancels = append(m.cancels, *room.AutoRevealCountdownStartedAt)
	room.AutoRevealCountdownStartedAt = nil
	if m.arm != nil {
		m.arm = nil
	}
}

func (s *RoomService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func normalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultRoomName, nil
	}
	if len([]rune(name)) > maxRoomNameLength {
		return "", fmt.Errorf("%w: room name is too long", ErrInvalidInput)
	}
	return name, nil
}
