package service_test

import (
	"testing"
	"time"

	"agilekit/internal/domain"
	"agilekit/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomService_CreateRoom_Defaults(t *testing.T) {
	// Arrange
	f := newFixture(t)

	// Act
	roomID := f.createRoom(t, service.CreateRoomInput{})
	v := f.view(t, roomID, "alice")

	// Assert
	assert.Equal(t, "Planning Poker", v.Name)
	assert.Equal(t, domain.ScaleFibonacci, v.Scale.Type)
	assert.Equal(t, domain.DefaultPermissions(), v.Permissions)
	assert.Equal(t, domain.PhaseVoting, v.Phase)
	require.NotNil(t, v.Me)
	assert.Equal(t, domain.RoleOwner, v.Me.Role)
	assert.False(t, v.IsOwnerAbsent)
}

func TestRoomService_CreateRoom_RejectsInvalidCustomScale(t *testing.T) {
	// Arrange
	f := newFixture(t)

	// Act
	_, _, err := f.rooms.CreateRoom(f.ctx, "alice", "Alice", service.CreateRoomInput{
		ScaleType:   domain.ScaleCustom,
		CustomCards: []string{"S", "S"},
	})

	// Assert
	assert.ErrorIs(t, err, service.ErrInvalidScale)
}

func TestRoomService_VotesHiddenUntilReveal(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))
	aliceMID := f.membershipID(t, roomID, "alice")

	// Act
	bobView := f.view(t, roomID, "bob")

	// Assert: bob 只能看到自己的牌
	require.Len(t, bobView.Votes, 2)
	assert.Nil(t, bobView.Results)
	for _, vote := range bobView.Votes {
		assert.True(t, vote.HasVoted)
		if vote.MembershipID == aliceMID {
			assert.Nil(t, vote.CardLabel, "翻牌前他人的牌应被隐藏")
			assert.Nil(t, vote.CardValue)
			assert.False(t, vote.IsOwnVote)
		} else {
			require.NotNil(t, vote.CardLabel)
			assert.Equal(t, "8", *vote.CardLabel)
			assert.True(t, vote.IsOwnVote)
		}
	}

	// Act: 翻牌
	require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "bob"))
	revealed := f.view(t, roomID, "bob")

	// Assert
	for _, vote := range revealed.Votes {
		assert.NotNil(t, vote.CardLabel, "翻牌后所有牌可见")
	}
	require.NotNil(t, revealed.Results)
	require.NotNil(t, revealed.Results.Average)
	assert.Equal(t, 6.5, *revealed.Results.Average)
	assert.Equal(t, 2, revealed.Results.VoteCount)
	assert.Equal(t, domain.PhaseRevealed, revealed.Phase)
}

func TestRoomService_CastVote_UpsertsSingleVote(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})

	// Act
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "3"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "13"))

	// Assert
	v := f.view(t, roomID, "alice")
	require.Len(t, v.Votes, 1)
	assert.Equal(t, "13", *v.Votes[0].CardLabel)
	require.NotNil(t, v.Votes[0].CardValue)
	assert.Equal(t, 13.0, *v.Votes[0].CardValue)
}

func TestRoomService_CastVote_Rejections(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	_, err := f.members.Join(f.ctx, roomID, "sam", "Sam", true)
	require.NoError(t, err)

	t.Run("empty card", func(t *testing.T) {
		assert.ErrorIs(t, f.rooms.CastVote(f.ctx, roomID, "bob", "  "), service.ErrInvalidCard)
	})
	t.Run("card too long", func(t *testing.T) {
		long := "123456789012345678901234567890123"
		assert.ErrorIs(t, f.rooms.CastVote(f.ctx, roomID, "bob", long), service.ErrInvalidCard)
	})
	t.Run("not a member", func(t *testing.T) {
		assert.ErrorIs(t, f.rooms.CastVote(f.ctx, roomID, "mallory", "5"), service.ErrNotAMember)
	})
	t.Run("spectator", func(t *testing.T) {
		assert.ErrorIs(t, f.rooms.CastVote(f.ctx, roomID, "sam", "5"), service.ErrSpectatorCannotVote)
	})
	t.Run("unknown room", func(t *testing.T) {
		assert.ErrorIs(t, f.rooms.CastVote(f.ctx, "missing", "bob", "5"), service.ErrRoomNotFound)
	})
	t.Run("after reveal", func(t *testing.T) {
		require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "alice"))
		assert.ErrorIs(t, f.rooms.CastVote(f.ctx, roomID, "bob", "5"), service.ErrRoomAlreadyRevealed)
		assert.ErrorIs(t, f.rooms.RetractVote(f.ctx, roomID, "bob"), service.ErrRoomAlreadyRevealed)
	})
}

func TestRoomService_RevealIsIdempotent(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))

	// Act
	first := f.rooms.RevealCards(f.ctx, roomID, "alice")
	second := f.rooms.RevealCards(f.ctx, roomID, "alice")

	// Assert
	assert.NoError(t, first)
	assert.NoError(t, second)
	assert.Equal(t, 1, f.publishCount("cards_revealed"), "重复翻牌不应再次通知")
	assert.True(t, f.view(t, roomID, "alice").IsGameOver)
}

func TestRoomService_ResetGame(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "2"))

	// Act & Assert: 投票中不能重置
	err := f.rooms.ResetGame(f.ctx, roomID, "alice")
	assert.ErrorIs(t, err, service.ErrInvalidState)

	// Act: 翻牌后重置
	require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "alice"))
	require.NoError(t, f.rooms.ResetGame(f.ctx, roomID, "alice"))

	// Assert
	v := f.view(t, roomID, "alice")
	assert.False(t, v.IsGameOver)
	assert.Empty(t, v.Votes)
	assert.Nil(t, v.Results)
	for _, m := range v.Members {
		assert.False(t, m.HasVoted)
	}

	// 第二次重置又回到投票中
	assert.ErrorIs(t, f.rooms.ResetGame(f.ctx, roomID, "alice"), service.ErrInvalidState)
}

func TestRoomService_AutoReveal_FiresAfterCountdown(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	assert.Nil(t, f.view(t, roomID, "alice").Countdown, "还有人没投票时不应启动倒计时")

	// Act
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))
	armed := f.view(t, roomID, "alice")
	f.clk.Advance(2999 * time.Millisecond)
	beforeExpiry := f.view(t, roomID, "alice")
	f.clk.Advance(time.Millisecond)

	// Assert
	require.NotNil(t, armed.Countdown)
	assert.Equal(t, domain.PhaseCountdownArmed, armed.Phase)
	assert.Equal(t, int64(3000), armed.Countdown.DurationMs)
	assert.Equal(t, int64(3000), armed.Countdown.RemainingMs)
	assert.False(t, beforeExpiry.IsGameOver)
	assert.Equal(t, int64(1), beforeExpiry.Countdown.RemainingMs)

	v := f.view(t, roomID, "alice")
	assert.True(t, v.IsGameOver)
	assert.Nil(t, v.Countdown)
	assert.Equal(t, 1, f.publishCount("auto_revealed"))
}

func TestRoomService_AutoReveal_CardChangeKeepsCountdown(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))
	started := f.view(t, roomID, "alice").Countdown.StartedAt

	// Act
	f.clk.Advance(time.Second)
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "3"))
	during := f.view(t, roomID, "alice")
	f.clk.Advance(2 * time.Second)

	// Assert
	require.NotNil(t, during.Countdown)
	assert.True(t, during.Countdown.StartedAt.Equal(started), "修改卡片不应重置倒计时")
	assert.True(t, f.view(t, roomID, "alice").IsGameOver)
}

func TestRoomService_AutoReveal_RetractCancels(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))

	// Act
	f.clk.Advance(time.Second)
	require.NoError(t, f.rooms.RetractVote(f.ctx, roomID, "bob"))
	f.clk.Advance(10 * time.Second)

	// Assert
	v := f.view(t, roomID, "alice")
	assert.False(t, v.IsGameOver)
	assert.Nil(t, v.Countdown)
	assert.Equal(t, 0, f.sched.Pending())
	assert.Equal(t, 0, f.clk.PendingCount())
}

func TestRoomService_CancelAutoReveal_WinsOverTimer(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))

	// Act
	f.clk.Advance(2 * time.Second)
	require.NoError(t, f.rooms.CancelAutoReveal(f.ctx, roomID, "bob"))
	f.clk.Advance(5 * time.Second)
	// 修改卡片不会重新启动倒计时
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "13"))
	f.clk.Advance(5 * time.Second)

	// Assert
	v := f.view(t, roomID, "alice")
	assert.False(t, v.IsGameOver)
	assert.Nil(t, v.Countdown)
	assert.True(t, v.AutoCompleteVoting, "取消倒计时不关闭自动完成")
}

func TestRoomService_CancelAutoReveal_NewCompletionRearms(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))
	require.NoError(t, f.rooms.CancelAutoReveal(f.ctx, roomID, "alice"))

	// Act
	require.NoError(t, f.rooms.RetractVote(f.ctx, roomID, "bob"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "5"))
	f.clk.Advance(3 * time.Second)

	// Assert
	assert.True(t, f.view(t, roomID, "alice").IsGameOver)
}

func TestRoomService_ExecuteAutoReveal_StaleCallbackIsNoop(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))
	started := f.view(t, roomID, "alice").Countdown.StartedAt
	f.clk.Advance(5 * time.Second / 2)

	// Act
	err := f.rooms.ExecuteAutoReveal(f.ctx, roomID, started.Add(-time.Minute))
	errMissing := f.rooms.ExecuteAutoReveal(f.ctx, "no-such-room", started)

	// Assert
	assert.NoError(t, err)
	assert.NoError(t, errMissing, "已删除的房间静默忽略")
	assert.False(t, f.view(t, roomID, "alice").IsGameOver)
}

func TestRoomService_ExecuteAutoReveal_EarlyFireReschedules(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))
	started := f.view(t, roomID, "alice").Countdown.StartedAt
	f.clk.Advance(time.Second)

	// Act
	require.NoError(t, f.rooms.ExecuteAutoReveal(f.ctx, roomID, started))
	early := f.view(t, roomID, "alice")
	f.clk.Advance(2 * time.Second)

	// Assert
	assert.False(t, early.IsGameOver, "提前触发不应翻牌")
	assert.True(t, f.view(t, roomID, "alice").IsGameOver)
}

func TestRoomService_ToggleAutoComplete(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))
	assert.Nil(t, f.view(t, roomID, "alice").Countdown)

	// Act: 开启时已全员投票，立即启动
	require.NoError(t, f.rooms.ToggleAutoComplete(f.ctx, roomID, "bob", true))
	armed := f.view(t, roomID, "alice")
	// 关闭时取消
	require.NoError(t, f.rooms.ToggleAutoComplete(f.ctx, roomID, "bob", false))
	f.clk.Advance(5 * time.Second)

	// Assert
	assert.NotNil(t, armed.Countdown)
	v := f.view(t, roomID, "alice")
	assert.Nil(t, v.Countdown)
	assert.False(t, v.IsGameOver)
	assert.False(t, v.AutoCompleteVoting)
}

func TestRoomService_ManualRevealCancelsCountdown(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "8"))

	// Act
	require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "alice"))
	f.clk.Advance(5 * time.Second)

	// Assert
	assert.Equal(t, 0, f.publishCount("auto_revealed"))
	assert.Equal(t, 0, f.clk.PendingCount())
	assert.True(t, f.view(t, roomID, "alice").IsGameOver)
}

func TestRoomService_PermissionGating(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	perms := domain.DefaultPermissions()
	perms.RevealCards = domain.LevelFacilitators
	perms.RoomSettings = domain.LevelOwner
	require.NoError(t, f.rooms.UpdatePermissions(f.ctx, roomID, "alice", perms))

	// Act & Assert
	assert.ErrorIs(t, f.rooms.RevealCards(f.ctx, roomID, "bob"), service.ErrPermissionDenied)
	assert.ErrorIs(t, f.rooms.UpdatePermissions(f.ctx, roomID, "bob", domain.DefaultPermissions()), service.ErrPermissionDenied)

	name := "Sprint 42"
	assert.ErrorIs(t, f.rooms.UpdateSettings(f.ctx, roomID, "bob", service.RoomSettingsInput{Name: &name}), service.ErrPermissionDenied)
	require.NoError(t, f.rooms.UpdateSettings(f.ctx, roomID, "alice", service.RoomSettingsInput{Name: &name}))

	require.NoError(t, f.members.PromoteToFacilitator(f.ctx, roomID, "alice", "bob"))
	assert.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "bob"))
	assert.Equal(t, "Sprint 42", f.view(t, roomID, "bob").Name)
}

func TestRoomService_UpdatePermissions_RejectsUnknownLevel(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	perms := domain.DefaultPermissions()
	perms.GameFlow = "admins"

	err := f.rooms.UpdatePermissions(f.ctx, roomID, "alice", perms)

	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestRoomService_UpdateSettings_ChangesScale(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	custom := domain.ScaleCustom

	// Act
	err := f.rooms.UpdateSettings(f.ctx, roomID, "alice", service.RoomSettingsInput{
		ScaleType:   &custom,
		CustomCards: []string{"small", "large"},
	})

	// Assert
	require.NoError(t, err)
	v := f.view(t, roomID, "alice")
	assert.Equal(t, domain.ScaleCustom, v.Scale.Type)
	assert.Equal(t, []string{"small", "large"}, v.Scale.Cards)
}
