package service_test

import (
	"context"
	"testing"
	"time"

	"agilekit/internal/clock"
	"agilekit/internal/domain"
	"agilekit/internal/infra/persistence/memory"
	"agilekit/internal/repository/mocks"
	"agilekit/internal/scheduler"
	"agilekit/internal/service"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	store   *memory.RoomStore
	clk     *clock.FakeClock
	sched   *scheduler.TimerScheduler
	bus     *mocks.RoomEventBus
	rooms   *service.RoomService
	members *service.MembershipService
	issues  *service.IssueService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: memory.NewRoomStore(),
		clk:   clock.Fake(testEpoch),
		bus:   new(mocks.RoomEventBus),
	}
	f.bus.On("PublishRoomChanged", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.sched = scheduler.NewTimerScheduler(f.clk)
	f.rooms = service.NewRoomService(f.store, f.bus, f.sched, f.clk, 3*time.Second)
	f.sched.Bind(f.rooms.ExecuteAutoReveal)
	f.members = service.NewMembershipService(f.rooms)
	f.issues = service.NewIssueService(f.rooms)
	return f
}

// createRoom 以 alice 为房主创建房间，并让其他账号以参与者身份加入
func (f *fixture) createRoom(t *testing.T, in service.CreateRoomInput, others ...string) string {
	t.Helper()
	room, owner, err := f.rooms.CreateRoom(f.ctx, "alice", "Alice", in)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, owner.Role)
	for _, account := range others {
		_, err := f.members.Join(f.ctx, room.ID, account, account, false)
		require.NoError(t, err)
	}
	return room.ID
}

func (f *fixture) view(t *testing.T, roomID, viewer string) *service.RoomView {
	t.Helper()
	v, err := f.rooms.GetRoom(f.ctx, roomID, viewer)
	require.NoError(t, err)
	return v
}

func (f *fixture) membershipID(t *testing.T, roomID, accountID string) string {
	t.Helper()
	for _, m := range f.view(t, roomID, "").Members {
		if m.AccountID == accountID {
			return m.ID
		}
	}
	t.Fatalf("account %s is not a member of room %s", accountID, roomID)
	return ""
}

// publishCount 返回以 reason 发布的事件数量
func (f *fixture) publishCount(reason string) int {
	n := 0
	for _, call := range f.bus.Calls {
		if call.Method == "PublishRoomChanged" && call.Arguments.String(2) == reason {
			n++
		}
	}
	return n
}
