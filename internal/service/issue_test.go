package service_test

import (
	"testing"

	"agilekit/internal/domain"
	"agilekit/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueService_CreateAndList(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})

	// Act
	first, err := f.issues.CreateIssue(f.ctx, roomID, "alice", "Login page")
	require.NoError(t, err)
	second, err := f.issues.CreateIssue(f.ctx, roomID, "alice", "Password reset")
	require.NoError(t, err)
	list, err := f.issues.ListIssues(f.ctx, roomID)

	// Assert
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, 1, list[0].SequentialID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, 2, list[1].SequentialID)
	assert.Equal(t, domain.IssuePending, list[1].Status)
}

func TestIssueService_CreateIssue_Validation(t *testing.T) {
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	perms := domain.DefaultPermissions()
	perms.IssueManagement = domain.LevelFacilitators
	require.NoError(t, f.rooms.UpdatePermissions(f.ctx, roomID, "alice", perms))

	_, errTitle := f.issues.CreateIssue(f.ctx, roomID, "alice", "  ")
	_, errPerm := f.issues.CreateIssue(f.ctx, roomID, "bob", "Checkout flow")

	assert.ErrorIs(t, errTitle, service.ErrInvalidInput)
	assert.ErrorIs(t, errPerm, service.ErrPermissionDenied)
}

func TestIssueService_RevealCompletesCurrentIssue(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	issue, err := f.issues.CreateIssue(f.ctx, roomID, "alice", "Login page")
	require.NoError(t, err)
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "bob", issue.ID))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "5"))

	// Act
	require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "alice"))

	// Assert
	v := f.view(t, roomID, "alice")
	require.NotNil(t, v.CurrentIssueID)
	assert.Equal(t, issue.ID, *v.CurrentIssueID)
	require.Len(t, v.Issues, 1)
	done := v.Issues[0]
	assert.Equal(t, domain.IssueCompleted, done.Status)
	require.NotNil(t, done.FinalEstimate)
	assert.Equal(t, "5", *done.FinalEstimate)
	require.NotNil(t, done.VoteStats)
	assert.Equal(t, 100, done.VoteStats.Agreement)
	assert.Equal(t, 2, done.VoteStats.VoteCount)
}

func TestIssueService_StartIssue_StartsFreshRound(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	first, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "First")
	second, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "Second")
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "alice", first.ID))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "3"))

	// Act
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "alice", second.ID))

	// Assert
	v := f.view(t, roomID, "alice")
	assert.Empty(t, v.Votes, "开始新议题时清空投票")
	assert.False(t, v.IsGameOver)
	assert.Equal(t, second.ID, *v.CurrentIssueID)
	statuses := map[string]domain.IssueStatus{}
	for _, i := range v.Issues {
		statuses[i.ID] = i.Status
	}
	assert.Equal(t, domain.IssuePending, statuses[first.ID])
	assert.Equal(t, domain.IssueVoting, statuses[second.ID])
}

func TestIssueService_StartIssue_AfterReveal(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	issue, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "Next")
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "8"))
	require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "alice"))

	// Act
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "alice", issue.ID))

	// Assert
	v := f.view(t, roomID, "alice")
	assert.Equal(t, domain.PhaseVoting, v.Phase)
	assert.Empty(t, v.Votes)
}

func TestIssueService_DeleteIssue(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	issue, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "Obsolete")
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "alice", issue.ID))

	// Act
	require.NoError(t, f.issues.DeleteIssue(f.ctx, roomID, "alice", issue.ID))
	errAgain := f.issues.DeleteIssue(f.ctx, roomID, "alice", issue.ID)

	// Assert
	assert.ErrorIs(t, errAgain, service.ErrIssueNotFound)
	v := f.view(t, roomID, "alice")
	assert.Empty(t, v.Issues)
	assert.Nil(t, v.CurrentIssueID)
}

func TestIssueService_RevealWithoutVotesKeepsIssueOpen(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	issue, err := f.issues.CreateIssue(f.ctx, roomID, "alice", "Nobody voted")
	require.NoError(t, err)
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "alice", issue.ID))

	// Act
	require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "alice"))

	// Assert
	v := f.view(t, roomID, "alice")
	assert.True(t, v.IsGameOver)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, domain.IssueVoting, v.Issues[0].Status, "没有共识时不完成议题")
	assert.Nil(t, v.Issues[0].FinalEstimate)
}

func TestIssueService_UpdateIssueTitle(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{}, "bob")
	issue, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "Login")
	perms := domain.DefaultPermissions()
	perms.IssueManagement = domain.LevelFacilitators
	require.NoError(t, f.rooms.UpdatePermissions(f.ctx, roomID, "alice", perms))

	// Act
	err := f.issues.UpdateIssueTitle(f.ctx, roomID, "alice", issue.ID, " Login with SSO ")
	errEmpty := f.issues.UpdateIssueTitle(f.ctx, roomID, "alice", issue.ID, "")
	errPerm := f.issues.UpdateIssueTitle(f.ctx, roomID, "bob", issue.ID, "Hijacked")
	errMissing := f.issues.UpdateIssueTitle(f.ctx, roomID, "alice", "missing", "Ghost")

	// Assert
	require.NoError(t, err)
	assert.ErrorIs(t, errEmpty, service.ErrInvalidInput)
	assert.ErrorIs(t, errPerm, service.ErrPermissionDenied)
	assert.ErrorIs(t, errMissing, service.ErrIssueNotFound)
	v := f.view(t, roomID, "alice")
	assert.Equal(t, "Login with SSO", v.Issues[0].Title)
}

func TestIssueService_UpdateIssueEstimate_OverridesConsensus(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	issue, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "Export")
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "alice", issue.ID))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "5"))
	require.NoError(t, f.rooms.RevealCards(f.ctx, roomID, "alice"))

	// Act
	err := f.issues.UpdateIssueEstimate(f.ctx, roomID, "alice", issue.ID, "8")
	errEmpty := f.issues.UpdateIssueEstimate(f.ctx, roomID, "alice", issue.ID, "  ")

	// Assert
	require.NoError(t, err)
	assert.ErrorIs(t, errEmpty, service.ErrInvalidInput)
	done := f.view(t, roomID, "alice").Issues[0]
	assert.Equal(t, domain.IssueCompleted, done.Status)
	require.NotNil(t, done.FinalEstimate)
	assert.Equal(t, "8", *done.FinalEstimate)
}

func TestIssueService_ReorderIssues(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{})
	a, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "A")
	b, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "B")
	c, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "C")

	// Act: 只列出 c 和 a，b 排在后面
	err := f.issues.ReorderIssues(f.ctx, roomID, "alice", []string{c.ID, a.ID})

	// Assert
	require.NoError(t, err)
	list, err := f.issues.ListIssues(f.ctx, roomID)
	require.NoError(t, err)
	var titles []string
	for _, i := range list {
		titles = append(titles, i.Title)
	}
	assert.Equal(t, []string{"C", "A", "B"}, titles)
	assert.Equal(t, 3, list[2].Order)

	assert.ErrorIs(t, f.issues.ReorderIssues(f.ctx, roomID, "alice", []string{a.ID, "missing"}), service.ErrIssueNotFound)
	assert.ErrorIs(t, f.issues.ReorderIssues(f.ctx, roomID, "alice", []string{a.ID, a.ID}), service.ErrInvalidInput)
	assert.ErrorIs(t, f.issues.ReorderIssues(f.ctx, roomID, "alice", nil), service.ErrInvalidInput)

	before := f.publishCount("issues_reordered")
	require.NoError(t, f.issues.ReorderIssues(f.ctx, roomID, "alice", []string{c.ID, a.ID, b.ID}))
	assert.Equal(t, before, f.publishCount("issues_reordered"), "顺序未变时不发布事件")
}

func TestIssueService_ClearCurrentIssue(t *testing.T) {
	// Arrange
	f := newFixture(t)
	roomID := f.createRoom(t, service.CreateRoomInput{AutoCompleteVoting: true}, "bob")
	issue, _ := f.issues.CreateIssue(f.ctx, roomID, "alice", "Search")
	require.NoError(t, f.issues.StartIssue(f.ctx, roomID, "alice", issue.ID))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "alice", "3"))
	require.NoError(t, f.rooms.CastVote(f.ctx, roomID, "bob", "3"))
	require.NotNil(t, f.view(t, roomID, "alice").Countdown)

	// Act
	require.NoError(t, f.issues.ClearCurrentIssue(f.ctx, roomID, "alice"))

	// Assert
	v := f.view(t, roomID, "alice")
	assert.Nil(t, v.CurrentIssueID)
	assert.Empty(t, v.Votes)
	assert.Nil(t, v.Countdown)
	assert.False(t, v.IsGameOver)
	assert.Equal(t, domain.IssuePending, v.Issues[0].Status)
	assert.Zero(t, f.clk.PendingCount(), "倒计时回调被取消")
}
