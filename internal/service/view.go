package service

import (
	"time"

	"agilekit/internal/domain"
	"agilekit/internal/repository"
)

// MemberView 是返回给客户端的成员信息
type MemberView struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"accountId"`
	Name        string      `json:"name"`
	Role        domain.Role `json:"role"`
	IsSpectator bool        `json:"isSpectator"`
	IsBot       bool        `json:"isBot"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	JoinedAt    time.Time   `json:"joinedAt"`
	HasVoted    bool        `json:"hasVoted"`
}

// CountdownView 描述进行中的倒计时。剩余时间由开始时间和时长推导。
type CountdownView struct {
	StartedAt   time.Time `json:"startedAt"`
	DurationMs  int64     `json:"durationMs"`
	RemainingMs int64     `json:"remainingMs"`
}

// IssueView 是返回给客户端的议题
type IssueView struct {
	ID            string             `json:"id"`
	SequentialID  int                `json:"sequentialId"`
	Title         string             `json:"title"`
	Status        domain.IssueStatus `json:"status"`
	FinalEstimate *string            `json:"finalEstimate,omitempty"`
	VoteStats     *domain.IssueStats `json:"voteStats,omitempty"`
	Order         int                `json:"order"`
}

// RoomView 是 GetRoom 的返回值，Votes 永远是脱敏后的视图。
type RoomView struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Scale              domain.VotingScale     `json:"votingScale"`
	Permissions        domain.RoomPermissions `json:"permissions"`
	Phase              domain.Phase           `json:"phase"`
	IsGameOver         bool                   `json:"isGameOver"`
	AutoCompleteVoting bool                   `json:"autoCompleteVoting"`
	VotingCategorized  bool                   `json:"votingCategorized"`
	IsDemoRoom         bool                   `json:"isDemoRoom"`
	Countdown          *CountdownView         `json:"countdown"`
	IsOwnerAbsent      bool                   `json:"isOwnerAbsent"`
	Members            []MemberView           `json:"members"`
	Votes              []domain.SanitizedVote `json:"votes"`
	Issues             []IssueView            `json:"issues"`
	CurrentIssueID     *string                `json:"currentIssueId"`
	Me                 *MemberView            `json:"me"`
	Results            *domain.Results        `json:"results,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	LastActivityAt     time.Time              `json:"lastActivityAt"`
}

func buildRoomView(snap *repository.RoomSnapshot, viewerAccountID string, now time.Time, countdown time.Duration) *RoomView {
	room := snap.Room
	voted := make(map[string]bool, len(snap.Votes))
	for i := range snap.Votes {
		if snap.Votes[i].HasVoted() {
			voted[snap.Votes[i].MembershipID] = true
		}
	}

	view := &RoomView{
		ID:                 room.ID,
		Name:               room.Name,
		Scale:              room.Scale(),
		Permissions:        room.PermissionSet(),
		Phase:              room.Phase(),
		IsGameOver:         room.IsGameOver,
		AutoCompleteVoting: room.AutoCompleteVoting,
		VotingCategorized:  room.VotingCategorized,
		IsDemoRoom:         room.IsDemoRoom,
		IsOwnerAbsent:      domain.OwnerAbsent(snap.Memberships),
		Members:            make([]MemberView, 0, len(snap.Memberships)),
		Issues:             make([]IssueView, 0, len(snap.Issues)),
		CurrentIssueID:     room.CurrentIssueID,
		CreatedAt:          room.CreatedAt,
		LastActivityAt:     room.LastActivityAt,
	}

	viewerMembershipID := ""
	for _, m := range snap.Memberships {
		mv := MemberView{
			ID:          m.ID,
			AccountID:   m.AccountID,
			Name:        m.Name,
			Role:        m.Role,
			IsSpectator: m.IsSpectator,
			IsBot:       m.IsBot,
			AvatarURL:   m.AvatarURL,
			JoinedAt:    m.JoinedAt,
			HasVoted:    voted[m.ID],
		}
		view.Members = append(view.Members, mv)
		if viewerAccountID != "" && m.AccountID == viewerAccountID {
			viewerMembershipID = m.ID
			me := mv
			view.Me = &me
		}
	}

	view.Votes = domain.SanitizeVotes(snap.Votes, room.IsGameOver, viewerMembershipID)

	if room.CountdownArmed() {
		started := *room.AutoRevealCountdownStartedAt
		remaining := started.Add(countdown).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		view.Countdown = &CountdownView{
			StartedAt:   started,
			DurationMs:  countdown.Milliseconds(),
			RemainingMs: remaining.Milliseconds(),
		}
	}

	if room.IsGameOver {
		results := domain.ComputeResults(snap.Votes, snap.Memberships)
		view.Results = &results
	}

	for _, issue := range snap.Issues {
		view.Issues = append(view.Issues, NewIssueView(issue))
	}
	return view
}

// NewIssueView 把议题转换为返回给客户端的视图
func NewIssueView(issue domain.Issue) IssueView {
	iv := IssueView{
		ID:            issue.ID,
		SequentialID:  issue.SequentialID,
		Title:         issue.Title,
		Status:        issue.Status,
		FinalEstimate: issue.FinalEstimate,
		Order:         issue.Order,
	}
	if issue.Status == domain.IssueCompleted {
		stats := issue.VoteStats.Data()
		iv.VoteStats = &stats
	}
	return iv
}
