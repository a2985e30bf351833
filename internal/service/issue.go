package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agilekit/internal/domain"
	"agilekit/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxIssueTitleLength    = 512
	maxIssueEstimateLength = 64
)

// IssueService 管理房间里的议题，受 issueManagement 权限控制。
type IssueService struct {
	rooms *RoomService
}

func NewIssueService(rooms *RoomService) *IssueService {
	if rooms == nil {
		panic("RoomService cannot be nil for IssueService")
	}
	return &IssueService{rooms: rooms}
}

// CreateIssue 追加一个待估点议题
func (s *IssueService) CreateIssue(ctx context.Context, roomID, accountID, title string) (*domain.Issue, error) {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > maxIssueTitleLength {
		return nil, fmt.Errorf("%w: issue title is required", ErrInvalidInput)
	}
	var created *domain.Issue
	err := s.rooms.mutate(ctx, roomID, "issue_created", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermIssueManagement); err != nil {
			return err
		}
		issues, err := tx.Issues()
		if err != nil {
			return err
		}
		seq, order := 0, 0
		for _, i := range issues {
			if i.SequentialID > seq {
				seq = i.SequentialID
			}
			if i.Order >= order {
				order = i.Order + 1
			}
		}
		now := s.rooms.now()
		created = &domain.Issue{
			ID:           uuid.NewString(),
			RoomID:       roomID,
			SequentialID: seq + 1,
			Title:        title,
			Status:       domain.IssuePending,
			Order:        order,
			CreatedAt:    now,
		}
		if err := tx.SaveIssue(created); err != nil {
			return err
		}
		room.LastActivityAt = now
		return tx.SaveRoom(room)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListIssues 返回房间的议题列表
func (s *IssueService) ListIssues(ctx context.Context, roomID string) ([]IssueView, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "ListIssues"})
	snap, err := s.rooms.store.Snapshot(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(logCtx, err)
	}
	out := make([]IssueView, 0, len(snap.Issues))
	for _, i := range snap.Issues {
		out = append(out, NewIssueView(i))
	}
	return out, nil
}

// StartIssue 把议题设为当前议题并开始新一轮投票。
// 之前处于投票中的议题回到 pending，本轮已有的投票被清空。
func (s *IssueService) StartIssue(ctx context.Context, roomID, accountID, issueID string) error {
	return s.rooms.mutate(ctx, roomID, "issue_started", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermIssueManagement); err != nil {
			return err
		}
		issue, err := findIssue(tx, issueID)
		if err != nil {
			return err
		}
		if room.CurrentIssueID != nil && *room.CurrentIssueID != issue.ID {
			prev, err := tx.FindIssue(*room.CurrentIssueID)
			if err == nil && prev.Status == domain.IssueVoting {
				prev.Status = domain.IssuePending
				if err := tx.SaveIssue(prev); err != nil {
					return err
				}
			} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		issue.Status = domain.IssueVoting
		issue.FinalEstimate = nil
		issue.VoteStats = jsonStats(domain.IssueStats{})
		if err := tx.SaveIssue(issue); err != nil {
			return err
		}
		id := issue.ID
		room.CurrentIssueID = &id

		if err := tx.DeleteVotes(); err != nil {
			return err
		}
		s.rooms.clearCountdown(room, m)
		room.IsGameOver = false
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// DeleteIssue 删除议题，删除当前议题时清空 CurrentIssueID
func (s *IssueService) DeleteIssue(ctx context.Context, roomID, accountID, issueID string) error {
	return s.rooms.mutate(ctx, roomID, "issue_deleted", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermIssueManagement); err != nil {
			return err
		}
		if _, err := findIssue(tx, issueID); err != nil {
			return err
		}
		if err := tx.DeleteIssue(issueID); err != nil {
			return err
		}
		if room.CurrentIssueID != nil && *room.CurrentIssueID == issueID {
			room.CurrentIssueID = nil
		}
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// UpdateIssueTitle 修改议题标题
func (s *IssueService) UpdateIssueTitle(ctx context.Context, roomID, accountID, issueID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > maxIssueTitleLength {
		return fmt.Errorf("%w: issue title is required", ErrInvalidInput)
	}
	return s.rooms.mutate(ctx, roomID, "issue_updated", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermIssueManagement); err != nil {
			return err
		}
		issue, err := findIssue(tx, issueID)
		if err != nil {
			return err
		}
		if issue.Title == title {
			m.noop = true
			return nil
		}
		issue.Title = title
		if err := tx.SaveIssue(issue); err != nil {
			return err
		}
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// UpdateIssueEstimate 手动覆盖议题的最终估点，不改变议题状态
func (s *IssueService) UpdateIssueEstimate(ctx context.Context, roomID, accountID, issueID, estimate string) error {
	estimate = strings.TrimSpace(estimate)
	if estimate == "" || len([]rune(estimate)) > maxIssueEstimateLength {
		return fmt.Errorf("%w: an estimate of at most %d characters is required", ErrInvalidInput, maxIssueEstimateLength)
	}
	return s.rooms.mutate(ctx, roomID, "issue_estimate_updated", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermIssueManagement); err != nil {
			return err
		}
		issue, err := findIssue(tx, issueID)
		if err != nil {
			return err
		}
		if issue.FinalEstimate != nil && *issue.FinalEstimate == estimate {
			m.noop = true
			return nil
		}
		issue.FinalEstimate = &estimate
		if err := tx.SaveIssue(issue); err != nil {
			return err
		}
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// ReorderIssues 按 issueIDs 的顺序重排议题，顺序从 1 开始。
// 未列出的议题保持原有相对顺序，排在列出的议题之后。
func (s *IssueService) ReorderIssues(ctx context.Context, roomID, accountID string, issueIDs []string) error {
	if len(issueIDs) == 0 {
		return fmt.Errorf("%w: issue ids are required", ErrInvalidInput)
	}
	return s.rooms.mutate(ctx, roomID, "issues_reordered", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermIssueManagement); err != nil {
			return err
		}
		issues, err := tx.Issues()
		if err != nil {
			return err
		}
		byID := make(map[string]*domain.Issue, len(issues))
		for i := range issues {
			byID[issues[i].ID] = &issues[i]
		}

		// 1. 校验并按请求顺序排列
		listed := make(map[string]bool, len(issueIDs))
		ordered := make([]*domain.Issue, 0, len(issues))
		for _, id := range issueIDs {
			issue, ok := byID[id]
			if !ok {
				return ErrIssueNotFound
			}
			if listed[id] {
				return fmt.Errorf("%w: issue %s is listed twice", ErrInvalidInput, id)
			}
			listed[id] = true
			ordered = append(ordered, issue)
		}
		// 2. 追加未列出的议题 (Issues 已按当前顺序返回)
		for i := range issues {
			if !listed[issues[i].ID] {
				ordered = append(ordered, &issues[i])
			}
		}

		// 3. 只保存顺序发生变化的议题
		changed := false
		for idx, issue := range ordered {
			if issue.Order == idx+1 {
				continue
			}
			issue.Order = idx + 1
			if err := tx.SaveIssue(issue); err != nil {
				return err
			}
			changed = true
		}
		if !changed {
			m.noop = true
			return nil
		}
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

// ClearCurrentIssue 取消当前议题，回到不关联议题的快速投票。
// 投票中的议题回到 pending，本轮投票和倒计时一并清空。
func (s *IssueService) ClearCurrentIssue(ctx context.Context, roomID, accountID string) error {
	return s.rooms.mutate(ctx, roomID, "current_issue_cleared", func(tx repository.RoomTx, m *mutation) error {
		room := tx.Room()
		if _, _, err := authorize(tx, room, accountID, domain.PermIssueManagement); err != nil {
			return err
		}
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
		room.CurrentIssueID = nil
		if err := tx.DeleteVotes(); err != nil {
			return err
		}
		s.rooms.clearCountdown(room, m)
		room.IsGameOver = false
		room.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(room)
	})
}

func findIssue(tx repository.RoomTx, issueID string) (*domain.Issue, error) {
	issue, err := tx.FindIssue(issueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, err
	}
	return issue, nil
}
