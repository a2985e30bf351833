package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"agilekit/internal/domain"
	"agilekit/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	demoRoomName = "Planning Poker Demo"
	// demoVoteChance 是每个周期里一个机器人投票的概率
	demoVoteChance = 0.8
	// DefaultDemoRoundPause 是翻牌后保留结果的时长，也是等待真人投票的最长时长
	DefaultDemoRoundPause = 10 * time.Second
)

type demoBot struct {
	accountID string
	name      string
	preferred []string
}

var demoBots = []demoBot{
	{accountID: "demo-bot-1", name: "Ada Lovelace", preferred: []string{"3", "5"}},
	{accountID: "demo-bot-2", name: "Grace Hopper", preferred: []string{"5", "8"}},
	{accountID: "demo-bot-3", name: "Alan Turing", preferred: []string{"2", "3", "5"}},
	{accountID: "demo-bot-4", name: "Katherine Johnson", preferred: []string{"8", "13"}},
	{accountID: "demo-bot-5", name: "Dennis Ritchie", preferred: []string{"1", "2", "3"}},
	{accountID: "demo-bot-6", name: "Margaret Hamilton", preferred: []string{"5", "8", "13"}},
}

// DemoService 维护一个由机器人驱动的公开演示房间。
// 第一个机器人是房主，负责在需要时翻牌和重置。
type DemoService struct {
	rooms *RoomService
	pause time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewDemoService 创建 DemoService 实例。seed 固定时机器人的行为可复现。
func NewDemoService(rooms *RoomService, pause time.Duration, seed int64) *DemoService {
	if rooms == nil {
		panic("RoomService cannot be nil for DemoService")
	}
	if pause <= 0 {
		pause = DefaultDemoRoundPause
	}
	return &DemoService{
		rooms: rooms,
		pause: pause,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// EnsureDemoRoom 返回演示房间，不存在时创建，并补齐缺失的机器人成员。
func (s *DemoService) EnsureDemoRoom(ctx context.Context) (*domain.Room, error) {
	logCtx := logrus.WithField("operation", "EnsureDemoRoom")

	room, err := s.rooms.store.FindDemoRoom(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		now := s.rooms.now()
		room = &domain.Room{
			ID:                 uuid.NewString(),
			Name:               demoRoomName,
			OwnerAccountID:     demoBots[0].accountID,
			AutoCompleteVoting: true,
			VotingCategorized:  true,
			IsDemoRoom:         true,
			CreatedAt:          now,
			LastActivityAt:     now,
		}
		room.SetScale(domain.DefaultScale())
		room.SetPermissions(domain.DefaultPermissions())
		if err := s.rooms.store.CreateRoom(ctx, room); err != nil {
			logCtx.WithError(err).Error("Failed to create demo room")
			return nil, ErrInternalServer
		}
		logCtx.WithField("room_id", room.ID).Info("Demo room created")
	} else if err != nil {
		logCtx.WithError(err).Error("Failed to find demo room")
		return nil, ErrInternalServer
	}

	err = s.rooms.mutate(ctx, room.ID, "demo_bots_joined", func(tx repository.RoomTx, m *mutation) error {
		members, err := tx.Memberships()
		if err != nil {
			return err
		}
		added := 0
		for i, bot := range demoBots {
			if _, err := tx.FindMembership(bot.accountID); err == nil {
				continue
			} else if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			role := domain.RoleParticipant
			if i == 0 {
				role = domain.RoleOwner
			}
			member := domain.Membership{
				ID:        uuid.NewString(),
				RoomID:    room.ID,
				AccountID: bot.accountID,
				Name:      bot.name,
				IsBot:     true,
				Role:      role,
				JoinedAt:  s.rooms.now(),
				JoinOrder: nextJoinOrder(members),
			}
			if err := tx.SaveMembership(&member); err != nil {
				return err
			}
			members = append(members, member)
			added++
		}
		if added == 0 {
			m.noop = true
			return nil
		}
		r := tx.Room()
		r.LastActivityAt = s.rooms.now()
		return tx.SaveRoom(r)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// RunDemoCycle 推进一次演示: 翻牌后等待一段时间重置；
// 投票中随机让一个还没投票的机器人投票；机器人都投完但真人迟迟不投时由房主机器人翻牌。
func (s *DemoService) RunDemoCycle(ctx context.Context) error {
	room, err := s.EnsureDemoRoom(ctx)
	if err != nil {
		return err
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": room.ID, "operation": "RunDemoCycle"})

	snap, err := s.rooms.store.Snapshot(ctx, room.ID)
	if err != nil {
		return mapRepoError(logCtx, err)
	}
	owner := demoBots[0].accountID
	idle := s.rooms.now().Sub(snap.Room.LastActivityAt)

	// 1. 结果展示结束后开始新一轮
	if snap.Room.IsGameOver {
		if idle < s.pause {
			return nil
		}
		logCtx.Debug("Resetting demo round")
		return s.rooms.ResetGame(ctx, room.ID, owner)
	}

	// 2. 找出还没投票的机器人
	voted := make(map[string]bool, len(snap.Votes))
	for i := range snap.Votes {
		if snap.Votes[i].HasVoted() {
			voted[snap.Votes[i].MembershipID] = true
		}
	}
	var pending []demoBot
	for _, m := range snap.Memberships {
		if !m.IsBot || m.IsSpectator || voted[m.ID] {
			continue
		}
		if bot, ok := lookupBot(m.AccountID); ok {
			pending = append(pending, bot)
		}
	}

	if len(pending) == 0 {
		if !snap.Room.CountdownArmed() && idle >= s.pause {
			logCtx.Debug("Demo bots are done, revealing without waiting for everyone")
			return s.rooms.RevealCards(ctx, room.ID, owner)
		}
		return nil
	}

	// 3. 随机一个机器人按概率投票
	bot, card, vote := s.pick(pending, snap.Room.Scale())
	if !vote {
		return nil
	}
	logCtx.WithFields(logrus.Fields{"bot": bot.name, "card": card}).Debug("Demo bot voting")
	return s.rooms.CastVote(ctx, room.ID, bot.accountID, card)
}

func (s *DemoService) pick(pending []demoBot, scale domain.VotingScale) (demoBot, string, bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	bot := pending[s.rng.Intn(len(pending))]
	if s.rng.Float64() >= demoVoteChance {
		return bot, "", false
	}

	available := make(map[string]bool, len(scale.Cards))
	for _, c := range scale.Cards {
		available[c] = true
	}
	var choices []string
	for _, c := range bot.preferred {
		if available[c] {
			choices = append(choices, c)
		}
	}
	if len(choices) == 0 {
		for _, c := range scale.Cards {
			if c != domain.CardCoffee && c != domain.CardInfinity {
				choices = append(choices, c)
			}
		}
	}
	if len(choices) == 0 {
		return bot, "", false
	}
	return bot, choices[s.rng.Intn(len(choices))], true
}

func lookupBot(accountID string) (demoBot, bool) {
	for _, b := range demoBots {
		if b.accountID == accountID {
			return b, true
		}
	}
	return demoBot{}, false
}
