package service

import (
	"context"
	"errors"
	"time"

	"agilekit/internal/clock"
	"agilekit/internal/repository"

	"github.com/sirupsen/logrus"
)

// DefaultRetention 是不活跃房间的保留时长
const DefaultRetention = 5 * 24 * time.Hour

const retentionBatchSize = 100

// RetentionService 清理长时间不活跃的房间 (演示房间除外)
type RetentionService struct {
	store     repository.RoomStore
	clock     clock.Clock
	retention time.Duration
}

func NewRetentionService(store repository.RoomStore, clk clock.Clock, retention time.Duration) *RetentionService {
	if store == nil {
		panic("RoomStore cannot be nil for RetentionService")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RetentionService{store: store, clock: clk, retention: retention}
}

// Sweep 删除 LastActivityAt 早于保留期的房间及其投票、成员和议题，返回删除数量。
func (s *RetentionService) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().UTC().Add(-s.retention)
	logCtx := logrus.WithFields(logrus.Fields{"operation": "RetentionSweep", "cutoff": cutoff})

	deleted := 0
	for {
		rooms, err := s.store.FindInactiveRooms(ctx, cutoff, retentionBatchSize)
		if err != nil {
			logCtx.WithError(err).Error("Failed to list inactive rooms")
			return deleted, ErrInternalServer
		}
		for _, room := range rooms {
			if room.IsDemoRoom {
				continue
			}
			if err := s.store.DeleteRoomCascade(ctx, room.ID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				logCtx.WithError(err).WithField("room_id", room.ID).Error("Failed to delete inactive room")
				return deleted, ErrInternalServer
			}
			deleted++
		}
		if len(rooms) < retentionBatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
	}

	logCtx.WithField("deleted", deleted).Info("Inactive room sweep finished")
	return deleted, nil
}
