package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"agilekit/internal/tasks"
)

// AutoRevealer 执行到期的自动翻牌，由 service.RoomService 实现
type AutoRevealer interface {
	ExecuteAutoReveal(ctx context.Context, roomID string, startedAt time.Time) error
}

// RoomSweeper 清理长期不活跃的房间，由 service.RetentionService 实现
type RoomSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// DemoRunner 推进演示房间，由 service.DemoService 实现
type DemoRunner interface {
	RunDemoCycle(ctx context.Context) error
}

// taskLogger 返回带任务元信息的日志上下文
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID, _ := asynq.GetTaskID(ctx)
	queue, _ := asynq.GetQueueName(ctx)
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}

// AutoRevealHandler 处理自动翻牌任务
type AutoRevealHandler struct {
	rooms AutoRevealer
}

// NewAutoRevealHandler 创建 Handler 实例
func NewAutoRevealHandler(rooms AutoRevealer) *AutoRevealHandler {
	if rooms == nil {
		panic("AutoRevealer cannot be nil for AutoRevealHandler")
	}
	return &AutoRevealHandler{rooms: rooms}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *AutoRevealHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload, err := tasks.ParseAutoRevealPayload(t.Payload())
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": payload.RoomID, "started_at": payload.StartedAtMillis})

	if err := h.rooms.ExecuteAutoReveal(ctx, payload.RoomID, payload.StartedAt()); err != nil {
		logCtx.WithError(err).Error("Auto-reveal task failed")
		return fmt.Errorf("auto reveal room %s: %w", payload.RoomID, err)
	}
	logCtx.Debug("Auto-reveal task processed")
	return nil
}

// RetentionSweepHandler 处理周期性的房间清理任务
type RetentionSweepHandler struct {
	sweeper RoomSweeper
}

// NewRetentionSweepHandler 创建 Handler 实例
func NewRetentionSweepHandler(sweeper RoomSweeper) *RetentionSweepHandler {
	if sweeper == nil {
		panic("RoomSweeper cannot be nil for RetentionSweepHandler")
	}
	return &RetentionSweepHandler{sweeper: sweeper}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RetentionSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)
	logCtx.Info("Processing retention sweep task...")

	deleted, err := h.sweeper.Sweep(ctx)
	if err != nil {
		logCtx.WithError(err).WithField("deleted", deleted).Error("Retention sweep failed")
		return fmt.Errorf("retention sweep: %w", err)
	}
	logCtx.WithField("deleted", deleted).Info("Retention sweep task completed")
	return nil
}

// DemoCycleHandler 处理演示房间的周期推进任务
type DemoCycleHandler struct {
	demo DemoRunner
}

// NewDemoCycleHandler 创建 Handler 实例
func NewDemoCycleHandler(demo DemoRunner) *DemoCycleHandler {
	if demo == nil {
		panic("DemoRunner cannot be nil for DemoCycleHandler")
	}
	return &DemoCycleHandler{demo: demo}
}

// ProcessTask 实现 asynq.Handler 接口。失败只记录，不重试。
func (h *DemoCycleHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if err := h.demo.RunDemoCycle(ctx); err != nil {
		taskLogger(ctx, t).WithError(err).Warn("Demo cycle failed")
		return fmt.Errorf("demo cycle: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}
