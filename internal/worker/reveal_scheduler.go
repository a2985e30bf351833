package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"agilekit/internal/tasks"
)

// taskEnqueuer 是 asynq.Client 中用到的部分
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// taskDeleter 是 asynq.Inspector 中用到的部分
type taskDeleter interface {
	DeleteTask(queue, id string) error
}

// AsynqRevealScheduler 用 asynq 延迟任务实现 service.RevealScheduler，进程重启后倒计时依然有效。
// 任务 ID 由房间和倒计时开始时间决定，同一轮倒计时重复 Arm 只会保留一个任务。
type AsynqRevealScheduler struct {
	client    taskEnqueuer
	inspector taskDeleter
	queue     string
}

// NewAsynqRevealScheduler 创建 AsynqRevealScheduler 实例
func NewAsynqRevealScheduler(client *asynq.Client, inspector *asynq.Inspector) *AsynqRevealScheduler {
	if client == nil || inspector == nil {
		panic("asynq client and inspector cannot be nil for AsynqRevealScheduler")
	}
	return newAsynqRevealScheduler(client, inspector)
}

func newAsynqRevealScheduler(client taskEnqueuer, inspector taskDeleter) *AsynqRevealScheduler {
	return &AsynqRevealScheduler{client: client, inspector: inspector, queue: tasks.QueueCritical}
}

// Arm 登记一个 delay 之后执行的自动翻牌任务
func (s *AsynqRevealScheduler) Arm(ctx context.Context, roomID string, startedAt time.Time, delay time.Duration) error {
	taskID := tasks.AutoRevealTaskID(roomID, startedAt)
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "task_id": taskID, "delay_ms": delay.Milliseconds()})

	task, err := tasks.NewAutoRevealTask(roomID, startedAt)
	if err != nil {
		return fmt.Errorf("create auto reveal task: %w", err)
	}

	// 1. 同一 ID 的旧任务先删除
	if err := s.delete(taskID); err != nil {
		logCtx.WithError(err).Warn("Failed to delete previous auto-reveal task")
	}

	// 2. 入队
	opts := []asynq.Option{asynq.Queue(s.queue), asynq.ProcessIn(delay)}
	_, err = s.client.EnqueueContext(ctx, task, append(opts, asynq.TaskID(taskID))...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// 旧任务正在执行 (提前触发后重新调度)，不带 ID 再入队一次
		logCtx.Debug("Auto-reveal task id is busy, enqueueing without id")
		_, err = s.client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return fmt.Errorf("enqueue auto reveal task %s: %w", taskID, err)
	}
	return nil
}

// Cancel 删除对应轮次的自动翻牌任务。任务不存在不算错误。
func (s *AsynqRevealScheduler) Cancel(ctx context.Context, roomID string, startedAt time.Time) error {
	taskID := tasks.AutoRevealTaskID(roomID, startedAt)
	if err := s.delete(taskID); err != nil {
		return fmt.Errorf("delete auto reveal task %s: %w", taskID, err)
	}
	return nil
}

func (s *AsynqRevealScheduler) delete(taskID string) error {
	err := s.inspector.DeleteTask(s.queue, taskID)
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}
