package worker

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"agilekit/internal/tasks"
)

// 周期任务的默认调度
const (
	RetentionSchedule = "0 3 * * *"
	DemoSchedule      = "@every 8s"
)

type periodicEntry struct {
	schedule string
	task     *asynq.Task
	opts     []asynq.Option
}

// PeriodicScheduler 负责注册并运行清理和演示的周期任务
type PeriodicScheduler struct {
	scheduler *asynq.Scheduler
	log       *logrus.Entry
}

// NewPeriodicScheduler 创建周期任务调度器。demoEnabled 为 false 时只注册清理任务。
func NewPeriodicScheduler(redisOpt asynq.RedisClientOpt, demoEnabled bool, logger *logrus.Logger) (*PeriodicScheduler, error) {
	logEntry := logger.WithField("component", "periodic_scheduler")
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(logEntry),
		LogLevel: asynq.WarnLevel,
	})

	entries := []periodicEntry{
		{RetentionSchedule, tasks.NewRetentionSweepTask(), []asynq.Option{asynq.Queue("low")}},
	}
	if demoEnabled {
		entries = append(entries, periodicEntry{DemoSchedule, tasks.NewDemoCycleTask(), []asynq.Option{asynq.Queue("default")}})
	}

	for _, e := range entries {
		entryID, err := scheduler.Register(e.schedule, e.task, e.opts...)
		if err != nil {
			return nil, err
		}
		logEntry.Infof("Periodic task %s registered with schedule '%s' (EntryID: %s)", e.task.Type(), e.schedule, entryID)
	}
	return &PeriodicScheduler{scheduler: scheduler, log: logEntry}, nil
}

// Start 在后台启动调度器，不阻塞
func (p *PeriodicScheduler) Start() error {
	p.log.Info("Asynq scheduler starting...")
	return p.scheduler.Start()
}

// Shutdown 停止调度器
func (p *PeriodicScheduler) Shutdown() {
	p.scheduler.Shutdown()
	p.log.Info("Asynq scheduler stopped.")
}
