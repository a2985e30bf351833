package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeAutoReveal     = "room:auto_reveal" // 自动翻牌倒计时到期
	TypeRetentionSweep = "room:retention"   // 清理长期不活跃的房间
	TypeDemoCycle      = "demo:cycle"       // 演示房间的机器人推进一步
)

// QueueCritical 是自动翻牌任务使用的队列，优先级高于周期任务
const QueueCritical = "critical"

// AutoRevealPayload 定义了自动翻牌任务的数据结构。
// StartedAtMillis 用于识别过期回调: 房间倒计时已变化时任务不做任何事。
type AutoRevealPayload struct {
	RoomID          string `json:"roomId"`
	StartedAtMillis int64  `json:"startedAtMillis"`
}

// StartedAt 返回倒计时开始时间
func (p AutoRevealPayload) StartedAt() time.Time {
	return time.UnixMilli(p.StartedAtMillis).UTC()
}

// AutoRevealTaskID 返回同一轮倒计时的确定性任务 ID，重复 Arm 不会产生两个任务
func AutoRevealTaskID(roomID string, startedAt time.Time) string {
	return fmt.Sprintf("autoreveal:%s:%d", roomID, startedAt.UnixMilli())
}

// NewAutoRevealTask 创建一个新的自动翻牌任务
func NewAutoRevealTask(roomID string, startedAt time.Time) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(AutoRevealPayload{RoomID: roomID, StartedAtMillis: startedAt.UnixMilli()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAutoReveal, payloadBytes, asynq.MaxRetry(3)), nil
}

// ParseAutoRevealPayload 解析并校验自动翻牌任务的 payload
func ParseAutoRevealPayload(data []byte) (AutoRevealPayload, error) {
	var payload AutoRevealPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, err
	}
	if payload.RoomID == "" || payload.StartedAtMillis <= 0 {
		return payload, fmt.Errorf("invalid auto reveal payload: room %q, startedAt %d", payload.RoomID, payload.StartedAtMillis)
	}
	return payload, nil
}

// NewRetentionSweepTask 创建清理任务，周期任务不需要 payload
func NewRetentionSweepTask() *asynq.Task {
	return asynq.NewTask(TypeRetentionSweep, nil, asynq.MaxRetry(1))
}

// NewDemoCycleTask 创建演示推进任务。错过的周期不需要补跑，因此不重试。
func NewDemoCycleTask() *asynq.Task {
	return asynq.NewTask(TypeDemoCycle, nil, asynq.MaxRetry(0), asynq.Timeout(5*time.Second))
}
