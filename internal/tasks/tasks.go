package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"naval-battle/internal/domain"
)

// 任务类型常量
const (
	TypeMatchArchive = "match:archive" // 已结束对局的归档任务
)

// 队列名称，与 WorkerServer 的 Queues 配置对应
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// MatchArchivePayload 携带结束时的完整房间文档
type MatchArchivePayload struct {
	Room *domain.Room `json:"room"`
}

// NewMatchArchiveTask 创建一个归档任务
func NewMatchArchiveTask(room *domain.Room) (*asynq.Task, error) {
	if room == nil || room.ID == "" {
		return nil, fmt.Errorf("archive task requires a room")
	}
	payloadBytes, err := json.Marshal(MatchArchivePayload{Room: room})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive payload: %w", err)
	}
	return asynq.NewTask(TypeMatchArchive, payloadBytes), nil
}

// ArchiveTaskID 返回归档任务的唯一 ID，同一房间只会入队一次
func ArchiveTaskID(roomID string) string {
	return "archive:" + roomID
}

// enqueuer 是 *asynq.Client 中用到的部分
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ArchiveEnqueuer 把已结束的房间投递到归档队列
type ArchiveEnqueuer struct {
	client   enqueuer
	maxRetry int
}

// NewArchiveEnqueuer 创建 ArchiveEnqueuer 实例
func NewArchiveEnqueuer(client enqueuer) *ArchiveEnqueuer {
	if client == nil {
		panic("asynq client cannot be nil for ArchiveEnqueuer")
	}
	return &ArchiveEnqueuer{client: client, maxRetry: 5}
}

// Archive 入队归档任务。任务 ID 冲突说明已经入队过，视为成功。
func (e *ArchiveEnqueuer) Archive(ctx context.Context, room *domain.Room) error {
	task, err := NewMatchArchiveTask(room)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(ArchiveTaskID(room.ID)),
		asynq.Queue(QueueLow),
		asynq.MaxRetry(e.maxRetry),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("failed to enqueue archive task for room %s: %w", room.ID, err)
	}
	return nil
}
