package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"
	"naval-battle/internal/tasks"
)

// MatchArchiveHandler 处理对局归档任务
type MatchArchiveHandler struct {
	matchRepo repository.MatchRepository
	now       func() time.Time
}

// NewMatchArchiveHandler 创建 Handler 实例
func NewMatchArchiveHandler(matchRepo repository.MatchRepository) *MatchArchiveHandler {
	if matchRepo == nil {
		panic("MatchRepository cannot be nil for MatchArchiveHandler")
	}
	return &MatchArchiveHandler{matchRepo: matchRepo, now: time.Now}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *MatchArchiveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})

	var payload tasks.MatchArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	record, err := domain.NewMatchRecord(payload.Room, h.now().UTC())
	if err != nil {
		logCtx.WithError(err).Error("Archive payload does not describe a finished match")
		return fmt.Errorf("invalid archive payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", record.RoomID)

	if err := h.matchRepo.Save(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Info("Match already archived")
			return nil
		}
		logCtx.WithError(err).Error("Failed to save match record")
		return fmt.Errorf("failed to save match %s: %w", record.RoomID, err)
	}

	logCtx.WithFields(logrus.Fields{
		"winner":       record.Winner,
		"attack_count": record.AttackCount,
	}).Info("Match archived")
	return nil
}
