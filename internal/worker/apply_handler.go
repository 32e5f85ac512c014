package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/tasks"
)

// RunStarter 是协调器的启动面，生产实现是 apply.Coordinator。
type RunStarter interface {
	Start(ctx context.Context, sel apply.Selection, explicit []apply.Job) error
}

// ApplyTaskHandler 负责消费投递运行任务。队列并发固定为 1，浏览器
// 同一时刻只服务一次运行。
type ApplyTaskHandler struct {
	coordinator RunStarter
	logger      *slog.Logger
}

// NewApplyTaskHandler 创建任务处理器。
func NewApplyTaskHandler(coordinator RunStarter, logger *slog.Logger) *ApplyTaskHandler {
	return &ApplyTaskHandler{coordinator: coordinator, logger: logger}
}

// ProcessTask 实现 asynq.Handler。整次运行都在这次调用里完成，收尾
// （导出 + 中继）由协调器自己负责。
func (h *ApplyTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.ApplyRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("unmarshal apply run payload: %w", asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("candidate_id", payload.CandidateID),
		slog.Int("employee_id", payload.EmployeeID),
	)
	log.Info("Starting apply run task...")

	sel := apply.Selection{
		CandidateID: payload.CandidateID,
		EmployeeID:  payload.EmployeeID,
	}
	err := h.coordinator.Start(ctx, sel, payload.Jobs)
	switch {
	case err == nil:
		log.Info("apply run finished")
		return nil
	case errors.Is(err, apply.ErrAlreadyRunning):
		// 重复入队不算故障，丢弃即可。
		log.Warn("apply run already in progress, dropping task")
		return nil
	case errors.Is(err, apply.ErrMissingSelection):
		log.Warn("apply run rejected: missing selection")
		return fmt.Errorf("missing selection: %w", asynq.SkipRetry)
	default:
		log.Error("apply run failed", slog.Any("error", err))
		return err
	}
}
