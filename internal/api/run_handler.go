package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/api/middleware"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/errcode"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/tasks"
)

// RunControlStore 是控制面需要的运行槽位读写面，生产实现是 store.Client。
// 运行元数据只在运行活动（或被中断）期间存在；中继未确认的历史运行
// 在待同步队列里，不影响新运行的启动。
type RunControlStore interface {
	LoadRunMeta(ctx context.Context) (*apply.RunMeta, error)
	RunSubmissions(ctx context.Context) ([]apply.SubmissionRecord, error)
	PendingSyncRuns(ctx context.Context) ([]apply.PendingRun, error)
	RequestStop(ctx context.Context, reason string) error
	SaveCachedJobs(ctx context.Context, jobs []apply.Job) error
}

// TaskEnqueuer 抽象 asynq 客户端的入队面。
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RunHandler 是运行控制面：接收启动/停止指令、暴露运行状态与职位队列。
// 真正的投递在 worker 进程里执行，这里只做校验与入队。
type RunHandler struct {
	kv          RunControlStore
	jobs        *apply.JobSource
	asynqClient TaskEnqueuer
}

func NewRunHandler(kv RunControlStore, jobs *apply.JobSource, asynqClient TaskEnqueuer) *RunHandler {
	return &RunHandler{kv: kv, jobs: jobs, asynqClient: asynqClient}
}

type startRunRequest struct {
	CandidateID int         `json:"candidateId"`
	EmployeeID  int         `json:"employeeId"`
	Jobs        []apply.Job `json:"jobs,omitempty"`
}

// StartRun 校验选择项并投递 apply:run 任务。有运行在途时返回 409，
// 留给 worker 的状态机兜底同类校验。
func (h *RunHandler) StartRun(c *gin.Context) {
	log := middleware.LoggerFromContext(c)

	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if req.CandidateID <= 0 || req.EmployeeID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "candidate and employee must both be selected",
			"code":  errcode.MissingSelection,
		})
		return
	}

	meta, err := h.kv.LoadRunMeta(c.Request.Context())
	if err != nil {
		log.Error("load run meta failed", "error", err)
		Internal(c, "storage unavailable")
		return
	}
	if meta != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": "a run is already in progress",
			"code":  errcode.AlreadyRunning,
			"runId": meta.RunID,
		})
		return
	}

	task, err := tasks.NewApplyRunTask(tasks.ApplyRunPayload{
		CandidateID:   req.CandidateID,
		EmployeeID:    req.EmployeeID,
		Jobs:          req.Jobs,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		log.Error("build run task failed", "error", err)
		Internal(c, "failed to build run task")
		return
	}
	info, err := h.asynqClient.Enqueue(task)
	if err != nil {
		log.Error("enqueue run task failed", "error", err)
		Internal(c, "failed to enqueue run")
		return
	}

	log.Info("run enqueued",
		"task_id", info.ID,
		"candidate_id", req.CandidateID,
		"employee_id", req.EmployeeID,
		"explicit_jobs", len(req.Jobs),
	)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "taskId": info.ID})
}

type stopRunRequest struct {
	Reason string `json:"reason"`
}

// StopRun 写入停止槽位，worker 在当前职位收尾后消费它。
func (h *RunHandler) StopRun(c *gin.Context) {
	var req stopRunRequest
	// 空 body 等价于不带原因的停止。
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "stop requested"
	}

	if err := h.kv.RequestStop(c.Request.Context(), req.Reason); err != nil {
		middleware.LoggerFromContext(c).Error("request stop failed", "error", err)
		Internal(c, "storage unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RunStatus 报告是否有运行在途以及已提交数量。
func (h *RunHandler) RunStatus(c *gin.Context) {
	ctx := c.Request.Context()
	meta, err := h.kv.LoadRunMeta(ctx)
	if err != nil {
		middleware.LoggerFromContext(c).Error("load run meta failed", "error", err)
		Internal(c, "storage unavailable")
		return
	}
	if meta == nil {
		// 顺带报告待同步积压，运维能看出中继是不是一直没恢复。
		pending, err := h.kv.PendingSyncRuns(ctx)
		if err != nil {
			middleware.LoggerFromContext(c).Warn("load pending sync runs failed", "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"running": false, "unsyncedRuns": len(pending)})
		return
	}

	subs, err := h.kv.RunSubmissions(ctx)
	if err != nil {
		middleware.LoggerFromContext(c).Error("load run log failed", "error", err)
		Internal(c, "storage unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"running":   true,
		"runId":     meta.RunID,
		"startedAt": meta.StartedAt,
		"selection": meta.Selection,
		"submitted": len(subs),
	})
}

// ListJobs 返回下一次运行将要处理的队列（显式列表之外的解析结果）。
func (h *RunHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.Resolve(c.Request.Context(), nil)
	if err != nil {
		// 没有缓存也没有兜底文件时队列就是空的，不算错误。
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusOK, gin.H{"jobs": []apply.Job{}})
			return
		}
		middleware.LoggerFromContext(c).Error("resolve jobs failed", "error", err)
		Internal(c, "failed to resolve job queue")
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

type loadJobsRequest struct {
	Jobs []apply.Job `json:"jobs"`
}

// LoadJobs 覆盖缓存的职位队列，主要用于调试和外部抓取器回灌。
func (h *RunHandler) LoadJobs(c *gin.Context) {
	var req loadJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if len(req.Jobs) == 0 {
		BadRequest(c, "jobs must not be empty")
		return
	}
	if err := h.kv.SaveCachedJobs(c.Request.Context(), req.Jobs); err != nil {
		middleware.LoggerFromContext(c).Error("save cached jobs failed", "error", err)
		Internal(c, "storage unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(req.Jobs)})
}
