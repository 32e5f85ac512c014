package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TabHandle 标识一个由控制器打开的标签页。
type TabHandle interface {
	ID() string
}

// TabController 管理标签页生命周期。生产实现基于 rod，见 internal/browser。
type TabController interface {
	// OpenTab 打开一个不抢焦点的新标签页，不等待内容加载。
	OpenTab(ctx context.Context, url string) (TabHandle, error)
	// AwaitLoadComplete 等待页面加载完成；超时返回 false，调用方可继续。
	AwaitLoadComplete(ctx context.Context, tab TabHandle, timeout time.Duration) bool
	// InjectPageScript 把页面交互脚本注入标签页。失败按单个职位失败处理。
	InjectPageScript(ctx context.Context, tab TabHandle) error
	// CloseTab 尽力关闭标签页，失败只记日志。
	CloseTab(tab TabHandle)
}

// RunnerFactory 为标签页构造页面内的投递执行器。
type RunnerFactory interface {
	RunnerFor(tab TabHandle) Runner
}

// RunStore 是运行会话的持久化槽位，进程重启后据此恢复。
type RunStore interface {
	SaveSelection(ctx context.Context, sel Selection) error
	// BeginRun 写入运行元数据并清空当前运行日志。
	BeginRun(ctx context.Context, meta RunMeta) error
	// LoadRunMeta 返回活动运行的元数据，没有时返回 nil。
	LoadRunMeta(ctx context.Context) (*RunMeta, error)
	AppendRunSubmission(ctx context.Context, rec SubmissionRecord) error
	RunSubmissions(ctx context.Context) ([]SubmissionRecord, error)
	// ClearRun 清除运行元数据与日志槽位。
	ClearRun(ctx context.Context) error
	// RetireRun 把活动运行挪进待同步队列并释放活动槽位。中继确认前
	// 数据留在待同步队列里，新运行随时可以开始。
	RetireRun(ctx context.Context) error
	// PendingSyncRuns 返回中继尚未确认的运行。
	PendingSyncRuns(ctx context.Context) ([]PendingRun, error)
	// SetPendingSyncRuns 重写待同步队列（成功上报后移除对应条目）。
	SetPendingSyncRuns(ctx context.Context, runs []PendingRun) error
	// StopRequest 读取并消费跨进程的停止请求。
	StopRequest(ctx context.Context) (reason string, ok bool)
	CachedJobs(ctx context.Context) ([]Job, error)
}

// DirectoryLoader 提供候选人/对接人目录。
type DirectoryLoader interface {
	Directory(ctx context.Context) (Directory, error)
}

// Notifier 把运行进度推送给界面。
type Notifier interface {
	Progress(ctx context.Context, text string)
	Done(ctx context.Context, text string)
	Error(ctx context.Context, text string)
}

// Archiver 把确认的投递追加进累计台账。
type Archiver interface {
	ArchiveSubmission(ctx context.Context, rec SubmissionRecord) error
}

// Finalizing 聚合并导出一次运行的结果。
type Finalizing interface {
	Finalize(ctx context.Context) error
}

// Metrics 上报运行事件，生产实现见 internal/metrics。
type Metrics interface {
	SubmissionRecorded()
	JobFailed(reason string)
	RunFinished(status string)
}

// Timings 集中了协调器的等待参数。取值沿用扩展时代的实测值；
// PostApplyCooldown 偏长是为了避免目标站点把连续投递判定为异常活动。
type Timings struct {
	TabSettle           time.Duration
	TabLoadTimeout      time.Duration
	ReadyTimeout        time.Duration
	MessageTimeout      time.Duration
	RetryBackoff        time.Duration
	RetryMessageTimeout time.Duration
	PostApplyCooldown   time.Duration
	PostFailureCooldown time.Duration
}

// DefaultTimings 返回默认等待参数。
func DefaultTimings() Timings {
	return Timings{
		TabSettle:           time.Second,
		TabLoadTimeout:      15 * time.Second,
		ReadyTimeout:        10 * time.Second,
		MessageTimeout:      5 * time.Minute,
		RetryBackoff:        time.Second,
		RetryMessageTimeout: 2 * time.Minute,
		PostApplyCooldown:   25 * time.Second,
		PostFailureCooldown: time.Second,
	}
}

// runState 是一次运行的全部可变状态，由协调器独占，没有包级全局量。
type runState struct {
	status     Status
	stopReason string
	meta       RunMeta
	queue      []Job
	cursor     int
	// recorded 保证同一 jobId 在一次运行内只产生一条记录。
	recorded map[string]bool
	// activeTabID 至多一个，用于识别人为关闭标签页。
	activeTabID string
	// closingTabs 标记协调器自己发起的关闭，与人为关闭区分。
	closingTabs map[string]bool
}

// Coordinator 按队列顺序逐个驱动职位投递：开标签页、握手、下发指令、
// 记录结果、收尾导出。同一时刻只有一次运行、只处理一个职位。
type Coordinator struct {
	tabs      TabController
	runners   RunnerFactory
	store     RunStore
	directory DirectoryLoader
	jobs      *JobSource
	notifier  Notifier
	archive   Archiver
	finalizer Finalizing
	metrics   Metrics
	handshake *Handshake
	channel   *Channel
	clock     Clock
	timings   Timings
	baseURL   string
	logger    *slog.Logger

	mu sync.Mutex
	st runState
}

// CoordinatorOptions 汇集协调器的依赖。
type CoordinatorOptions struct {
	Tabs      TabController
	Runners   RunnerFactory
	Store     RunStore
	Directory DirectoryLoader
	Jobs      *JobSource
	Notifier  Notifier
	Archive   Archiver
	Finalizer Finalizing
	Metrics   Metrics
	Clock     Clock
	Timings   Timings
	BaseURL   string
	Logger    *slog.Logger
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		tabs:      opts.Tabs,
		runners:   opts.Runners,
		store:     opts.Store,
		directory: opts.Directory,
		jobs:      opts.Jobs,
		notifier:  opts.Notifier,
		archive:   opts.Archive,
		finalizer: opts.Finalizer,
		metrics:   opts.Metrics,
		handshake: NewHandshake(),
		channel:   NewChannel(),
		clock:     opts.Clock,
		timings:   opts.Timings,
		baseURL:   opts.BaseURL,
		logger:    opts.Logger,
		st: runState{
			status:      StatusIdle,
			recorded:    make(map[string]bool),
			closingTabs: make(map[string]bool),
		},
	}
}

// Status 返回当前状态与队列游标。
func (c *Coordinator) Status() (Status, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.status, c.st.cursor, len(c.st.queue)
}

// Start 开始一次运行并阻塞到运行结束（由 asynq 任务处理器调用）。
// 不在 Idle 状态时返回 ErrAlreadyRunning；选择缺失时返回
// ErrMissingSelection，两者都不会影响进行中的运行。
func (c *Coordinator) Start(ctx context.Context, sel Selection, explicit []Job) error {
	if sel.CandidateID == 0 || sel.EmployeeID == 0 {
		return ErrMissingSelection
	}

	c.mu.Lock()
	if c.st.status != StatusIdle {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.st = runState{
		status:      StatusStarting,
		recorded:    make(map[string]bool),
		closingTabs: make(map[string]bool),
	}
	c.mu.Unlock()

	log := c.logger.With(
		slog.Int("candidate_id", sel.CandidateID),
		slog.Int("employee_id", sel.EmployeeID),
	)

	if err := c.store.SaveSelection(ctx, sel); err != nil {
		c.failStart(ctx, "Failed to save selection")
		return fmt.Errorf("save selection: %w", err)
	}

	meta := NewRunMeta(c.clock.Now(), sel)
	if err := c.store.BeginRun(ctx, meta); err != nil {
		c.failStart(ctx, "Failed to begin run")
		return fmt.Errorf("begin run: %w", err)
	}

	queue, err := c.jobs.Resolve(ctx, explicit)
	if err != nil {
		c.failStart(ctx, "Failed to resolve job queue")
		return fmt.Errorf("resolve job queue: %w", err)
	}

	log = log.With(slog.String("run_id", meta.RunID))
	log.Info("apply run starting", slog.Int("queue_len", len(queue)))

	c.mu.Lock()
	c.st.meta = meta
	c.st.queue = queue
	// Starting 窗口内可能已被 Stop 置为 Stopping，不能覆盖。
	if c.st.status == StatusStarting {
		c.st.status = StatusRunning
	}
	c.mu.Unlock()

	c.runLoop(ctx, log)
	return nil
}

// Stop 请求停止运行。进行中的职位允许自然收尾，停止在下一个检查点生效。
func (c *Coordinator) Stop(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.status != StatusRunning && c.st.status != StatusStarting {
		return
	}
	c.st.status = StatusStopping
	c.st.stopReason = reason
	c.logger.Info("stop requested", slog.String("reason", reason))
}

// TabClosed 由标签页控制器在标签页消失时回调。当前活动标签页被外部
// 关闭视同人为取消，触发停止。
func (c *Coordinator) TabClosed(tabID string) {
	c.mu.Lock()
	if c.st.closingTabs[tabID] {
		delete(c.st.closingTabs, tabID)
		c.mu.Unlock()
		return
	}
	active := c.st.activeTabID == tabID && tabID != ""
	c.mu.Unlock()
	if active {
		c.Stop("tab closed manually")
	}
}

// RecoverPending 在进程启动时检查上一次运行的残留：有元数据且日志非空
// 说明运行被中断，先补一次收尾再接受新工作。
func (c *Coordinator) RecoverPending(ctx context.Context) error {
	meta, err := c.store.LoadRunMeta(ctx)
	if err != nil {
		return fmt.Errorf("load run meta: %w", err)
	}
	if meta == nil {
		return nil
	}
	c.logger.Warn("found interrupted run, finalizing before accepting work",
		slog.String("run_id", meta.RunID),
	)
	return c.finalizer.Finalize(ctx)
}

func (c *Coordinator) resetIdle() {
	c.mu.Lock()
	c.st.status = StatusIdle
	c.mu.Unlock()
}

// failStart 回到 Idle 并把启动失败推给界面。
func (c *Coordinator) failStart(ctx context.Context, text string) {
	c.resetIdle()
	c.notifier.Error(ctx, text)
}

func (c *Coordinator) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.status == StatusRunning
}

func (c *Coordinator) runLoop(ctx context.Context, log *slog.Logger) {
	defer func() {
		if err := c.finalizer.Finalize(ctx); err != nil {
			log.Error("finalize run failed", slog.Any("error", err))
			c.notifier.Error(ctx, "Run finalization failed")
		}

		c.mu.Lock()
		reason := c.st.stopReason
		status := c.st.status
		c.st.status = StatusIdle
		c.st.activeTabID = ""
		c.mu.Unlock()

		if status == StatusStopping && reason != "" {
			c.notifier.Done(ctx, "stopped: "+reason)
			c.metrics.RunFinished("stopped")
		} else {
			c.notifier.Done(ctx, "Run finished")
			c.metrics.RunFinished("completed")
		}
		log.Info("apply run finished", slog.String("reason", reason))
	}()

	for {
		// 停止请求只在这里生效：进行中的职位允许跑完。
		if reason, ok := c.store.StopRequest(ctx); ok {
			c.Stop(reason)
		}
		if err := ctx.Err(); err != nil {
			c.Stop("context cancelled")
		}
		if !c.running() {
			return
		}

		c.mu.Lock()
		if c.st.cursor >= len(c.st.queue) {
			c.st.status = StatusCompleted
			c.mu.Unlock()
			return
		}
		job := c.st.queue[c.st.cursor]
		cursor := c.st.cursor
		total := len(c.st.queue)
		c.mu.Unlock()

		jobLog := log.With(
			slog.String("job_id", job.JobID),
			slog.Int("position", cursor+1),
			slog.Int("total", total),
		)
		c.processJob(ctx, job, jobLog)

		c.mu.Lock()
		c.st.cursor++
		c.mu.Unlock()
	}
}

// processJob 处理单个职位。任何一步失败都只记录并跳过，绝不中断整次运行。
func (c *Coordinator) processJob(ctx context.Context, job Job, log *slog.Logger) {
	tab, err := c.tabs.OpenTab(ctx, job.JobURL(c.baseURL))
	if err != nil {
		log.Error("open tab failed", slog.Any("error", err))
		c.metrics.JobFailed("open_tab")
		return
	}

	tabID := tab.ID()
	c.mu.Lock()
	c.st.activeTabID = tabID
	c.mu.Unlock()

	defer func() {
		c.channel.Detach(tabID)
		c.mu.Lock()
		c.st.closingTabs[tabID] = true
		c.st.activeTabID = ""
		c.mu.Unlock()
		c.tabs.CloseTab(tab)
	}()

	if err := c.clock.Sleep(ctx, c.timings.TabSettle); err != nil {
		return
	}

	if !c.tabs.AwaitLoadComplete(ctx, tab, c.timings.TabLoadTimeout) {
		// advisory：页面可能仍在加载，照常注入。
		log.Warn("tab load not complete before timeout")
	}

	// 先登记等待条目，避免注入后的就绪信号竞争丢失。
	c.handshake.Expect(tabID)

	if err := c.tabs.InjectPageScript(ctx, tab); err != nil {
		log.Error("inject page script failed", slog.Any("error", err))
		c.metrics.JobFailed("injection")
		// 没人会再等这个标签页的就绪信号，条目必须随之回收。
		c.handshake.Forget(tabID)
		return
	}

	agent := StartAgent(ctx, tabID, c.runners.RunnerFor(tab), c.handshake, c.logger)
	c.channel.Attach(tabID, agent)

	if !c.handshake.AwaitReady(ctx, tabID, c.timings.ReadyTimeout) {
		// advisory：脚本可能已在监听，只是信号丢了。
		log.Warn("page script did not signal ready in time")
	}

	resp, err := c.sendWithRetry(ctx, tabID, Request{Action: ActionTryApply, Job: job}, log)
	if err != nil {
		log.Error("tryApply delivery failed after retry", slog.Any("error", err))
		c.metrics.JobFailed("channel")
		_ = c.clock.Sleep(ctx, c.timings.PostFailureCooldown)
		return
	}

	if resp.OK && resp.Result.Applied {
		c.recordSubmission(ctx, job, resp.Result, log)
		// 提交成功后多等一段再关标签页，降低被站点风控盯上的概率。
		_ = c.clock.Sleep(ctx, c.timings.PostApplyCooldown)
		return
	}

	reason := resp.Result.Reason
	if reason == "" {
		reason = resp.Error
	}
	log.Info("job not applied",
		slog.String("reason", reason),
		slog.String("error", resp.Result.Error),
	)
	c.metrics.JobFailed(reason)
	_ = c.clock.Sleep(ctx, c.timings.PostFailureCooldown)
}

// sendWithRetry 下发 tryApply，失败后固定退避重试一次、用更短的超时。
// 第二次失败即为终态——投递有副作用，绝不盲目第三次。
func (c *Coordinator) sendWithRetry(ctx context.Context, tabID string, req Request, log *slog.Logger) (Response, error) {
	resp, err := c.channel.Send(ctx, tabID, req, c.timings.MessageTimeout)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Response{}, err
	}

	log.Warn("tryApply send failed, retrying once", slog.Any("error", err))
	if serr := c.clock.Sleep(ctx, c.timings.RetryBackoff); serr != nil {
		return Response{}, serr
	}
	return c.channel.Send(ctx, tabID, req, c.timings.RetryMessageTimeout)
}

func (c *Coordinator) recordSubmission(ctx context.Context, job Job, result Result, log *slog.Logger) {
	c.mu.Lock()
	meta := c.st.meta
	already := c.st.recorded[job.JobID]
	if !already {
		c.st.recorded[job.JobID] = true
	}
	c.mu.Unlock()

	if already {
		log.Warn("duplicate applied result for job, not double counting")
		return
	}

	dir, err := c.directory.Directory(ctx)
	if err != nil {
		log.Warn("load directory failed, recording ids only", slog.Any("error", err))
	}
	candidate := dir.Candidate(meta.Selection.CandidateID)
	employee := dir.Employee(meta.Selection.EmployeeID)

	rec := SubmissionRecord{
		CandidateID:   candidate.ID,
		CandidateName: candidate.Name,
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		Job:           job,
		Timestamp:     c.clock.Now(),
	}

	if err := c.store.AppendRunSubmission(ctx, rec); err != nil {
		log.Error("persist submission failed", slog.Any("error", err))
	}
	if err := c.archive.ArchiveSubmission(ctx, rec); err != nil {
		log.Error("archive submission failed", slog.Any("error", err))
	}
	c.metrics.SubmissionRecorded()

	if result.Reason == ReasonModalClosed {
		log.Info("applied (modal closed without explicit submit)")
	} else {
		log.Info("applied")
	}
	c.notifier.Progress(ctx, fmt.Sprintf(
		"Submitted %s at %s for candidate %s (id:%d)",
		job.Title, job.Company, candidate.Name, candidate.ID,
	))
}
