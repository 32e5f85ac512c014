package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

// ErrTriggerNotFound 表示页面上找不到申请入口。
var ErrTriggerNotFound = errors.New("apply trigger not found on page")

// State 是模态框导航状态机的状态。
type State string

const (
	StateNotStarted          State = "not_started"
	StateModalOpen           State = "modal_open"
	StateFilling             State = "filling"
	StateAwaitingManualInput State = "awaiting_manual_input"
	StatePaginating          State = "paginating"
	StateSubmitting          State = "submitting"
	StateApplied             State = "applied"
	StateFailed              State = "failed"
	StateTimedOut            State = "timed_out"
)

// Config 集中了状态机的节奏参数。数值沿用扩展时代实测稳定的取值，
// 目标站点对操作频率敏感，调小要谨慎。
type Config struct {
	FlowTimeout       time.Duration
	MaxPages          int
	AfterTriggerDelay time.Duration
	AfterNextDelay    time.Duration
	AfterSubmitDelay  time.Duration
	FillStepDelay     time.Duration
	ScanDelay         time.Duration
	ManualPollDelay   time.Duration
}

// DefaultConfig 返回默认节奏参数。
func DefaultConfig() Config {
	return Config{
		FlowTimeout:       5 * time.Minute,
		MaxPages:          10,
		AfterTriggerDelay: 5 * time.Second,
		AfterNextDelay:    4 * time.Second,
		AfterSubmitDelay:  6 * time.Second,
		FillStepDelay:     400 * time.Millisecond,
		ScanDelay:         time.Second,
		ManualPollDelay:   2 * time.Second,
	}
}

// Navigator 驱动单个标签页内的多步申请模态框：循环采样 DOM 快照、
// 自动填表、按优先级点击动作按钮，直到进入终态。任何内部错误都会被
// 转成结构化的 Result，绝不向协调器抛异常。
type Navigator struct {
	driver   PageDriver
	classify *Classifier
	locate   *Locator
	clock    apply.Clock
	cfg      Config
	logger   *slog.Logger

	state State
	// observer 仅测试使用，记录状态轨迹。
	observer func(State)
}

func New(driver PageDriver, classify *Classifier, clock apply.Clock, cfg Config, logger *slog.Logger) *Navigator {
	return &Navigator{
		driver:   driver,
		classify: classify,
		locate:   NewLocator(),
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		state:    StateNotStarted,
	}
}

// Observe 注册状态回调（测试用）。
func (n *Navigator) Observe(fn func(State)) { n.observer = fn }

func (n *Navigator) transition(to State) {
	n.logger.Debug("modal state transition",
		slog.String("from", string(n.state)),
		slog.String("to", string(to)),
	)
	n.state = to
	if n.observer != nil {
		n.observer(to)
	}
}

// Run 实现 apply.Runner。
func (n *Navigator) Run(ctx context.Context, job apply.Job) (res apply.Result) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("modal navigation panic recovered", slog.Any("panic", r))
			n.transition(StateFailed)
			res = apply.Result{Applied: false, Error: fmt.Sprint(r)}
		}
	}()

	log := n.logger.With(slog.String("job_id", job.JobID))
	n.driver.SetStatus(ctx, "Starting application", false)

	if err := n.driver.OpenModal(ctx); err != nil {
		if errors.Is(err, ErrTriggerNotFound) {
			n.transition(StateFailed)
			return apply.Result{Applied: false, Reason: apply.ReasonTriggerNotFound}
		}
		n.transition(StateFailed)
		return apply.Result{Applied: false, Error: err.Error()}
	}
	n.transition(StateModalOpen)

	if err := n.clock.Sleep(ctx, n.cfg.AfterTriggerDelay); err != nil {
		return n.failed(err)
	}

	deadline := n.clock.Now().Add(n.cfg.FlowTimeout)
	pages := 0

	for n.clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return n.failed(err)
		}

		snap, err := n.driver.Snapshot(ctx)
		if err != nil {
			return n.failed(err)
		}

		if err := n.fillPass(ctx, snap); err != nil {
			return n.failed(err)
		}
		if err := n.clock.Sleep(ctx, n.cfg.ScanDelay); err != nil {
			return n.failed(err)
		}

		// 填表可能解锁了新按钮，重新采样后再决策。
		snap, err = n.driver.Snapshot(ctx)
		if err != nil {
			return n.failed(err)
		}

		if act, ok := n.locate.Locate(snap.Buttons); ok {
			switch act.Kind {
			case ActionSubmit:
				return n.submit(ctx, act, log)
			case ActionReview, ActionNext:
				if pages >= n.cfg.MaxPages {
					return n.abandon(ctx, log)
				}
				n.transition(StatePaginating)
				n.driver.SetStatus(ctx, "Advancing: "+act.Label, false)
				if err := n.driver.ClickButton(ctx, act.Label); err != nil {
					log.Warn("advance click failed", slog.Any("error", err))
					n.transition(StateFailed)
					return apply.Result{Applied: false, Reason: apply.ReasonClickFailed, Error: err.Error()}
				}
				pages++
				if err := n.clock.Sleep(ctx, n.cfg.AfterNextDelay); err != nil {
					return n.failed(err)
				}
				continue
			}
		}

		// 没有可点的按钮：要么缺必填项等人工补齐，要么模态框已消失。
		if snap.HasErrors || hasEmptyRequired(snap.Fields) {
			n.transition(StateAwaitingManualInput)
			n.driver.SetStatus(ctx, "Waiting for manual input (fill fields to continue)", true)
			if err := n.clock.Sleep(ctx, n.cfg.ManualPollDelay); err != nil {
				return n.failed(err)
			}
			continue
		}

		if !snap.ModalOpen {
			// 没有显式提交但模态框消失了，按已完成对待并带上原因标记。
			n.driver.SetStatus(ctx, "Modal closed", false)
			n.transition(StateApplied)
			return apply.Result{Applied: true, Reason: apply.ReasonModalClosed}
		}

		if err := n.clock.Sleep(ctx, n.cfg.ManualPollDelay); err != nil {
			return n.failed(err)
		}
	}

	n.transition(StateTimedOut)
	return apply.Result{Applied: false, Reason: apply.ReasonTimeout}
}

func (n *Navigator) failed(err error) apply.Result {
	n.transition(StateFailed)
	return apply.Result{Applied: false, Error: err.Error()}
}

func (n *Navigator) fillPass(ctx context.Context, snap *Snapshot) error {
	n.transition(StateFilling)
	for _, f := range snap.Fields {
		fill, ok := n.classify.Classify(f)
		if !ok {
			continue
		}

		var err error
		switch fill.Kind {
		case FillChooseRadio:
			n.driver.SetStatus(ctx, "Filling: "+fill.Value, false)
			err = n.driver.ChooseRadio(ctx, f.Ref, fill.Value)
		case FillSelectOption:
			n.driver.SetStatus(ctx, "Selecting: "+fill.Value, false)
			err = n.driver.SelectOption(ctx, f.Ref, fill.Value)
		case FillSetText:
			n.driver.SetStatus(ctx, "Typing: "+fill.Value, false)
			err = n.driver.SetText(ctx, f.Ref, fill.Value)
		}
		if err != nil {
			// 单个字段填不上不终止流程，留给人工。
			n.logger.Warn("autofill failed",
				slog.String("label", f.Label),
				slog.Any("error", err),
			)
			continue
		}
		if err := n.clock.Sleep(ctx, n.cfg.FillStepDelay); err != nil {
			return err
		}
	}
	return nil
}

func (n *Navigator) submit(ctx context.Context, act Action, log *slog.Logger) apply.Result {
	n.transition(StateSubmitting)
	n.driver.SetStatus(ctx, "Submitting application", false)
	if err := n.driver.ClickButton(ctx, act.Label); err != nil {
		log.Warn("submit click failed", slog.Any("error", err))
		n.transition(StateFailed)
		return apply.Result{Applied: false, Reason: apply.ReasonClickFailed, Error: err.Error()}
	}
	if err := n.clock.Sleep(ctx, n.cfg.AfterSubmitDelay); err != nil {
		return n.failed(err)
	}
	// 收尾的确认弹层不影响结果，点不到也无妨。
	if _, err := n.driver.ClickMatching(ctx, `(?i)\bdone\b`); err != nil {
		log.Debug("done dismissal failed", slog.Any("error", err))
	}
	n.transition(StateApplied)
	return apply.Result{Applied: true}
}

// abandon 在翻页数超限时走弃单路径：关闭模态框并丢弃草稿。
func (n *Navigator) abandon(ctx context.Context, log *slog.Logger) apply.Result {
	log.Warn("page cap exceeded, abandoning application")
	n.driver.SetStatus(ctx, "Skipping: application has too many steps", true)
	if _, err := n.driver.Dismiss(ctx); err != nil {
		log.Debug("dismiss failed", slog.Any("error", err))
	}
	if err := n.clock.Sleep(ctx, time.Second); err != nil {
		return n.failed(err)
	}
	if _, err := n.driver.ClickMatching(ctx, `(?i)discard`); err != nil {
		log.Debug("discard failed", slog.Any("error", err))
	}
	n.transition(StateFailed)
	return apply.Result{Applied: false, Reason: apply.ReasonTooManySteps}
}

func hasEmptyRequired(fields []Field) bool {
	for _, f := range fields {
		if f.Required && !f.Filled {
			return true
		}
	}
	return false
}
