package browser

import (
	"context"
	"log/slog"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/navigator"
)

// RunnerFactory 为每个标签页构造一个独立的模态框状态机，实现
// apply.RunnerFactory。
type RunnerFactory struct {
	classify *navigator.Classifier
	cfg      navigator.Config
	clock    apply.Clock
	logger   *slog.Logger
}

func NewRunnerFactory(answers navigator.Answers, cfg navigator.Config, clock apply.Clock, logger *slog.Logger) *RunnerFactory {
	return &RunnerFactory{
		classify: navigator.NewClassifier(answers),
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

func (f *RunnerFactory) RunnerFor(tab apply.TabHandle) apply.Runner {
	t, ok := tab.(*Tab)
	if !ok {
		// 只会在测试用假标签页误接到生产工厂时出现。
		f.logger.Error("runner factory received non-browser tab", slog.String("tab_id", tab.ID()))
		return noopRunner{}
	}
	log := f.logger.With(slog.String("tab_id", t.id))
	return navigator.New(NewPageDriver(t, log), f.classify, f.clock, f.cfg, log)
}

type noopRunner struct{}

func (noopRunner) Run(context.Context, apply.Job) apply.Result {
	return apply.Result{Applied: false, Error: "no page driver for tab"}
}
