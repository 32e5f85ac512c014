package apply

import (
	"context"
	"fmt"
	"log/slog"
)

// Exporter 把运行导出文档写到可下载的位置（本地目录 + 对象存储）。
type Exporter interface {
	ExportRun(ctx context.Context, doc RunExport) (string, error)
}

// RelayPusher 把一次运行的投递批量转发给中继服务。
type RelayPusher interface {
	PushRun(ctx context.Context, meta RunMeta, dir Directory, subs []SubmissionRecord) error
}

// RunFinalizer 聚合运行结果：始终导出，尽力转发中继。中继失败不算
// 运行失败——运行挪进待同步队列等下次收尾重试，活动槽位立即释放，
// 新的运行不受影响。
type RunFinalizer struct {
	store     RunStore
	directory DirectoryLoader
	exporter  Exporter
	relay     RelayPusher
	clock     Clock
	logger    *slog.Logger
}

func NewRunFinalizer(store RunStore, directory DirectoryLoader, exporter Exporter, relay RelayPusher, clock Clock, logger *slog.Logger) *RunFinalizer {
	if clock == nil {
		clock = SystemClock()
	}
	return &RunFinalizer{
		store:     store,
		directory: directory,
		exporter:  exporter,
		relay:     relay,
		clock:     clock,
		logger:    logger,
	}
}

// Finalize 收尾当前（或残留的）运行，并顺带重试待同步队列——中继
// 恢复后不需要人工介入。没有元数据时只做队列重试；日志为空时只清
// 槽位不导出。
func (f *RunFinalizer) Finalize(ctx context.Context) error {
	f.flushPendingSync(ctx)

	meta, err := f.store.LoadRunMeta(ctx)
	if err != nil {
		return fmt.Errorf("load run meta: %w", err)
	}
	if meta == nil {
		f.logger.Debug("no active run meta to finalize")
		return nil
	}

	log := f.logger.With(slog.String("run_id", meta.RunID))

	subs, err := f.store.RunSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("load run submissions: %w", err)
	}
	if len(subs) == 0 {
		log.Info("run finished with no submissions, clearing run slots")
		return f.store.ClearRun(ctx)
	}

	dir, err := f.directory.Directory(ctx)
	if err != nil {
		log.Warn("load directory failed, export will carry ids only", slog.Any("error", err))
	}

	doc := RunExport{
		RunID:       meta.RunID,
		Candidate:   dir.Candidate(meta.Selection.CandidateID),
		Employee:    dir.Employee(meta.Selection.EmployeeID),
		StartedAt:   meta.StartedAt,
		ExportedAt:  f.clock.Now(),
		Submissions: subs,
	}

	// 导出永远先行，不受中继可达性影响。
	if name, err := f.exporter.ExportRun(ctx, doc); err != nil {
		log.Error("export run failed", slog.Any("error", err))
	} else {
		log.Info("run exported", slog.String("artifact", name), slog.Int("submissions", len(subs)))
	}

	if err := f.relay.PushRun(ctx, *meta, dir, subs); err != nil {
		// 数据挪进待同步队列整批重试；活动槽位必须释放，否则一次
		// 中继故障就会挡住所有后续运行。
		log.Warn("relay push failed, retiring run for later retry", slog.Any("error", err))
		if err := f.store.RetireRun(ctx); err != nil {
			return fmt.Errorf("retire run: %w", err)
		}
		return nil
	}

	log.Info("relay confirmed run, clearing run slots")
	return f.store.ClearRun(ctx)
}

// flushPendingSync 把待同步队列里的运行逐个重新上报，成功的移除、
// 失败的原样留下。队列问题只记日志，不影响当前运行的收尾。
func (f *RunFinalizer) flushPendingSync(ctx context.Context) {
	pending, err := f.store.PendingSyncRuns(ctx)
	if err != nil {
		f.logger.Warn("load pending sync runs failed", slog.Any("error", err))
		return
	}
	if len(pending) == 0 {
		return
	}

	dir, err := f.directory.Directory(ctx)
	if err != nil {
		f.logger.Warn("load directory failed, retry will carry ids only", slog.Any("error", err))
	}

	remaining := pending[:0]
	for _, run := range pending {
		log := f.logger.With(slog.String("run_id", run.Meta.RunID))
		if err := f.relay.PushRun(ctx, run.Meta, dir, run.Submissions); err != nil {
			log.Warn("relay retry failed, keeping run in sync queue", slog.Any("error", err))
			remaining = append(remaining, run)
			continue
		}
		log.Info("relay confirmed retained run", slog.Int("submissions", len(run.Submissions)))
	}

	if len(remaining) == len(pending) {
		return
	}
	if err := f.store.SetPendingSyncRuns(ctx, remaining); err != nil {
		f.logger.Warn("rewrite pending sync queue failed", slog.Any("error", err))
	}
}
