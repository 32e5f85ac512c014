package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

type fakeRunStore struct {
	mu        sync.Mutex
	selection *Selection
	meta      *RunMeta
	log       []SubmissionRecord
	cleared   int
	retired   int
	pending   []PendingRun
	stopHook  func(call int) (string, bool)
	stopCalls int
	cached    []Job
	beginErr  error
	beginHook func()
}

func (s *fakeRunStore) SaveSelection(_ context.Context, sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = &sel
	return nil
}

func (s *fakeRunStore) BeginRun(_ context.Context, meta RunMeta) error {
	s.mu.Lock()
	hook := s.beginHook
	err := s.beginErr
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = &meta
	s.log = nil
	return nil
}

func (s *fakeRunStore) LoadRunMeta(context.Context) (*RunMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return nil, nil
	}
	m := *s.meta
	return &m, nil
}

func (s *fakeRunStore) AppendRunSubmission(_ context.Context, rec SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, rec)
	return nil
}

func (s *fakeRunStore) RunSubmissions(context.Context) ([]SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubmissionRecord(nil), s.log...), nil
}

func (s *fakeRunStore) ClearRun(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = nil
	s.log = nil
	s.cleared++
	return nil
}

func (s *fakeRunStore) RetireRun(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return nil
	}
	s.pending = append(s.pending, PendingRun{Meta: *s.meta, Submissions: append([]SubmissionRecord(nil), s.log...)})
	s.meta = nil
	s.log = nil
	s.retired++
	return nil
}

func (s *fakeRunStore) PendingSyncRuns(context.Context) ([]PendingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingRun(nil), s.pending...), nil
}

func (s *fakeRunStore) SetPendingSyncRuns(_ context.Context, runs []PendingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([]PendingRun(nil), runs...)
	return nil
}

func (s *fakeRunStore) StopRequest(context.Context) (string, bool) {
	s.mu.Lock()
	s.stopCalls++
	call := s.stopCalls
	hook := s.stopHook
	s.mu.Unlock()
	if hook == nil {
		return "", false
	}
	return hook(call)
}

func (s *fakeRunStore) CachedJobs(context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached, nil
}

func (s *fakeRunStore) submissions() []SubmissionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubmissionRecord(nil), s.log...)
}

type fakeTab struct{ id string }

func (t fakeTab) ID() string { return t.id }

type fakeTabs struct {
	mu         sync.Mutex
	opened     []string
	closed     []string
	seq        int
	maxOpen    int
	failInject map[int]bool
	coord      *Coordinator
}

func (f *fakeTabs) OpenTab(_ context.Context, url string) (TabHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.opened = append(f.opened, url)
	if open := len(f.opened) - len(f.closed); open > f.maxOpen {
		f.maxOpen = open
	}
	return fakeTab{id: fmt.Sprintf("tab-%d", f.seq)}, nil
}

func (f *fakeTabs) maxOpenAtOnce() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

func (f *fakeTabs) AwaitLoadComplete(context.Context, TabHandle, time.Duration) bool { return true }

func (f *fakeTabs) InjectPageScript(_ context.Context, tab TabHandle) error {
	var n int
	fmt.Sscanf(tab.ID(), "tab-%d", &n)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInject[n] {
		return ErrInjectionFailed
	}
	return nil
}

func (f *fakeTabs) CloseTab(tab TabHandle) {
	f.mu.Lock()
	f.closed = append(f.closed, tab.ID())
	coord := f.coord
	f.mu.Unlock()
	if coord != nil {
		// 模拟标签页销毁事件总会跟在关闭之后。
		coord.TabClosed(tab.ID())
	}
}

func (f *fakeTabs) lastTabID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("tab-%d", f.seq)
}

type fakeRunners struct {
	mu      sync.Mutex
	results map[string]Result
	onRun   func(jobID string)
	runs    []string
}

func (f *fakeRunners) RunnerFor(TabHandle) Runner {
	return runnerFunc(func(_ context.Context, job Job) Result {
		f.mu.Lock()
		f.runs = append(f.runs, job.JobID)
		res, ok := f.results[job.JobID]
		hook := f.onRun
		f.mu.Unlock()
		if hook != nil {
			hook(job.JobID)
		}
		if !ok {
			res = Result{Applied: true}
		}
		return res
	})
}

type fakeNotifier struct {
	mu       sync.Mutex
	progress []string
	done     []string
	errs     []string
}

func (n *fakeNotifier) Progress(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, text)
}

func (n *fakeNotifier) Done(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = append(n.done, text)
}

func (n *fakeNotifier) Error(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, text)
}

type fakeArchiver struct {
	mu   sync.Mutex
	recs []SubmissionRecord
}

func (a *fakeArchiver) ArchiveSubmission(_ context.Context, rec SubmissionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFinalizer) Finalize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMetrics struct {
	mu          sync.Mutex
	submissions int
	failed      map[string]int
	finished    []string
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{failed: make(map[string]int)} }

func (m *fakeMetrics) SubmissionRecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions++
}

func (m *fakeMetrics) JobFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[reason]++
}

func (m *fakeMetrics) RunFinished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
}

type staticDirectory struct {
	dir Directory
	err error
}

func (d staticDirectory) Directory(context.Context) (Directory, error) {
	return d.dir, d.err
}

type coordFixture struct {
	coord     *Coordinator
	clock     *fakeClock
	store     *fakeRunStore
	tabs      *fakeTabs
	runners   *fakeRunners
	notifier  *fakeNotifier
	archive   *fakeArchiver
	finalizer *fakeFinalizer
	metrics   *fakeMetrics
}

func testTimings() Timings {
	return Timings{
		TabSettle:           time.Second,
		TabLoadTimeout:      time.Second,
		ReadyTimeout:        500 * time.Millisecond,
		MessageTimeout:      2 * time.Second,
		RetryBackoff:        time.Second,
		RetryMessageTimeout: time.Second,
		PostApplyCooldown:   25 * time.Second,
		PostFailureCooldown: time.Second,
	}
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	f := &coordFixture{
		clock:     newFakeClock(),
		store:     &fakeRunStore{},
		tabs:      &fakeTabs{failInject: make(map[int]bool)},
		runners:   &fakeRunners{results: make(map[string]Result)},
		notifier:  &fakeNotifier{},
		archive:   &fakeArchiver{},
		finalizer: &fakeFinalizer{},
		metrics:   newFakeMetrics(),
	}
	f.coord = NewCoordinator(CoordinatorOptions{
		Tabs:      f.tabs,
		Runners:   f.runners,
		Store:     f.store,
		Directory: staticDirectory{dir: Directory{
			Candidates: []Person{{ID: 7, Name: "Ada"}},
			Employees:  []Person{{ID: 3, Name: "Grace"}},
		}},
		Jobs:      &JobSource{Store: f.store},
		Notifier:  f.notifier,
		Archive:   f.archive,
		Finalizer: f.finalizer,
		Metrics:   f.metrics,
		Clock:     f.clock,
		Timings:   testTimings(),
		BaseURL:   "https://www.linkedin.com",
		Logger:    slog.Default(),
	})
	return f
}

func TestStartRequiresSelection(t *testing.T) {
	f := newCoordFixture(t)
	err := f.coord.Start(context.Background(), Selection{CandidateID: 7}, nil)
	if !errors.Is(err, ErrMissingSelection) {
		t.Fatalf("got %v, want ErrMissingSelection", err)
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	f := newCoordFixture(t)

	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	f.runners.onRun = func(string) {
		started <- struct{}{}
		<-gate
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3},
			[]Job{{JobID: "100", Title: "SRE", Company: "Acme"}})
	}()

	<-started
	err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, []Job{{JobID: "200"}})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("got %v, want ErrAlreadyRunning", err)
	}

	close(gate)
	if err := <-runDone; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestRunProcessesQueueNewestFirst(t *testing.T) {
	f := newCoordFixture(t)

	jobs := []Job{
		{JobID: "200", Title: "B", Company: "Beta"},
		{JobID: "100", Title: "C", Company: "Gamma"},
		{JobID: "300", Title: "A", Company: "Alpha"},
	}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	wantOrder := []string{"300", "200", "100"}
	if len(f.runners.runs) != len(wantOrder) {
		t.Fatalf("ran %d jobs, want %d", len(f.runners.runs), len(wantOrder))
	}
	for i, id := range wantOrder {
		if f.runners.runs[i] != id {
			t.Fatalf("run order[%d] = %s, want %s", i, f.runners.runs[i], id)
		}
	}

	subs := f.store.submissions()
	if len(subs) != 3 {
		t.Fatalf("recorded %d submissions, want 3", len(subs))
	}
	if subs[0].CandidateName != "Ada" || subs[0].EmployeeName != "Grace" {
		t.Fatalf("directory names not resolved: %+v", subs[0])
	}
	if len(f.archive.recs) != 3 {
		t.Fatalf("archived %d, want 3", len(f.archive.recs))
	}

	if want := "https://www.linkedin.com/jobs/view/300"; f.tabs.opened[0] != want {
		t.Fatalf("first tab url = %s, want %s", f.tabs.opened[0], want)
	}
	if len(f.tabs.closed) != 3 {
		t.Fatalf("closed %d tabs, want 3", len(f.tabs.closed))
	}

	if f.finalizer.count() != 1 {
		t.Fatalf("finalize called %d times, want 1", f.finalizer.count())
	}
	if len(f.metrics.finished) != 1 || f.metrics.finished[0] != "completed" {
		t.Fatalf("run finished metrics = %v", f.metrics.finished)
	}
	if f.metrics.submissions != 3 {
		t.Fatalf("submission metric = %d, want 3", f.metrics.submissions)
	}

	status, _, _ := f.coord.Status()
	if status != StatusIdle {
		t.Fatalf("status after run = %s, want idle", status)
	}
}

func TestOneTabAtATime(t *testing.T) {
	f := newCoordFixture(t)
	f.tabs.coord = f.coord

	jobs := []Job{{JobID: "3"}, {JobID: "2"}, {JobID: "1"}}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	// 每个职位的标签页都在下一个打开前关闭。
	if f.tabs.maxOpenAtOnce() != 1 {
		t.Fatalf("max open tabs = %d, want 1", f.tabs.maxOpenAtOnce())
	}
	// 协调器自己关的标签页不触发停止。
	if len(f.metrics.finished) != 1 || f.metrics.finished[0] != "completed" {
		t.Fatalf("run finished metrics = %v", f.metrics.finished)
	}
}

func TestStopRequestHonoredBetweenJobs(t *testing.T) {
	f := newCoordFixture(t)
	f.store.stopHook = func(call int) (string, bool) {
		if call == 2 {
			return "user requested", true
		}
		return "", false
	}

	jobs := []Job{{JobID: "3"}, {JobID: "2"}, {JobID: "1"}}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	if len(f.runners.runs) != 1 {
		t.Fatalf("ran %d jobs before stop, want 1", len(f.runners.runs))
	}
	if len(f.metrics.finished) != 1 || f.metrics.finished[0] != "stopped" {
		t.Fatalf("run finished metrics = %v", f.metrics.finished)
	}
	found := false
	for _, d := range f.notifier.done {
		if strings.Contains(d, "stopped: user requested") {
			found = true
		}
	}
	if !found {
		t.Fatalf("done notifications = %v, want stop reason", f.notifier.done)
	}
}

func TestFailedJobSkippedRunContinues(t *testing.T) {
	f := newCoordFixture(t)
	f.runners.results["3"] = Result{Applied: false, Reason: ReasonTriggerNotFound}

	jobs := []Job{{JobID: "3"}, {JobID: "2"}}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	subs := f.store.submissions()
	if len(subs) != 1 || subs[0].Job.JobID != "2" {
		t.Fatalf("unexpected submissions: %+v", subs)
	}
	if f.metrics.failed[ReasonTriggerNotFound] != 1 {
		t.Fatalf("job failed metrics = %v", f.metrics.failed)
	}
}

func TestInjectionFailureSkipsJob(t *testing.T) {
	f := newCoordFixture(t)
	f.tabs.failInject[1] = true

	jobs := []Job{{JobID: "3"}, {JobID: "2"}}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	if len(f.runners.runs) != 1 || f.runners.runs[0] != "2" {
		t.Fatalf("runs = %v, want only job 2", f.runners.runs)
	}
	if f.metrics.failed["injection"] != 1 {
		t.Fatalf("job failed metrics = %v", f.metrics.failed)
	}
	// 注入失败的标签页同样要被关闭。
	if len(f.tabs.closed) != 2 {
		t.Fatalf("closed %d tabs, want 2", len(f.tabs.closed))
	}
	// 放弃的标签页不能在握手表里留下等待条目。
	if n := f.coord.handshake.PendingCount(); n != 0 {
		t.Fatalf("handshake entries leaked: %d", n)
	}
}

func TestStartFailureNotifiesInterface(t *testing.T) {
	f := newCoordFixture(t)
	f.store.beginErr = errors.New("redis down")

	err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, []Job{{JobID: "1"}})
	if err == nil {
		t.Fatal("start must fail when the run slot cannot be written")
	}
	if len(f.notifier.errs) != 1 || f.notifier.errs[0] != "Failed to begin run" {
		t.Fatalf("error notifications = %v, want begin failure pushed to interface", f.notifier.errs)
	}
	if st, _, _ := f.coord.Status(); st != StatusIdle {
		t.Fatalf("status = %v, want idle after failed start", st)
	}
}

func TestStopDuringStartupHonored(t *testing.T) {
	f := newCoordFixture(t)
	f.store.beginHook = func() { f.coord.Stop("early shutdown") }

	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, []Job{{JobID: "1"}}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if len(f.runners.runs) != 0 {
		t.Fatalf("ran %d jobs, want none after stop during startup", len(f.runners.runs))
	}
	if len(f.metrics.finished) != 1 || f.metrics.finished[0] != "stopped" {
		t.Fatalf("run finished metrics = %v, want stopped", f.metrics.finished)
	}
	found := false
	for _, d := range f.notifier.done {
		if strings.Contains(d, "stopped: early shutdown") {
			found = true
		}
	}
	if !found {
		t.Fatalf("done notifications = %v, want early shutdown reason", f.notifier.done)
	}
}

func TestModalClosedCountsAsApplied(t *testing.T) {
	f := newCoordFixture(t)
	f.runners.results["1"] = Result{Applied: true, Reason: ReasonModalClosed}

	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, []Job{{JobID: "1"}}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if len(f.store.submissions()) != 1 {
		t.Fatalf("modal closed without submit must still be recorded")
	}
	if f.metrics.submissions != 1 {
		t.Fatalf("submission metric = %d, want 1", f.metrics.submissions)
	}
}

func TestDuplicateJobNotDoubleCounted(t *testing.T) {
	f := newCoordFixture(t)

	jobs := []Job{{JobID: "5", Title: "Dup"}, {JobID: "5", Title: "Dup"}}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	if len(f.store.submissions()) != 1 {
		t.Fatalf("recorded %d submissions for duplicate job, want 1", len(f.store.submissions()))
	}
	if f.metrics.submissions != 1 {
		t.Fatalf("submission metric = %d, want 1", f.metrics.submissions)
	}
}

func TestUnresponsivePageContextSkipsJob(t *testing.T) {
	f := newCoordFixture(t)

	timings := testTimings()
	timings.MessageTimeout = 20 * time.Millisecond
	timings.RetryMessageTimeout = 20 * time.Millisecond
	f.coord.timings = timings

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	f.runners.results["9"] = Result{Applied: true}
	f.runners.onRun = func(jobID string) {
		if jobID == "9" {
			<-block
		}
	}

	jobs := []Job{{JobID: "9"}, {JobID: "8"}}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	subs := f.store.submissions()
	if len(subs) != 1 || subs[0].Job.JobID != "8" {
		t.Fatalf("unexpected submissions: %+v", subs)
	}
	// 首发超时，重试撞上仍在执行的页面上下文，按 busy 归因跳过。
	if f.metrics.failed["busy"]+f.metrics.failed["channel"] != 1 {
		t.Fatalf("job failed metrics = %v", f.metrics.failed)
	}
}

func TestManualTabCloseStopsRun(t *testing.T) {
	f := newCoordFixture(t)

	f.runners.onRun = func(jobID string) {
		if jobID == "3" {
			f.coord.TabClosed(f.tabs.lastTabID())
		}
	}

	jobs := []Job{{JobID: "3"}, {JobID: "2"}, {JobID: "1"}}
	if err := f.coord.Start(context.Background(), Selection{CandidateID: 7, EmployeeID: 3}, jobs); err != nil {
		t.Fatalf("start: %v", err)
	}

	// 进行中的职位允许收尾，后面的不再处理。
	if len(f.runners.runs) != 1 {
		t.Fatalf("ran %d jobs, want 1", len(f.runners.runs))
	}
	found := false
	for _, d := range f.notifier.done {
		if strings.Contains(d, "tab closed manually") {
			found = true
		}
	}
	if !found {
		t.Fatalf("done notifications = %v, want manual close reason", f.notifier.done)
	}
}

func TestRecoverPendingFinalizesInterruptedRun(t *testing.T) {
	f := newCoordFixture(t)
	meta := NewRunMeta(f.clock.Now(), Selection{CandidateID: 7, EmployeeID: 3})
	f.store.meta = &meta

	if err := f.coord.RecoverPending(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if f.finalizer.count() != 1 {
		t.Fatalf("finalize called %d times, want 1", f.finalizer.count())
	}
}

func TestRecoverPendingNoopWithoutMeta(t *testing.T) {
	f := newCoordFixture(t)
	if err := f.coord.RecoverPending(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if f.finalizer.count() != 0 {
		t.Fatalf("finalize must not run without leftover meta")
	}
}
