package navigator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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
	c.mu.Unlock()
	return nil
}

// scriptedDriver 回放一串预置快照，记录所有驱动调用。快照序列耗尽后
// 重复最后一帧。
type scriptedDriver struct {
	openErr error
	snaps   []*Snapshot
	idx     int

	clicks    []string
	matched   []string
	dismissed int
	texts     map[string]string
	selects   map[string]string
	radios    map[string]string
}

func newScriptedDriver(snaps ...*Snapshot) *scriptedDriver {
	return &scriptedDriver{
		snaps:   snaps,
		texts:   make(map[string]string),
		selects: make(map[string]string),
		radios:  make(map[string]string),
	}
}

func (d *scriptedDriver) OpenModal(context.Context) error { return d.openErr }

func (d *scriptedDriver) Snapshot(context.Context) (*Snapshot, error) {
	if d.idx >= len(d.snaps) {
		return d.snaps[len(d.snaps)-1], nil
	}
	s := d.snaps[d.idx]
	d.idx++
	return s, nil
}

func (d *scriptedDriver) ClickButton(_ context.Context, label string) error {
	d.clicks = append(d.clicks, label)
	return nil
}

func (d *scriptedDriver) ClickMatching(_ context.Context, pattern string) (bool, error) {
	d.matched = append(d.matched, pattern)
	return true, nil
}

func (d *scriptedDriver) Dismiss(context.Context) (bool, error) {
	d.dismissed++
	return true, nil
}

func (d *scriptedDriver) SetText(_ context.Context, ref, value string) error {
	d.texts[ref] = value
	return nil
}

func (d *scriptedDriver) SelectOption(_ context.Context, ref, option string) error {
	d.selects[ref] = option
	return nil
}

func (d *scriptedDriver) ChooseRadio(_ context.Context, ref, option string) error {
	d.radios[ref] = option
	return nil
}

func (d *scriptedDriver) SetStatus(context.Context, string, bool) {}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxPages = 3
	return cfg
}

func newTestNavigator(driver PageDriver, cfg Config) (*Navigator, *[]State) {
	nav := New(driver, NewClassifier(DefaultAnswers()), newFakeClock(), cfg, slog.Default())
	var trace []State
	nav.Observe(func(s State) { trace = append(trace, s) })
	return nav, &trace
}

func lastState(trace []State) State {
	if len(trace) == 0 {
		return StateNotStarted
	}
	return trace[len(trace)-1]
}

func modalSnap(fields []Field, buttons ...string) *Snapshot {
	s := &Snapshot{ModalOpen: true, Fields: fields}
	for _, b := range buttons {
		s.Buttons = append(s.Buttons, Button{Label: b})
	}
	return s
}

func TestRunFillsAndSubmits(t *testing.T) {
	sponsorship := Field{
		Ref: "ea-0", Kind: FieldRadio,
		Label: "Will you now or in the future require sponsorship?", Required: true,
		Options: []string{"Yes", "No"},
	}
	filled := sponsorship
	filled.Filled = true

	driver := newScriptedDriver(
		modalSnap([]Field{sponsorship}, "Next"),
		modalSnap([]Field{filled}, "Submit application"),
	)
	nav, trace := newTestNavigator(driver, testConfig())

	res := nav.Run(context.Background(), apply.Job{JobID: "1"})

	if !res.Applied || res.Reason != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if driver.radios["ea-0"] != "No" {
		t.Fatalf("sponsorship answer = %q, want No", driver.radios["ea-0"])
	}
	if len(driver.clicks) != 1 || driver.clicks[0] != "Submit application" {
		t.Fatalf("clicks = %v", driver.clicks)
	}
	if len(driver.matched) != 1 {
		t.Fatalf("done dismissal not attempted: %v", driver.matched)
	}
	if lastState(*trace) != StateApplied {
		t.Fatalf("final state = %s", lastState(*trace))
	}
}

func TestRunPaginatesThenSubmits(t *testing.T) {
	page := modalSnap(nil, "Next")
	submit := modalSnap(nil, "Submit application")

	driver := newScriptedDriver(page, page, page, page, submit, submit)
	nav, trace := newTestNavigator(driver, testConfig())

	res := nav.Run(context.Background(), apply.Job{JobID: "2"})

	if !res.Applied {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := []string{"Next", "Next", "Submit application"}
	if len(driver.clicks) != len(want) {
		t.Fatalf("clicks = %v, want %v", driver.clicks, want)
	}
	for i, label := range want {
		if driver.clicks[i] != label {
			t.Fatalf("clicks[%d] = %s, want %s", i, driver.clicks[i], label)
		}
	}
	if lastState(*trace) != StateApplied {
		t.Fatalf("final state = %s", lastState(*trace))
	}
}

func TestRunAbandonsAfterPageCap(t *testing.T) {
	page := modalSnap(nil, "Next")
	driver := newScriptedDriver(page)
	cfg := testConfig()
	cfg.MaxPages = 2

	nav, trace := newTestNavigator(driver, cfg)
	res := nav.Run(context.Background(), apply.Job{JobID: "3"})

	if res.Applied || res.Reason != apply.ReasonTooManySteps {
		t.Fatalf("unexpected result: %+v", res)
	}
	if driver.dismissed != 1 {
		t.Fatalf("dismiss calls = %d, want 1", driver.dismissed)
	}
	found := false
	for _, p := range driver.matched {
		if p == `(?i)discard` {
			found = true
		}
	}
	if !found {
		t.Fatalf("discard not attempted: %v", driver.matched)
	}
	if len(driver.clicks) != 2 {
		t.Fatalf("clicked %d times before abandoning, want 2", len(driver.clicks))
	}
	if lastState(*trace) != StateFailed {
		t.Fatalf("final state = %s", lastState(*trace))
	}
}

func TestRunModalClosedWithoutSubmit(t *testing.T) {
	driver := newScriptedDriver(&Snapshot{ModalOpen: false})
	nav, trace := newTestNavigator(driver, testConfig())

	res := nav.Run(context.Background(), apply.Job{JobID: "4"})

	if !res.Applied || res.Reason != apply.ReasonModalClosed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if lastState(*trace) != StateApplied {
		t.Fatalf("final state = %s", lastState(*trace))
	}
}

func TestRunWaitsForManualInput(t *testing.T) {
	custom := Field{
		Ref: "ea-0", Kind: FieldText,
		Label: "Describe your favorite deployment incident", Required: true,
	}
	humanFilled := custom
	humanFilled.Filled = true

	waiting := modalSnap([]Field{custom})
	resolved := modalSnap([]Field{humanFilled}, "Submit application")

	driver := newScriptedDriver(waiting, waiting, resolved, resolved)
	nav, trace := newTestNavigator(driver, testConfig())

	res := nav.Run(context.Background(), apply.Job{JobID: "5"})

	if !res.Applied {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, touched := driver.texts["ea-0"]; touched {
		t.Fatal("unrecognized field must be left for the human")
	}
	sawManualWait := false
	for _, s := range *trace {
		if s == StateAwaitingManualInput {
			sawManualWait = true
		}
	}
	if !sawManualWait {
		t.Fatalf("state trace %v missing manual wait", *trace)
	}
}

func TestRunTriggerNotFound(t *testing.T) {
	driver := newScriptedDriver(&Snapshot{})
	driver.openErr = ErrTriggerNotFound

	nav, trace := newTestNavigator(driver, testConfig())
	res := nav.Run(context.Background(), apply.Job{JobID: "6"})

	if res.Applied || res.Reason != apply.ReasonTriggerNotFound {
		t.Fatalf("unexpected result: %+v", res)
	}
	if lastState(*trace) != StateFailed {
		t.Fatalf("final state = %s", lastState(*trace))
	}
}

func TestRunTimesOut(t *testing.T) {
	stuck := modalSnap([]Field{{
		Ref: "ea-0", Kind: FieldText,
		Label: "Unanswerable question", Required: true,
	}})
	driver := newScriptedDriver(stuck)

	cfg := testConfig()
	cfg.FlowTimeout = 30 * time.Second

	nav, trace := newTestNavigator(driver, cfg)
	res := nav.Run(context.Background(), apply.Job{JobID: "7"})

	if res.Applied || res.Reason != apply.ReasonTimeout {
		t.Fatalf("unexpected result: %+v", res)
	}
	if lastState(*trace) != StateTimedOut {
		t.Fatalf("final state = %s", lastState(*trace))
	}
}
