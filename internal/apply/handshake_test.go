package apply

import (
	"context"
	"testing"
	"time"
)

func TestHandshakeSignalBeforeAwait(t *testing.T) {
	hs := NewHandshake()
	hs.Expect("tab-1")
	hs.SignalReady("tab-1")

	if !hs.AwaitReady(context.Background(), "tab-1", 50*time.Millisecond) {
		t.Fatal("signal after Expect must not be dropped")
	}
	if hs.PendingCount() != 0 {
		t.Fatalf("pending entries leaked: %d", hs.PendingCount())
	}
}

func TestHandshakeSignalWithoutWaiterDropped(t *testing.T) {
	hs := NewHandshake()
	hs.SignalReady("tab-1")

	if hs.AwaitReady(context.Background(), "tab-1", 10*time.Millisecond) {
		t.Fatal("signal without a registered waiter must be dropped")
	}
}

func TestHandshakeAwaitThenSignal(t *testing.T) {
	hs := NewHandshake()

	done := make(chan bool, 1)
	go func() {
		done <- hs.AwaitReady(context.Background(), "tab-2", time.Second)
	}()

	// 等待条目挂上后再发信号。
	for i := 0; i < 100 && hs.PendingCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	hs.SignalReady("tab-2")

	if !<-done {
		t.Fatal("await must resolve on signal")
	}
	if hs.PendingCount() != 0 {
		t.Fatalf("pending entries leaked: %d", hs.PendingCount())
	}
}

func TestHandshakeTimeoutCleansUp(t *testing.T) {
	hs := NewHandshake()
	if hs.AwaitReady(context.Background(), "tab-3", 5*time.Millisecond) {
		t.Fatal("await without signal must time out")
	}
	if hs.PendingCount() != 0 {
		t.Fatalf("pending entries leaked: %d", hs.PendingCount())
	}
}

func TestHandshakeCancelledContext(t *testing.T) {
	hs := NewHandshake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if hs.AwaitReady(ctx, "tab-4", time.Second) {
		t.Fatal("await with cancelled context must return false")
	}
}

func TestHandshakeForgetDiscardsEntry(t *testing.T) {
	hs := NewHandshake()
	hs.Expect("tab-5")
	if hs.PendingCount() != 1 {
		t.Fatalf("expect must register an entry, got %d", hs.PendingCount())
	}

	hs.Forget("tab-5")
	if hs.PendingCount() != 0 {
		t.Fatalf("forget must remove the entry, got %d", hs.PendingCount())
	}

	// 之后迟到的信号只能被丢弃。
	hs.SignalReady("tab-5")
	if hs.AwaitReady(context.Background(), "tab-5", 10*time.Millisecond) {
		t.Fatal("signal after Forget must be dropped")
	}
}
