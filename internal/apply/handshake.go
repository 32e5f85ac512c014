package apply

import (
	"context"
	"sync"
	"time"
)

// readyEntry 是单个标签页上最多一个未决的就绪等待。
type readyEntry struct {
	ch   chan struct{}
	once sync.Once
}

func (e *readyEntry) resolve() {
	e.once.Do(func() { close(e.ch) })
}

// Handshake 记录每个标签页的就绪信号，协调器在下发指令前等待页面脚本
// 报告存活。条目在 resolve 或超时后即删除，不会无限累积。
type Handshake struct {
	mu      sync.Mutex
	pending map[string]*readyEntry
}

func NewHandshake() *Handshake {
	return &Handshake{pending: make(map[string]*readyEntry)}
}

// SignalReady 由页面脚本加载后触发，fire-and-forget。没有等待者时信号
// 被丢弃；协调器对此有兜底（超时后照常下发指令）。
func (h *Handshake) SignalReady(tabID string) {
	h.mu.Lock()
	entry, ok := h.pending[tabID]
	h.mu.Unlock()
	if ok {
		entry.resolve()
	}
}

// Expect 预先登记 tabID 的等待条目，保证随后注入的页面脚本发出的信号
// 不会因为等待方尚未注册而被丢弃。幂等。
func (h *Handshake) Expect(tabID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pending[tabID]; !ok {
		h.pending[tabID] = &readyEntry{ch: make(chan struct{})}
	}
}

// Forget 丢弃 tabID 的等待条目。Expect 之后不再走到 AwaitReady 的
// 失败路径（比如注入失败）必须调用，否则条目永远留在表里。
func (h *Handshake) Forget(tabID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, tabID)
}

// AwaitReady 等待 tabID 的就绪信号。同一标签页的并发等待共享同一条目。
// 返回 false 仅代表超时，调用方可以继续（advisory）。
func (h *Handshake) AwaitReady(ctx context.Context, tabID string, timeout time.Duration) bool {
	h.mu.Lock()
	entry, ok := h.pending[tabID]
	if !ok {
		entry = &readyEntry{ch: make(chan struct{})}
		h.pending[tabID] = entry
	}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.pending[tabID] == entry {
			delete(h.pending, tabID)
		}
		h.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-entry.ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// PendingCount 仅用于测试观察表的清理情况。
func (h *Handshake) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
