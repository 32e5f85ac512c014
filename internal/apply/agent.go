package apply

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Runner 执行一次页面内的投递流程并返回结构化终态。由 navigator 实现，
// 测试中用假实现替换。
type Runner interface {
	Run(ctx context.Context, job Job) Result
}

type pendingRequest struct {
	req  Request
	resp chan Response
}

func (p pendingRequest) respond(r Response) {
	// 调用方可能已超时离开，resp 带一个缓冲，发送不阻塞。
	select {
	case p.resp <- r:
	default:
	}
}

// Agent 承载单个标签页的页面上下文。它在独立 goroutine 中接收指令，
// 与协调器之间只通过消息往来，没有共享可变状态。
type Agent struct {
	tabID    string
	runner   Runner
	logger   *slog.Logger
	requests chan pendingRequest
	done     chan struct{}
	stopOnce sync.Once
	busy     atomic.Bool
	cancel   context.CancelFunc
}

// StartAgent 启动页面上下文并立即发送就绪信号（对应页面脚本加载完成后的
// contentScriptReady 报文）。
func StartAgent(ctx context.Context, tabID string, runner Runner, hs *Handshake, logger *slog.Logger) *Agent {
	agentCtx, cancel := context.WithCancel(ctx)
	a := &Agent{
		tabID:    tabID,
		runner:   runner,
		logger:   logger.With(slog.String("tab_id", tabID)),
		requests: make(chan pendingRequest),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go a.loop(agentCtx, hs)
	return a
}

// Stop 结束页面上下文。幂等，可并发调用。
func (a *Agent) Stop() {
	a.cancel()
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *Agent) loop(ctx context.Context, hs *Handshake) {
	hs.SignalReady(a.tabID)
	a.logger.Debug("page context ready")

	for {
		select {
		case <-a.done:
			return
		case <-ctx.Done():
			return
		case r := <-a.requests:
			if !a.busy.CompareAndSwap(false, true) {
				// 上一次 tryApply 仍在进行，绝不能并发触发第二次提交。
				r.respond(Response{OK: false, Error: "busy"})
				continue
			}
			go func(r pendingRequest) {
				defer a.busy.Store(false)
				res := a.runner.Run(ctx, r.req.Job)
				r.respond(Response{OK: true, Result: res})
			}(r)
		}
	}
}
