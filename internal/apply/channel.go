package apply

import (
	"context"
	"sync"
	"time"
)

// Channel 维护 tabID 到页面上下文的映射，并提供带超时的请求/应答语义。
// 条目随标签页生命周期显式增删。
type Channel struct {
	mu     sync.Mutex
	agents map[string]*Agent
}

func NewChannel() *Channel {
	return &Channel{agents: make(map[string]*Agent)}
}

// Attach 注册一个标签页的页面上下文。
func (c *Channel) Attach(tabID string, a *Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[tabID] = a
}

// Detach 注销并停止页面上下文。标签页关闭后调用。
func (c *Channel) Detach(tabID string) {
	c.mu.Lock()
	a := c.agents[tabID]
	delete(c.agents, tabID)
	c.mu.Unlock()
	if a != nil {
		a.Stop()
	}
}

func (c *Channel) lookup(tabID string) *Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agents[tabID]
}

// Send 向标签页投递一条指令并等待应答。超时返回 ErrSendTimeout；标签页
// 不存在或已关闭返回 ErrChannel。重试策略由调用方掌握——投递是有副作用
// 的动作，这里绝不自作主张重发。
func (c *Channel) Send(ctx context.Context, tabID string, req Request, timeout time.Duration) (Response, error) {
	a := c.lookup(tabID)
	if a == nil {
		return Response{}, ErrChannel
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	pr := pendingRequest{req: req, resp: make(chan Response, 1)}

	select {
	case a.requests <- pr:
	case <-a.done:
		return Response{}, ErrChannel
	case <-timer.C:
		return Response{}, ErrSendTimeout
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-pr.resp:
		return resp, nil
	case <-a.done:
		return Response{}, ErrChannel
	case <-timer.C:
		return Response{}, ErrSendTimeout
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
