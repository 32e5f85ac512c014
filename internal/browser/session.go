package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

// Tab 包装一个 rod 页面，实现 apply.TabHandle。
type Tab struct {
	page *rod.Page
	id   string
}

func (t *Tab) ID() string { return t.id }

// Session 管理一个长驻的无头浏览器实例，按需为每个职位开关标签页，
// 实现 apply.TabController。
type Session struct {
	launch  *launcher.Launcher
	browser *rod.Browser
	logger  *slog.Logger

	mu          sync.Mutex
	onTabClosed func(tabID string)
}

// NewSession 启动无头浏览器并监听标签页销毁事件。
func NewSession(logger *slog.Logger) (*Session, error) {
	launch := launcher.New().
		Headless(true).
		NoSandbox(true)

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	s := &Session{launch: launch, browser: browser, logger: logger}

	go browser.EachEvent(func(e *proto.TargetTargetDestroyed) {
		s.mu.Lock()
		cb := s.onTabClosed
		s.mu.Unlock()
		if cb != nil {
			cb(string(e.TargetID))
		}
	})()

	return s, nil
}

// OnTabClosed 注册标签页销毁回调（协调器据此识别人为关闭）。
func (s *Session) OnTabClosed(fn func(tabID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTabClosed = fn
}

// Close 关闭浏览器并清理临时目录。
func (s *Session) Close() {
	if err := s.browser.Close(); err != nil {
		s.logger.Warn("close browser failed", slog.Any("error", err))
	}
	s.launch.Cleanup()
}

// OpenTab 在后台打开一个新标签页，不等待内容加载。
func (s *Session) OpenTab(ctx context.Context, url string) (apply.TabHandle, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{
		URL:        url,
		Background: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	return &Tab{page: page, id: string(page.TargetID)}, nil
}

// AwaitLoadComplete 等待导航进入 complete 状态；超时返回 false，
// 调用方照常继续。
func (s *Session) AwaitLoadComplete(ctx context.Context, tab apply.TabHandle, timeout time.Duration) bool {
	t, ok := tab.(*Tab)
	if !ok {
		return false
	}
	if err := t.page.Context(ctx).Timeout(timeout).WaitLoad(); err != nil {
		return false
	}
	return true
}

// InjectPageScript 向页面注入交互引导脚本。失败按单职位失败处理。
func (s *Session) InjectPageScript(ctx context.Context, tab apply.TabHandle) error {
	t, ok := tab.(*Tab)
	if !ok {
		return errors.New("not a browser tab")
	}
	if _, err := t.page.Context(ctx).Timeout(10 * time.Second).Eval(bootstrapJS); err != nil {
		return fmt.Errorf("%w: %s", apply.ErrInjectionFailed, err)
	}
	return nil
}

// CloseTab 尽力关闭标签页，失败只记日志。
func (s *Session) CloseTab(tab apply.TabHandle) {
	t, ok := tab.(*Tab)
	if !ok {
		return
	}
	if err := t.page.Close(); err != nil {
		s.logger.Warn("close tab failed",
			slog.String("tab_id", t.id),
			slog.Any("error", err),
		)
	}
}
