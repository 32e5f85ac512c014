package apply

import "errors"

// 运行级错误：同步返回给调用方，阻止启动。
var (
	ErrAlreadyRunning   = errors.New("apply run already running")
	ErrMissingSelection = errors.New("candidate and employee selection required")
)

// 任务级错误：记录日志后跳过当前职位，继续队列。
var (
	ErrInjectionFailed = errors.New("page script injection failed")
	ErrSendTimeout     = errors.New("message response timeout")
	ErrChannel         = errors.New("tab messaging unavailable")
)

// 页面内状态机的失败原因（Result.Reason 取值）。
const (
	ReasonTriggerNotFound = "no_easy_apply_btn"
	ReasonTooManySteps    = "too_long"
	ReasonTimeout         = "timeout"
	ReasonModalClosed     = "modal_closed"
	ReasonClickFailed     = "click_failed"
)
