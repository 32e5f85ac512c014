package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如中继不可达但运行照常结束）
// - 5xxx：系统错误（需要中断流程）
const (
	OK               = 0
	AlreadyRunning   = 4001
	MissingSelection = 4002
	RelayUnreachable = 4005
	SystemError      = 5000
)
