package apply

// 协调器与页面上下文之间的消息协议。字段名与扩展时代的报文保持一致，
// 便于排查历史导出数据。
const (
	ActionTryApply = "tryApply"
)

// Request 是发往单个标签页的指令。
type Request struct {
	Action string `json:"action"`
	Job    Job    `json:"job"`
}

// Result 是页面内状态机的结构化终态。
type Result struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response 包装一次请求的回执。OK=false 表示页面上下文自身拒绝了请求
// （例如忙碌中），与 Result 的业务失败区分开。
type Response struct {
	OK     bool   `json:"ok"`
	Result Result `json:"result"`
	Error  string `json:"error,omitempty"`
}
