package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeApplyRun = "apply:run"
)

// ApplyRunPayload 描述一次投递运行所需的全部输入。Jobs 为空时由
// 协调器按缓存/兜底文件解析队列。
type ApplyRunPayload struct {
	CandidateID   int         `json:"candidate_id"`
	EmployeeID    int         `json:"employee_id"`
	Jobs          []apply.Job `json:"jobs,omitempty"`
	CorrelationID string      `json:"correlation_id"`
}

// NewApplyRunTask 构造一个新的投递运行任务。
func NewApplyRunTask(payload ApplyRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeApplyRun, data), nil
}
