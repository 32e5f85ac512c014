package apply

import (
	"fmt"
	"time"
)

// Status 是协调器的运行状态。
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusCompleted Status = "completed"
)

// Selection 是一次运行绑定的候选人/对接人。
type Selection struct {
	CandidateID int `json:"candidate_id"`
	EmployeeID  int `json:"employee_id"`
}

// RunMeta 是活动运行的持久化元数据。RunID 由启动时间派生，全局唯一。
type RunMeta struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	Selection Selection `json:"selection"`
}

// NewRunMeta 创建一次新运行的元数据。
func NewRunMeta(now time.Time, sel Selection) RunMeta {
	return RunMeta{
		RunID:     fmt.Sprintf("run-%d", now.UnixMilli()),
		StartedAt: now,
		Selection: sel,
	}
}

// SubmissionRecord 是一次确认成功的投递。创建后不再修改；每个 jobId
// 在一次运行内至多出现一条。
type SubmissionRecord struct {
	CandidateID   int       `json:"candidate_id"`
	CandidateName string    `json:"candidate_name"`
	EmployeeID    int       `json:"employee_id"`
	EmployeeName  string    `json:"employee_name"`
	Job           Job       `json:"jobInfo"`
	Timestamp     time.Time `json:"timestamp"`
}

// PendingRun 是已结束但中继尚未确认的运行。收尾时从活动槽位挪到待同步
// 队列，活动槽位立即释放给下一次运行。
type PendingRun struct {
	Meta        RunMeta            `json:"meta"`
	Submissions []SubmissionRecord `json:"submissions"`
}

// RunExport 是一次运行的导出文档，无论中继是否可达都会落盘。
type RunExport struct {
	RunID       string             `json:"runId"`
	Candidate   Person             `json:"candidate"`
	Employee    Person             `json:"employee"`
	StartedAt   time.Time          `json:"startedAt"`
	ExportedAt  time.Time          `json:"exportedAt"`
	Submissions []SubmissionRecord `json:"submissions"`
}

// Person 是配置目录里的一个人员条目。
type Person struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Directory 是候选人/对接人目录，用于把 id 换算成名字。
type Directory struct {
	Candidates []Person `json:"candidates"`
	Employees  []Person `json:"employees"`
}

// Candidate 按 id 查找候选人，找不到时返回 name=unknown 的占位条目。
func (d Directory) Candidate(id int) Person {
	return findPerson(d.Candidates, id)
}

// Employee 按 id 查找对接人。
func (d Directory) Employee(id int) Person {
	return findPerson(d.Employees, id)
}

func findPerson(people []Person, id int) Person {
	for _, p := range people {
		if p.ID == id {
			return p
		}
	}
	return Person{ID: id, Name: "unknown"}
}
