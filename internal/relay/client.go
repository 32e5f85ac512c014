package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

// Row 是中继接口的一条活动记录。字段名与服务端的列名保持一致。
type Row struct {
	JobID         *int   `json:"job_id,omitempty"`
	JobName       string `json:"job_name"`
	CandidateID   int    `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	EmployeeID    int    `json:"employee_id"`
	EmployeeName  string `json:"employee_name"`
	ActivityDate  string `json:"activity_date"`
	ActivityCount int    `json:"activity_count"`
	Notes         string `json:"notes"`
	LastModDate   string `json:"last_mod_date"`
}

type pushRequest struct {
	Rows  []Row  `json:"rows"`
	RunID string `json:"runId"`
}

type pushResponse struct {
	OK       bool   `json:"ok"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error"`
}

// Client 把运行结果批量转发给中继服务。只消费成功/失败这一个信号，
// 路由、鉴权细节与服务端存储都不归这里管。
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// PushRun 把一次运行的全部投递作为一批行发给中继。任何非 2xx 或
// ok=false 都算整批失败。服务端按键累加计数，部分成功无法区分，
// 调用方对失败的处理是整批保留重试（见 RunFinalizer）。
func (c *Client) PushRun(ctx context.Context, meta apply.RunMeta, dir apply.Directory, subs []apply.SubmissionRecord) error {
	if c.baseURL == "" {
		return fmt.Errorf("relay base url missing")
	}

	rows := make([]Row, 0, len(subs))
	for _, sub := range subs {
		row := Row{
			JobName:       sub.Job.Title,
			CandidateID:   sub.CandidateID,
			CandidateName: sub.CandidateName,
			EmployeeID:    sub.EmployeeID,
			EmployeeName:  sub.EmployeeName,
			ActivityDate:  sub.Timestamp.Format("2006-01-02"),
			ActivityCount: 1,
			Notes:         fmt.Sprintf("Easy Apply run %s: %s at %s", meta.RunID, sub.Job.Title, sub.Job.Company),
			LastModDate:   sub.Timestamp.Format(time.RFC3339),
		}
		// 站点的 jobId 是数字字符串；解析失败时留空，服务端有默认值。
		if id, err := strconv.Atoi(strings.TrimSpace(sub.Job.JobID)); err == nil {
			row.JobID = &id
		}
		rows = append(rows, row)
	}

	body, err := json.Marshal(pushRequest{Rows: rows, RunID: meta.RunID})
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/job-activity", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("post job activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return fmt.Errorf("relay status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("relay rejected batch: %s", parsed.Error)
	}
	return nil
}
