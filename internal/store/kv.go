package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

// 槽位键沿用扩展时代 chrome.storage 的命名，方便对照历史导出排查。
const (
	keySelection   = "easyapply:currentSelection"
	keyRunMeta     = "easyapply:current_run_meta"
	keyRunLog      = "easyapply:current_run_log"
	keyConfigCache = "easyapply:configCache"
	keyFetchedJobs = "easyapply:fetched_jobs_state"
	keyRunControl  = "easyapply:run_control"
	keyPendingSync = "easyapply:pending_sync_runs"
)

// Client 把持久化状态按整值读写到 Redis 槽位。没有部分更新：每个槽位
// 总是整体序列化，与只有单一写入方的运行模型匹配。
type Client struct {
	rdb *redis.Client
	// directoryFile 是 configCache 槽位为空时的兜底目录文件。
	directoryFile string
}

func NewClient(rdb *redis.Client, directoryFile string) *Client {
	return &Client{rdb: rdb, directoryFile: directoryFile}
}

func (c *Client) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// getJSON 读取槽位；键不存在时返回 ok=false 而不是错误。
func (c *Client) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SaveSelection 记录当前候选人/对接人选择。
func (c *Client) SaveSelection(ctx context.Context, sel apply.Selection) error {
	return c.setJSON(ctx, keySelection, sel)
}

// LoadSelection 返回最近一次保存的选择。
func (c *Client) LoadSelection(ctx context.Context) (*apply.Selection, error) {
	var sel apply.Selection
	ok, err := c.getJSON(ctx, keySelection, &sel)
	if err != nil || !ok {
		return nil, err
	}
	return &sel, nil
}

// BeginRun 写入运行元数据并清空运行日志与残留的停止请求。
func (c *Client) BeginRun(ctx context.Context, meta apply.RunMeta) error {
	if err := c.setJSON(ctx, keyRunMeta, meta); err != nil {
		return err
	}
	if err := c.setJSON(ctx, keyRunLog, []apply.SubmissionRecord{}); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, keyRunControl).Err(); err != nil {
		return fmt.Errorf("clear run control: %w", err)
	}
	return nil
}

// LoadRunMeta 返回活动运行的元数据，没有时返回 nil。
func (c *Client) LoadRunMeta(ctx context.Context) (*apply.RunMeta, error) {
	var meta apply.RunMeta
	ok, err := c.getJSON(ctx, keyRunMeta, &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// AppendRunSubmission 把一条确认投递追加进当前运行日志。读改写即可：
// 同一时刻只有一次运行在写这个槽位。
func (c *Client) AppendRunSubmission(ctx context.Context, rec apply.SubmissionRecord) error {
	subs, err := c.RunSubmissions(ctx)
	if err != nil {
		return err
	}
	return c.setJSON(ctx, keyRunLog, append(subs, rec))
}

// RunSubmissions 返回当前运行日志。
func (c *Client) RunSubmissions(ctx context.Context) ([]apply.SubmissionRecord, error) {
	var subs []apply.SubmissionRecord
	if _, err := c.getJSON(ctx, keyRunLog, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// ClearRun 删除运行元数据与日志槽位。
func (c *Client) ClearRun(ctx context.Context) error {
	if err := c.rdb.Del(ctx, keyRunMeta, keyRunLog, keyRunControl).Err(); err != nil {
		return fmt.Errorf("clear run slots: %w", err)
	}
	return nil
}

// RetireRun 把活动运行整体挪进待同步队列并释放活动槽位。由收尾流程
// 在中继上报失败时调用：数据不丢，新运行也不被挡住。
func (c *Client) RetireRun(ctx context.Context) error {
	meta, err := c.LoadRunMeta(ctx)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	subs, err := c.RunSubmissions(ctx)
	if err != nil {
		return err
	}

	pending, err := c.PendingSyncRuns(ctx)
	if err != nil {
		return err
	}
	pending = append(pending, apply.PendingRun{Meta: *meta, Submissions: subs})
	if err := c.setJSON(ctx, keyPendingSync, pending); err != nil {
		return err
	}
	return c.ClearRun(ctx)
}

// PendingSyncRuns 返回中继尚未确认的运行，没有时返回空。
func (c *Client) PendingSyncRuns(ctx context.Context) ([]apply.PendingRun, error) {
	var runs []apply.PendingRun
	if _, err := c.getJSON(ctx, keyPendingSync, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// SetPendingSyncRuns 重写待同步队列，空列表直接删键。
func (c *Client) SetPendingSyncRuns(ctx context.Context, runs []apply.PendingRun) error {
	if len(runs) == 0 {
		if err := c.rdb.Del(ctx, keyPendingSync).Err(); err != nil {
			return fmt.Errorf("clear pending sync runs: %w", err)
		}
		return nil
	}
	return c.setJSON(ctx, keyPendingSync, runs)
}

// RequestStop 供 API 进程写入跨进程停止请求。
func (c *Client) RequestStop(ctx context.Context, reason string) error {
	return c.setJSON(ctx, keyRunControl, reason)
}

// StopRequest 读取并消费停止请求。
func (c *Client) StopRequest(ctx context.Context) (string, bool) {
	var reason string
	ok, err := c.getJSON(ctx, keyRunControl, &reason)
	if err != nil || !ok {
		return "", false
	}
	_ = c.rdb.Del(ctx, keyRunControl).Err()
	return reason, true
}

// SaveCachedJobs 缓存抓取到的职位清单（popup 抓取流程写入）。
func (c *Client) SaveCachedJobs(ctx context.Context, jobs []apply.Job) error {
	return c.setJSON(ctx, keyFetchedJobs, jobs)
}

// CachedJobs 返回缓存的职位清单，没有时返回空。
func (c *Client) CachedJobs(ctx context.Context) ([]apply.Job, error) {
	var jobs []apply.Job
	if _, err := c.getJSON(ctx, keyFetchedJobs, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Directory 返回候选人/对接人目录：优先 configCache 槽位，缺失时读
// 兜底文件并回填缓存。两者都失败时返回空目录（调用方按 unknown 处理）。
func (c *Client) Directory(ctx context.Context) (apply.Directory, error) {
	var dir apply.Directory
	ok, err := c.getJSON(ctx, keyConfigCache, &dir)
	if err == nil && ok {
		return dir, nil
	}

	data, readErr := os.ReadFile(c.directoryFile)
	if readErr != nil {
		if err != nil {
			return apply.Directory{}, err
		}
		return apply.Directory{}, fmt.Errorf("read directory file: %w", readErr)
	}
	if err := json.Unmarshal(data, &dir); err != nil {
		return apply.Directory{}, fmt.Errorf("parse directory file: %w", err)
	}
	// 回填缓存失败不致命。
	_ = c.setJSON(ctx, keyConfigCache, dir)
	return dir, nil
}
