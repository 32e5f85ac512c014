package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Job 表示一条待投递的职位信息，jobId 为唯一键。
type Job struct {
	JobID    string `json:"jobId"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location,omitempty"`
}

// JobURL builds the target job-view URL for a tab.
func (j Job) JobURL(baseURL string) string {
	return fmt.Sprintf("%s/jobs/view/%s", strings.TrimRight(baseURL, "/"), j.JobID)
}

// JobSource resolves the queue for a run: an explicit list wins, then the
// cached scrape from storage, then the bundled jobs file.
type JobSource struct {
	Store    CachedJobLoader
	FilePath string
}

// CachedJobLoader reads the fetched-jobs slot from durable storage.
type CachedJobLoader interface {
	CachedJobs(ctx context.Context) ([]Job, error)
}

// Resolve returns the job queue for a run, sorted newest-first.
func (s *JobSource) Resolve(ctx context.Context, explicit []Job) ([]Job, error) {
	// 排序在副本上进行，调用方传入的切片保持原样。
	jobs := append([]Job(nil), explicit...)
	if len(jobs) == 0 && s.Store != nil {
		cached, err := s.Store.CachedJobs(ctx)
		if err == nil && len(cached) > 0 {
			jobs = cached
		}
	}
	if len(jobs) == 0 {
		loaded, err := LoadJobsFile(s.FilePath)
		if err != nil {
			return nil, err
		}
		jobs = loaded
	}
	SortJobsDescending(jobs)
	return jobs, nil
}

// LoadJobsFile reads the bundled jobs JSON. The file is either a bare array
// or an object with a "jobs" array, matching both export formats.
func LoadJobsFile(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}

	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err == nil {
		return jobs, nil
	}

	var wrapped struct {
		Jobs []Job `json:"jobs"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	return wrapped.Jobs, nil
}

// SortJobsDescending orders the queue newest posting first. Job ids on the
// target site are numeric and monotonically increasing, but ids coming from
// exports are strings, so the compare is numeric-aware with a string
// fallback.
func SortJobsDescending(jobs []Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return compareJobIDs(jobs[i].JobID, jobs[k].JobID) > 0
	})
}

func compareJobIDs(a, b string) int {
	na, errA := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	nb, errB := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
