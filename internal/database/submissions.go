package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

// SubmissionStore 维护累计投递台账与按候选人的汇总。
type SubmissionStore struct {
	db *gorm.DB
}

func NewSubmissionStore(db *gorm.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// ArchiveSubmission 把一条确认投递追加进台账。
func (s *SubmissionStore) ArchiveSubmission(ctx context.Context, rec apply.SubmissionRecord) error {
	jobInfo, err := json.Marshal(rec.Job)
	if err != nil {
		return fmt.Errorf("marshal job info: %w", err)
	}

	row := Submission{
		CandidateID:   rec.CandidateID,
		CandidateName: rec.CandidateName,
		EmployeeID:    rec.EmployeeID,
		EmployeeName:  rec.EmployeeName,
		JobID:         rec.Job.JobID,
		JobTitle:      rec.Job.Title,
		Company:       rec.Job.Company,
		JobInfo:       jobInfo,
		AppliedAt:     rec.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// CandidateSummary 是台账按候选人聚合后的一行。
type CandidateSummary struct {
	CandidateID   int       `json:"candidate_id"`
	CandidateName string    `json:"candidate_name"`
	Count         int64     `json:"count"`
	LastApplied   time.Time `json:"lastApplied"`
}

// LogExport 是累计台账的导出文档：汇总 + 原始行。
type LogExport struct {
	ExportedAt time.Time                `json:"exportedAt"`
	Summary    []CandidateSummary       `json:"summary"`
	Raw        []apply.SubmissionRecord `json:"raw"`
}

// ExportLog 读出全部台账并按候选人聚合。
func (s *SubmissionStore) ExportLog(ctx context.Context, now time.Time) (*LogExport, error) {
	var summary []CandidateSummary
	err := s.db.WithContext(ctx).
		Model(&Submission{}).
		Select("candidate_id, candidate_name, count(*) as count").
		Group("candidate_id, candidate_name").
		Order("candidate_id").
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate submissions: %w", err)
	}

	var rows []Submission
	if err := s.db.WithContext(ctx).Order("applied_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	// 行按时间升序，最后一次出现即该候选人的最近投递。
	lastApplied := make(map[int]time.Time, len(summary))
	for _, row := range rows {
		lastApplied[row.CandidateID] = row.AppliedAt
	}
	for i := range summary {
		summary[i].LastApplied = lastApplied[summary[i].CandidateID]
	}

	raw := make([]apply.SubmissionRecord, 0, len(rows))
	for _, row := range rows {
		var job apply.Job
		if len(row.JobInfo) > 0 {
			_ = json.Unmarshal(row.JobInfo, &job)
		}
		if job.JobID == "" {
			job = apply.Job{JobID: row.JobID, Title: row.JobTitle, Company: row.Company}
		}
		raw = append(raw, apply.SubmissionRecord{
			CandidateID:   row.CandidateID,
			CandidateName: row.CandidateName,
			EmployeeID:    row.EmployeeID,
			EmployeeName:  row.EmployeeName,
			Job:           job,
			Timestamp:     row.AppliedAt,
		})
	}

	return &LogExport{ExportedAt: now, Summary: summary, Raw: raw}, nil
}
