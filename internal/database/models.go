package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Submission 是累计投递台账里的一行，对应一次确认成功的申请。
// 写入后不再修改。
type Submission struct {
	gorm.Model
	CandidateID   int            `gorm:"index"`
	CandidateName string         `gorm:"size:128"`
	EmployeeID    int            `gorm:"index"`
	EmployeeName  string         `gorm:"size:128"`
	JobID         string         `gorm:"size:64;index"`
	JobTitle      string         `gorm:"size:255"`
	Company       string         `gorm:"size:255"`
	JobInfo       datatypes.JSON `gorm:"type:jsonb"` // 职位原始字段，保留导出兼容性
	AppliedAt     time.Time      `gorm:"index"`
}
