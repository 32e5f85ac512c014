package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "easyapply",
			Subsystem: "apply",
			Name:      "submissions_total",
			Help:      "确认成功的投递总数。",
		},
	)

	jobFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyapply",
			Subsystem: "apply",
			Name:      "jobs_failed_total",
			Help:      "按原因统计的单职位失败数。",
		},
		[]string{"reason"},
	)

	runFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyapply",
			Subsystem: "apply",
			Name:      "runs_finished_total",
			Help:      "按结束方式统计的运行数。",
		},
		[]string{"status"},
	)
)

// ApplyMetrics 实现 apply.Metrics，向 Prometheus 上报运行事件。
type ApplyMetrics struct{}

func NewApplyMetrics() *ApplyMetrics { return &ApplyMetrics{} }

func (ApplyMetrics) SubmissionRecorded() { submissionTotal.Inc() }

func (ApplyMetrics) JobFailed(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	jobFailedTotal.WithLabelValues(reason).Inc()
}

func (ApplyMetrics) RunFinished(status string) {
	runFinishedTotal.WithLabelValues(status).Inc()
}
