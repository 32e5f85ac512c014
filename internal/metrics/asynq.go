package metrics

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "easyapply",
			Subsystem: "asynq",
			Name:      "task_duration_seconds",
			Help:      "任务处理耗时分布（秒）。一次投递运行就是一个任务，桶相应放宽。",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"task_type", "outcome"},
	)

	taskInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "easyapply",
			Subsystem: "asynq",
			Name:      "tasks_in_progress",
			Help:      "当前正在处理的任务数。",
		},
		[]string{"task_type"},
	)
)

// AsynqMetricsMiddleware 按任务类型与结果采集处理耗时。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			gauge := taskInProgress.WithLabelValues(task.Type())
			gauge.Inc()
			start := time.Now()

			err := next.ProcessTask(ctx, task)

			gauge.Dec()
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			taskDuration.WithLabelValues(task.Type(), outcome).Observe(time.Since(start).Seconds())
			return err
		})
	}
}
