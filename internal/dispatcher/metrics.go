// Package dispatcher Prometheus 指标
package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 调度器指标
//
// 所有记录方法对 nil 接收者安全，测试中可不注入指标。
type Metrics struct {
	TasksSubmitted *prometheus.CounterVec
	TasksDeduped   prometheus.Counter
	TasksFinished  *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TasksActive    prometheus.Gauge
	EventsDropped  prometheus.Counter

	// PersistenceWarnings 缓存写入成功但持久层重试后仍失败的次数
	PersistenceWarnings prometheus.Counter
}

// NewMetrics 创建并注册调度器指标
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TasksSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_tasks_submitted_total",
				Help:      "Total tasks submitted by type",
			},
			[]string{"type"},
		),
		TasksDeduped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_tasks_deduped_total",
				Help:      "Submissions that reused an in-flight task via dedup key",
			},
		),
		TasksFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_tasks_finished_total",
				Help:      "Total tasks finished by type and terminal status",
			},
			[]string{"type", "status"},
		),
		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatcher_task_duration_seconds",
				Help:      "Task execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"type"},
		),
		TasksActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatcher_tasks_active",
				Help:      "Tasks currently executing",
			},
		),
		EventsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_events_dropped_total",
				Help:      "Task events dropped due to full subscriber channels",
			},
		),
		PersistenceWarnings: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_persistence_warnings_total",
				Help:      "Status updates persisted to cache only after the durable retry failed",
			},
		),
	}
}

// RecordSubmitted 记录一次任务提交
func (m *Metrics) RecordSubmitted(taskType string) {
	if m == nil {
		return
	}
	m.TasksSubmitted.WithLabelValues(taskType).Inc()
}

// RecordDeduped 记录一次幂等复用
func (m *Metrics) RecordDeduped() {
	if m == nil {
		return
	}
	m.TasksDeduped.Inc()
}

// RecordStarted 记录任务开始执行
func (m *Metrics) RecordStarted() {
	if m == nil {
		return
	}
	m.TasksActive.Inc()
}

// RecordFinished 记录任务结束
func (m *Metrics) RecordFinished(taskType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TasksActive.Dec()
	m.TasksFinished.WithLabelValues(taskType, status).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordEventDropped 记录一次事件丢弃
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// RecordPersistenceWarning 记录一次持久层降级写入
func (m *Metrics) RecordPersistenceWarning() {
	if m == nil {
		return
	}
	m.PersistenceWarnings.Inc()
}
