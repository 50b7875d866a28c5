package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики оркестратора. Экспортируются на /metrics
// через promhttp в main.
var (
	// TasksTotal — счётчик переходов задач в финальные статусы.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tramita",
		Name:      "tasks_total",
		Help:      "Terminal task transitions by status.",
	}, []string{"status"})

	// TaskDuration — продолжительность задач от RUNNING до финала.
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tramita",
		Name:      "task_duration_seconds",
		Help:      "Task duration from admission to terminal state.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// PoolRunning — текущее количество занятых слотов пула.
	PoolRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tramita",
		Name:      "pool_running",
		Help:      "Worker sessions currently bound.",
	})

	// PoolCapacity — размер пула.
	PoolCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tramita",
		Name:      "pool_capacity",
		Help:      "Configured maximum of concurrent worker sessions.",
	})

	// QueueDepth — глубина FIFO-очереди ожидающих задач.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tramita",
		Name:      "queue_depth",
		Help:      "Pending tasks waiting for a pool slot.",
	})

	// EventsTotal — счётчик событий воркеров по типам.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tramita",
		Name:      "worker_events_total",
		Help:      "Worker events appended, by event type.",
	}, []string{"type"})

	// InterventionsTotal — счётчик входов в INTERVENTION_NEEDED по причинам.
	InterventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tramita",
		Name:      "interventions_total",
		Help:      "Transitions into INTERVENTION_NEEDED, by entry reason.",
	}, []string{"reason"})
)

// ObserveTaskFinished фиксирует финал задачи.
func ObserveTaskFinished(status string, duration time.Duration) {
	TasksTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		TaskDuration.Observe(duration.Seconds())
	}
}
