// Package metrics счётчики Prometheus для изменений расписания и очереди напоминаний.
// Все методы допускают nil-получатель, поэтому метрики можно не подключать.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics коллекторы приложения
type Metrics struct {
	registry       *prometheus.Registry
	handler        http.Handler
	mutations      *prometheus.CounterVec
	mutationTime   *prometheus.HistogramVec
	queueOps       *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	reconcileTotal prometheus.Counter
}

// New регистрирует коллекторы в отдельном реестре
func New() *Metrics {
	registry := prometheus.NewRegistry()

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "class_mutations_total",
		Help: "Schedule mutations by operation and result",
	}, []string{"op", "result"})

	mutationTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "class_mutation_duration_seconds",
		Help:    "Duration of load-mutate-commit cycles",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	queueOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_queue_operations_total",
		Help: "Reminder queue operations by kind",
	}, []string{"op"})

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_deliveries_total",
		Help: "Fired reminders by outcome",
	}, []string{"result"})

	reconcileTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminder_reconciliations_total",
		Help: "Reminder reconciliations run",
	})

	registry.MustRegister(mutations, mutationTime, queueOps, deliveries, reconcileTotal)

	return &Metrics{
		registry:       registry,
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		mutations:      mutations,
		mutationTime:   mutationTime,
		queueOps:       queueOps,
		deliveries:     deliveries,
		reconcileTotal: reconcileTotal,
	}
}

// Handler отдаёт метрики по HTTP
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveMutation учитывает операцию изменения расписания
func (m *Metrics) ObserveMutation(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mutations.WithLabelValues(op, result).Inc()
	m.mutationTime.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveQueueOp учитывает операцию с очередью (schedule, cancel, fire)
func (m *Metrics) ObserveQueueOp(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.queueOps.WithLabelValues(op).Add(float64(n))
}

// ObserveReconcile учитывает прогон сверки напоминаний
func (m *Metrics) ObserveReconcile() {
	if m == nil {
		return
	}
	m.reconcileTotal.Inc()
}

// ObserveDelivery учитывает результат доставки напоминания (sent, skipped, failed)
func (m *Metrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// Registry возвращает реестр коллекторов
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
