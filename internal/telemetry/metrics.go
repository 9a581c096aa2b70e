package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики планировщика отправок.
var (
	// LeaseAcquisitions — попытки взять lease по результату:
	// acquired, reclaimed, busy, not_found, error.
	LeaseAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_lease_acquisitions_total",
		Help: "Account lease acquisition attempts by result",
	}, []string{"result"})

	// LeasesHeld — lease'ы, выданные этим процессом и ещё не отпущенные.
	LeasesHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courier_leases_held",
		Help: "Account leases currently held by this process",
	})

	// StaleLeasesReclaimed — stale lease'ы, снятые sweep'ом или при acquire.
	StaleLeasesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_stale_leases_reclaimed_total",
		Help: "Stale account leases reclaimed",
	})

	// TaskOutcomes — завершённые send task'и по состоянию и причине.
	TaskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_send_tasks_total",
		Help: "Finished send tasks by terminal state and reason",
	}, []string{"state", "reason"})

	// DispatchDuration — длительность вызова драйвера.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courier_dispatch_duration_seconds",
		Help:    "Time spent in the automation driver send call",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"result"})

	// AccountsAutoDisabled — аккаунты, выключенные после серии неудач.
	AccountsAutoDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_accounts_auto_disabled_total",
		Help: "Accounts disabled after reaching the consecutive failure cap",
	})

	// HTTPRequests — запросы к API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_api_http_requests_total",
		Help: "Total HTTP requests handled by courier-api",
	}, []string{"method", "status"})
)
