package dlock

import "github.com/prometheus/client_golang/prometheus"

const (
	resultAcquired  = "acquired"
	resultContended = "contended"
	resultReleased  = "released"
	resultRenewed   = "renewed"
	resultLost      = "lost"
	resultError     = "error"
)

var (
	// AcquireCounter считает попытки захвата по результату: acquired, contended, error.
	AcquireCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlock_acquire_total",
		Help: "Total number of lock acquire attempts",
	}, []string{"result"})
	// ReleaseCounter считает освобождения по результату: released, lost, error.
	ReleaseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlock_release_total",
		Help: "Total number of lock releases",
	}, []string{"result"})
	// RenewCounter считает тики продления по результату: renewed, lost, error.
	RenewCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlock_renew_total",
		Help: "Total number of lease renewal attempts",
	}, []string{"result"})
	// ExpiredCounter считает хендлы, потерявшие аренду во время удержания.
	ExpiredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dlock_expired_total",
		Help: "Total number of leases lost while the critical section was running",
	})
	// HeldGauge число хендлов, удерживаемых процессом прямо сейчас.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dlock_held",
		Help: "Current number of locks held by this process",
	})
	// AcquireLatency время обращения к хранилищу при захвате.
	AcquireLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dlock_acquire_duration_seconds",
		Help:    "Latency of lock acquire round-trips",
		Buckets: prometheus.DefBuckets,
	})
)

// RegisterMetrics регистрирует метрики dlock в переданном реестре.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ReleaseCounter, RenewCounter, ExpiredCounter, HeldGauge, AcquireLatency)
}
