package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del core de identidad. Viven en un paquete aparte para que store,
// resilience, directory y users puedan reportar sin ciclos de import.

var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "identity_breaker_state",
		Help: "Estado del circuit breaker por dependencia (0=closed, 1=half_open, 2=open)",
	}, []string{"dependency"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_breaker_transitions_total",
		Help: "Transiciones de estado del circuit breaker",
	}, []string{"dependency", "from", "to"})

	StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_store_operations_total",
		Help: "Operaciones contra el document store por resultado",
	}, []string{"op", "result"}) // result: ok|not_found|conflict|exists|error

	StoreLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_store_latency_ms",
		Help:    "Latencia de operaciones del document store en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"op"})

	DirectorySearchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_directory_search_seconds",
		Help:    "Latencia de búsquedas por directory provider",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op"})

	DirectorySearchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_directory_search_failures_total",
		Help: "Búsquedas degradadas a resultado vacío por error de transporte o breaker abierto",
	}, []string{"provider"})

	ReconcileAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_reconcile_attempts_total",
		Help: "Intentos de reconciliación de usuario",
	}, []string{"result"}) // result: created|updated|retry|failed

	LoginOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_login_total",
		Help: "Logins federados por provider y resultado",
	}, []string{"provider", "result"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		BreakerState,
		BreakerTransitions,
		StoreOperations,
		StoreLatency,
		DirectorySearchLatency,
		DirectorySearchFailures,
		ReconcileAttempts,
		LoginOutcomes,
	}
}

// Register registra las métricas en el registry dado (o el default si es nil).
// Es idempotente: un collector ya registrado no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Result clasifica un error del store para la etiqueta result.
func Result(err error, classify func(error) string) string {
	if err == nil {
		return "ok"
	}
	if classify != nil {
		if r := classify(err); r != "" {
			return r
		}
	}
	return "error"
}
