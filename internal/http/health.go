package http

import (
	"net/http"

	"github.com/dropDatabas3/identityd/internal/observability/logger"
	"github.com/dropDatabas3/identityd/internal/resilience"
)

// ReadinessChecker reporta si el store terminó el bootstrap.
type ReadinessChecker interface {
	Ready() bool
}

// BreakerStates expone el estado de los breakers por dependencia.
type BreakerStates interface {
	States() map[resilience.Dependency]resilience.State
}

// HealthResponse cuerpo de /readyz.
type HealthResponse struct {
	Status   string            `json:"status"` // ready | degraded | unavailable
	Version  string            `json:"version,omitempty"`
	Store    bool              `json:"store_ready"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

type healthController struct {
	ready    ReadinessChecker
	breakers BreakerStates
	version  string
}

// Healthz: el proceso responde.
func (c *healthController) Healthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz: unavailable si el store no está listo o su breaker está abierto;
// degraded si algún directorio tiene el breaker abierto.
func (c *healthController) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ready", Version: c.version, Store: c.ready == nil || c.ready.Ready()}
	if c.breakers != nil {
		resp.Breakers = map[string]string{}
		for dep, st := range c.breakers.States() {
			resp.Breakers[string(dep)] = st.String()
			if st == resilience.StateOpen {
				resp.Status = "degraded"
				if dep == resilience.DependencyDocumentStore {
					resp.Store = false
				}
			}
		}
	}
	status := http.StatusOK
	if !resp.Store {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	logger.From(r.Context()).Debug("health check completed",
		logger.String("status", resp.Status),
		logger.Int("breakers", len(resp.Breakers)),
	)
	WriteJSON(w, status, resp)
}
