package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// Deps dependencias del servidor de operaciones. Search es opcional: sin él
// no se montan las rutas /v1/principals.
type Deps struct {
	Ready    ReadinessChecker
	Breakers BreakerStates
	Search   PrincipalSearcher
	Version  string

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

// NewRouter arma el router chi con probes, métricas y búsqueda de principals.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Logger == nil {
		d.Logger = logger.L()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	metricsHandler, err := MetricsHandler(d.Registerer, d.Gatherer)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging(d.Logger.With(logger.Layer("http"))), WithRecover, WithMetrics)

	h := &healthController{ready: d.Ready, breakers: d.Breakers, version: d.Version}
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	if d.Search != nil {
		p := &principalsController{search: d.Search}
		r.Route("/v1/principals", func(r chi.Router) {
			r.Get("/", p.Search)
			r.Get("/{subjectID}", p.Find)
		})
	}
	return r, nil
}

// Server envuelve http.Server con shutdown ordenado.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = logger.L()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log.With(logger.Layer("http")),
	}
}

// Run sirve hasta que ctx se cancela y luego hace shutdown con timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ops server listening", logger.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("ops server stopped")
	return nil
}
