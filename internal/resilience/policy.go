package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/metrics"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// Dependency identifica un sistema externo con su propio breaker.
type Dependency string

const (
	DependencyLDAP          Dependency = "ldap"
	DependencyGraph         Dependency = "graph"
	DependencyLocalStore    Dependency = "local_store"
	DependencyDocumentStore Dependency = "document_store"
)

// Settings parámetros de una política.
type Settings struct {
	// FailureThreshold fallas consecutivas que abren el breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`
	// Window período tras el cual se limpian los contadores en estado closed.
	Window time.Duration `yaml:"window"`
	// OpenTimeout duración del estado open antes de pasar a half-open.
	OpenTimeout time.Duration `yaml:"open_timeout"`
	// HalfOpenRequests llamadas de prueba permitidas en half-open.
	HalfOpenRequests uint32 `yaml:"half_open_requests"`

	// MaxRetries reintentos tras el primer intento. 0 en una Policy = sin
	// retry; en config 0 toma el default y un valor negativo deshabilita.
	MaxRetries int `yaml:"max_retries"`
	// RetryInitialInterval / RetryMaxInterval acotan el backoff exponencial.
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`

	// CallTimeout timeout por intento (0 = solo el del ctx).
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultSettings retorna los valores por defecto.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold:     5,
		Window:               time.Minute,
		OpenTimeout:          30 * time.Second,
		HalfOpenRequests:     1,
		MaxRetries:           2,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     2 * time.Second,
	}
}

// Merge completa los campos en cero de s con los de base. Los overrides por
// dependencia se combinan así con los defaults configurados.
func (s Settings) Merge(base Settings) Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = base.FailureThreshold
	}
	if s.Window == 0 {
		s.Window = base.Window
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = base.OpenTimeout
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = base.HalfOpenRequests
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = base.MaxRetries
	}
	if s.RetryInitialInterval == 0 {
		s.RetryInitialInterval = base.RetryInitialInterval
	}
	if s.RetryMaxInterval == 0 {
		s.RetryMaxInterval = base.RetryMaxInterval
	}
	if s.CallTimeout == 0 {
		s.CallTimeout = base.CallTimeout
	}
	return s
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.FailureThreshold == 0 {
		s.FailureThreshold = d.FailureThreshold
	}
	if s.Window == 0 {
		s.Window = d.Window
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = d.OpenTimeout
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = d.HalfOpenRequests
	}
	if s.RetryInitialInterval == 0 {
		s.RetryInitialInterval = d.RetryInitialInterval
	}
	if s.RetryMaxInterval == 0 {
		s.RetryMaxInterval = d.RetryMaxInterval
	}
	return s
}

// State estado del breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	}
	return StateClosed
}

// Policy es el pipeline de llamada de una dependencia. Segura para uso
// concurrente; el estado del breaker se actualiza atómicamente dentro de
// gobreaker.
type Policy struct {
	dep      Dependency
	settings Settings
	cb       *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// NewPolicy crea una política. En producción se obtiene vía Provider.Policy
// para garantizar una sola instancia por dependencia.
func NewPolicy(dep Dependency, s Settings, log *zap.Logger) *Policy {
	s = s.withDefaults()
	if log == nil {
		log = logger.L()
	}
	p := &Policy{
		dep:      dep,
		settings: s,
		log:      log.With(logger.Layer("resilience"), logger.Dependency(string(dep))),
	}
	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(dep),
		MaxRequests: s.HalfOpenRequests,
		Interval:    s.Window,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: p.onStateChange,
		IsSuccessful:  func(err error) bool { return err == nil || !IsTransient(err) },
	})
	metrics.BreakerState.WithLabelValues(string(dep)).Set(float64(StateClosed))
	return p
}

func (p *Policy) onStateChange(_ string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)
	metrics.BreakerState.WithLabelValues(string(p.dep)).Set(float64(t))
	metrics.BreakerTransitions.WithLabelValues(string(p.dep), f.String(), t.String()).Inc()
	if t == StateOpen {
		p.log.Warn("circuit opened", zap.Duration("cooldown", p.settings.OpenTimeout))
		return
	}
	p.log.Info("circuit state changed", zap.String("from", f.String()), zap.String("to", t.String()))
}

// Dependency retorna la dependencia protegida.
func (p *Policy) Dependency() Dependency { return p.dep }

// State retorna el estado actual del breaker.
func (p *Policy) State() State { return fromGobreaker(p.cb.State()) }

// Execute ejecuta fn con retry fuera del breaker. Con el breaker abierto
// retorna ErrCircuitOpen sin invocar fn. Los errores de dominio (not found,
// conflict, ...) no cuentan como falla ni se reintentan.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		_, err := p.cb.Execute(func() (interface{}, error) {
			return nil, p.call(ctx, fn)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%s: %w", p.dep, repository.ErrCircuitOpen))
		case !IsTransient(err):
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(max(p.settings.MaxRetries, 0))), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		p.log.Debug("retrying call", logger.Attempt(attempt), logger.Err(err), zap.Duration("wait", wait))
	})
}

func (p *Policy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.settings.CallTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.settings.CallTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.settings.RetryInitialInterval
	b.MaxInterval = p.settings.RetryMaxInterval
	b.MaxElapsedTime = 0
	return b
}

// IsTransient indica si err es una falla de la dependencia (cuenta para el
// breaker y se reintenta). Los sentinels de dominio y la cancelación del
// caller no lo son.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrAlreadyExists),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrArgumentNull),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, repository.ErrCircuitOpen):
		return false
	}
	return true
}

// Call es Execute para funciones que retornan un valor.
func Call[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
