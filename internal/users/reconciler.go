// Package users reconcilia el registro durable de un usuario con los claims
// de cada login federado.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/audit"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/metrics"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// RetrySettings acota el reintento de la reconciliación completa ante
// Conflict o AlreadyExists.
type RetrySettings struct {
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// DefaultRetry valores por defecto.
func DefaultRetry() RetrySettings {
	return RetrySettings{MaxRetries: 5, InitialInterval: 20 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
}

// Reconciler implementa el upsert idempotente de usuarios.
type Reconciler struct {
	repo  repository.UserRepository
	clk   clock.Clock
	sink  audit.Sink
	retry RetrySettings
	log   *zap.Logger
}

// Option configura el Reconciler.
type Option func(*Reconciler)

func WithClock(c clock.Clock) Option   { return func(r *Reconciler) { r.clk = c } }
func WithAudit(s audit.Sink) Option    { return func(r *Reconciler) { r.sink = s } }
func WithLogger(l *zap.Logger) Option  { return func(r *Reconciler) { r.log = l } }
func WithRetry(s RetrySettings) Option { return func(r *Reconciler) { r.retry = s } }

// NewReconciler crea el Reconciler sobre repo.
func NewReconciler(repo repository.UserRepository, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:  repo,
		clk:   clock.WallClock,
		sink:  audit.Nop{},
		retry: DefaultRetry(),
		log:   logger.L(),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With(logger.Layer("users"), logger.Component("reconciler"))
	return r
}

var errRetry = errors.New("reconcile: lost race")

// Login busca el usuario por (provider, externalID) y lo crea o actualiza con
// los claims de este login. Los claims se reemplazan completos: los Role
// previos se descartan. Ante una carrera con otro login del mismo usuario se
// repite todo el read-modify-write.
func (r *Reconciler) Login(ctx context.Context, provider, externalID string, incoming []repository.Claim, clientID string) (*repository.User, error) {
	if provider == "" {
		return nil, repository.ArgumentNull("provider")
	}
	if externalID == "" {
		return nil, repository.ArgumentNull("externalId")
	}
	log := r.log.With(logger.Provider(provider), logger.SubjectID(externalID), logger.ClientID(clientID))
	filtered := FilterClaims(incoming)

	var (
		result  *repository.User
		created bool
		attempt int
	)
	op := func() error {
		attempt++
		u, c, err := r.reconcile(ctx, provider, externalID, filtered, clientID)
		if err == nil {
			result, created = u, c
			return nil
		}
		if repository.IsConflict(err) || repository.IsAlreadyExists(err) {
			return errors.Join(errRetry, err)
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retry.InitialInterval
	b.MaxInterval = r.retry.MaxInterval
	b.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		metrics.ReconcileAttempts.WithLabelValues("retry").Inc()
		log.Debug("reconcile race, retrying", logger.Attempt(attempt), logger.Duration(wait), logger.Err(err))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, r.retry.MaxRetries), ctx), notify)
	if err != nil {
		metrics.ReconcileAttempts.WithLabelValues("failed").Inc()
		log.Error("reconcile failed", logger.Attempt(attempt), logger.Err(err))
		return nil, err
	}

	ev := audit.Event{
		Type:      audit.EntityUpdated,
		Entity:    "user",
		EntityID:  result.DocumentID(),
		Provider:  provider,
		SubjectID: externalID,
		ClientID:  clientID,
	}
	if created {
		ev.Type = audit.EntityCreated
		metrics.ReconcileAttempts.WithLabelValues("created").Inc()
	} else {
		metrics.ReconcileAttempts.WithLabelValues("updated").Inc()
	}
	r.sink.Emit(ctx, ev)
	log.Info("user reconciled", logger.Bool("created", created), logger.Count(len(result.Claims)))
	return result, nil
}

// reconcile es un intento: lee, muta y escribe con precondición.
func (r *Reconciler) reconcile(ctx context.Context, provider, externalID string, claims []repository.Claim, clientID string) (*repository.User, bool, error) {
	now := r.clk.Now().UTC()
	u, found, err := r.repo.FindByExternalID(ctx, provider, externalID)
	if err != nil {
		return nil, false, err
	}

	if !found {
		u = &repository.User{
			SubjectID:    externalID,
			ProviderName: provider,
			CreatedAt:    now,
		}
	}
	u.Claims = append([]repository.Claim(nil), claims...)
	ApplyNames(u)
	if clientID != "" {
		u.StampLogin(clientID, now)
	}

	if !found {
		return u, true, r.repo.Add(ctx, u)
	}
	return u, false, r.repo.Update(ctx, u)
}
