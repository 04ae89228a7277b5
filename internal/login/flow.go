// Package login orquesta el cierre de un login federado: resolución de
// claims, reconciliación del usuario y auditoría del resultado.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/audit"
	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/metrics"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
	"github.com/dropDatabas3/identityd/internal/rate"
	"github.com/dropDatabas3/identityd/internal/util"
)

// Resolver resuelve el resultado crudo en un bundle de claims.
type Resolver interface {
	Resolve(ctx context.Context, auth *claims.AuthenticationResult, authz *claims.AuthorizationContext) (*claims.Result, error)
}

// Reconciler crea o actualiza el usuario persistido.
type Reconciler interface {
	Login(ctx context.Context, provider, externalID string, incoming []repository.Claim, clientID string) (*repository.User, error)
}

// SessionManager cierra la sesión externa del scheme.
type SessionManager interface {
	SignOut(ctx context.Context, scheme string) error
}

// Authenticator verifica credenciales locales.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*claims.AuthenticationResult, error)
}

// Outcome es un login completado.
type Outcome struct {
	User *repository.User
	// SubjectID es el subject de la sesión emitida.
	SubjectID string
	Result    *claims.Result
}

type Flow struct {
	resolver Resolver
	users    Reconciler
	session  SessionManager
	sink     audit.Sink
	limiter  rate.Limiter
	log      *zap.Logger
}

// Option configura el Flow.
type Option func(*Flow)

// WithLimiter limita los intentos de PasswordLogin por username.
func WithLimiter(l rate.Limiter) Option {
	return func(f *Flow) { f.limiter = l }
}

// NewFlow crea el flujo. session y sink pueden ser nil.
func NewFlow(r Resolver, users Reconciler, session SessionManager, sink audit.Sink, log *zap.Logger, opts ...Option) *Flow {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = logger.L()
	}
	f := &Flow{
		resolver: r,
		users:    users,
		session:  session,
		sink:     sink,
		log:      log.With(logger.Layer("login"), logger.Component("flow")),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Complete cierra el login: resuelve claims, reconcilia el usuario por su id
// efectivo y audita. Ante una violación de política cierra la sesión externa
// y retorna el *claims.PolicyError.
func (f *Flow) Complete(ctx context.Context, auth *claims.AuthenticationResult, authz *claims.AuthorizationContext) (*Outcome, error) {
	res, err := f.resolver.Resolve(ctx, auth, authz)
	if err != nil {
		provider, scheme := "", ""
		if auth != nil {
			provider = auth.Properties[claims.PropertyProvider]
			scheme = auth.Properties[claims.PropertyScheme]
		}
		if pe, ok := claims.AsPolicyError(err); ok {
			f.signOut(ctx, scheme)
			f.fail(ctx, provider, "", clientOf(authz), string(pe.Kind), err)
			return nil, err
		}
		f.fail(ctx, provider, "", clientOf(authz), "resolve", err)
		return nil, err
	}

	externalID := res.EffectiveUserID()
	u, err := f.users.Login(ctx, res.Provider, externalID, res.Claims, res.ClientID)
	if err != nil {
		f.fail(ctx, res.Provider, externalID, res.ClientID, "reconcile", err)
		return nil, err
	}

	out := &Outcome{User: u, SubjectID: res.EffectiveSubjectID(u), Result: res}
	metrics.LoginOutcomes.WithLabelValues(res.Provider, "success").Inc()
	f.sink.Emit(ctx, audit.Event{
		Type:      audit.LoginSuccess,
		Provider:  res.Provider,
		SubjectID: out.SubjectID,
		ClientID:  res.ClientID,
		Fields:    map[string]any{"scheme": res.Scheme, "cloud": res.CloudSourced},
	})
	f.log.Info("login completed",
		logger.Provider(res.Provider),
		logger.SubjectID(out.SubjectID),
		logger.ClientID(res.ClientID),
	)
	return out, nil
}

var (
	// ErrInvalidCredentials credenciales locales rechazadas.
	ErrInvalidCredentials = errors.New("login: invalid credentials")
	// ErrTooManyAttempts el username superó el límite de intentos de la ventana.
	ErrTooManyAttempts = errors.New("login: too many attempts")
)

// ThrottledError indica cuánto esperar antes de reintentar.
// errors.Is(err, ErrTooManyAttempts) es true.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrTooManyAttempts, e.RetryAfter.Round(time.Second))
}

func (e *ThrottledError) Is(target error) bool { return target == ErrTooManyAttempts }

// PasswordLogin autentica contra el directorio local y completa el login.
// Con limiter cada intento cuenta contra la ventana del username.
func (f *Flow) PasswordLogin(ctx context.Context, a Authenticator, username, password string, authz *claims.AuthorizationContext) (*Outcome, error) {
	if err := f.throttle(ctx, username, clientOf(authz)); err != nil {
		return nil, err
	}
	auth, err := a.Authenticate(ctx, username, password)
	if err != nil {
		f.fail(ctx, "local", username, clientOf(authz), "credentials", err)
		if errors.Is(err, repository.ErrArgumentNull) {
			return nil, err
		}
		return nil, errors.Join(ErrInvalidCredentials, err)
	}
	return f.Complete(ctx, auth, authz)
}

// throttle falla abierto si el contador no responde.
func (f *Flow) throttle(ctx context.Context, username, clientID string) error {
	if f.limiter == nil || username == "" {
		return nil
	}
	res, err := f.limiter.Allow(ctx, "login:"+username)
	if err != nil {
		f.log.Warn("login limiter unavailable", logger.Err(err))
		return nil
	}
	if res.Allowed {
		return nil
	}
	terr := &ThrottledError{RetryAfter: res.RetryAfter}
	f.fail(ctx, "local", username, clientID, "throttled", terr)
	return terr
}

// signOut no bloquea ni propaga errores.
func (f *Flow) signOut(ctx context.Context, scheme string) {
	if f.session == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := f.session.SignOut(ctx, scheme); err != nil {
			f.log.Warn("external sign-out failed", logger.Scheme(scheme), logger.Err(err))
		}
	}()
}

func (f *Flow) fail(ctx context.Context, provider, subject, clientID, reason string, err error) {
	metrics.LoginOutcomes.WithLabelValues(provider, "failure").Inc()
	f.sink.Emit(ctx, audit.Event{
		Type:      audit.LoginFailure,
		Provider:  provider,
		SubjectID: subject,
		ClientID:  clientID,
		Reason:    reason,
	})
	f.log.Warn("login failed",
		logger.Provider(provider),
		logger.String("user", util.MaskIdentifier(subject)),
		logger.String("reason", reason),
		logger.Err(err),
	)
}

func clientOf(authz *claims.AuthorizationContext) string {
	if authz == nil {
		return ""
	}
	return authz.ClientID
}
