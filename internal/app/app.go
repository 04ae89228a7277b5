// Package app arma el grafo de dependencias del servicio a partir de la
// config: store, breakers, directorios, motores y stores del token issuer.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/audit"
	"github.com/dropDatabas3/identityd/internal/bootstrap"
	"github.com/dropDatabas3/identityd/internal/cache"
	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/config"
	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/directory/graph"
	"github.com/dropDatabas3/identityd/internal/directory/ldap"
	"github.com/dropDatabas3/identityd/internal/directory/local"
	httpserver "github.com/dropDatabas3/identityd/internal/http"
	"github.com/dropDatabas3/identityd/internal/issuerstore"
	"github.com/dropDatabas3/identityd/internal/login"
	"github.com/dropDatabas3/identityd/internal/metrics"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
	"github.com/dropDatabas3/identityd/internal/rate"
	"github.com/dropDatabas3/identityd/internal/resilience"
	"github.com/dropDatabas3/identityd/internal/store"
	_ "github.com/dropDatabas3/identityd/internal/store/adapters/dal"
	"github.com/dropDatabas3/identityd/internal/users"
)

// App es el servicio cableado. Los campos de directorio son nil cuando el
// provider está deshabilitado.
type App struct {
	Config *config.Config
	Log    *zap.Logger

	Store        *store.DocumentStore
	Bootstrapper *bootstrap.Bootstrapper
	Resilience   *resilience.Provider
	Cache        cache.Client
	Audit        *audit.LogSink

	// ─── Directorios ───
	Directory  *directory.Registry
	Aggregator *directory.Aggregator
	LDAP       *ldap.Provider
	Graph      *graph.Provider
	Local      *local.Provider
	LocalDB    local.Querier

	// ─── Identidad ───
	Claims *claims.Engine
	Users  *users.Reconciler
	Login  *login.Flow

	// ─── Token issuer ───
	Clients   *issuerstore.CachedClientStore
	Grants    *issuerstore.GrantStore
	Resources *issuerstore.ResourceStore
	Profile   *issuerstore.ProfileService

	closers []func() error
}

type options struct {
	session    login.SessionManager
	graph      graph.Client
	ldapDialer ldap.Dialer
	localDB    local.Querier
	registerer prometheus.Registerer
}

// Option personaliza Build.
type Option func(*options)

// WithSessionManager define quién cierra la sesión externa ante violaciones
// de política.
func WithSessionManager(s login.SessionManager) Option {
	return func(o *options) { o.session = s }
}

// WithGraphClient reemplaza el cliente del SDK de Graph.
func WithGraphClient(c graph.Client) Option {
	return func(o *options) { o.graph = c }
}

// WithLDAPDialer reemplaza el dialer LDAP.
func WithLDAPDialer(d ldap.Dialer) Option {
	return func(o *options) { o.ldapDialer = d }
}

// WithLocalDB usa q en lugar de abrir un pool con local.dsn.
func WithLocalDB(q local.Querier) Option {
	return func(o *options) { o.localDB = q }
}

// WithRegisterer registra las métricas en reg en lugar del default.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// Build valida cfg y crea todos los componentes. No ejecuta el bootstrap del
// store: llamar Bootstrap.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (a *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid config: %w", err)
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := metrics.Register(o.registerer); err != nil {
		return nil, err
	}

	log := logger.L().With(logger.Component("app"))
	a = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.Resilience = resilience.NewProvider(cfg.Resilience.Defaults, cfg.ResilienceOverrides(), log)
	a.Audit = audit.NewLogSink(log, cfg.Audit.Buffer)
	a.closers = append(a.closers, func() error { a.Audit.Close(); return nil })

	// ─── Store ───
	conn, err := store.OpenAdapter(ctx, cfg.Store.Adapter())
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	storePolicy := a.Resilience.Policy(resilience.DependencyDocumentStore)
	a.Store = store.NewDocumentStore(conn, store.WithExecutor(storePolicy), store.WithLogger(log))
	a.Bootstrapper = bootstrap.New(bootstrap.Config{
		Conn:   conn,
		Policy: storePolicy,
		Seed:   cfg.Store.Seed,
		Logger: log,
	})

	a.Cache, err = cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("app: cache: %w", err)
	}
	a.closers = append(a.closers, a.Cache.Close)

	// ─── Directorios ───
	if err := a.buildDirectories(ctx, &o); err != nil {
		return nil, err
	}

	// ─── Identidad ───
	var cloud directory.Provider
	if a.Graph != nil {
		cloud = a.Graph
	}
	a.Claims = claims.NewEngine(cfg.Auth, cloud, log)
	a.Users = users.NewReconciler(a.Store.Users(), users.WithAudit(a.Audit), users.WithLogger(log))
	var lopts []login.Option
	if cfg.Login.MaxAttempts > 0 {
		lim := rate.NewFixedWindow(a.Cache, "login", cfg.Login.MaxAttempts, cfg.Login.Window, clock.WallClock)
		lopts = append(lopts, login.WithLimiter(lim))
	}
	a.Login = login.NewFlow(a.Claims, a.Users, o.session, a.Audit, log, lopts...)

	// ─── Token issuer ───
	deps := issuerstore.Deps{Audit: a.Audit, Clock: clock.WallClock, Logger: log}
	a.Clients = issuerstore.NewCachedClientStore(issuerstore.NewClientStore(a.Store.Clients(), deps), a.Cache, cfg.Cache.TTL)
	a.Grants = issuerstore.NewGrantStore(a.Store.Grants(), deps)
	a.Resources = issuerstore.NewResourceStore(a.Store.Resources(), deps)
	a.Profile = issuerstore.NewProfileService(a.Store.Users(), deps)

	log.Info("app built",
		logger.String("store", cfg.Store.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.Any("directories", a.Directory.Names()),
	)
	return a, nil
}

func (a *App) buildDirectories(ctx context.Context, o *options) error {
	cfg := a.Config
	a.Directory = directory.NewRegistry()

	if cfg.LDAP.Enabled {
		lopts := []ldap.Option{ldap.WithLogger(a.Log)}
		if o.ldapDialer != nil {
			lopts = append(lopts, ldap.WithDialer(o.ldapDialer))
		}
		a.LDAP = ldap.New(cfg.LDAP.Config, a.Resilience.Policy(resilience.DependencyLDAP), lopts...)
		if err := a.Directory.Register(a.LDAP); err != nil {
			return err
		}
	}

	if cfg.Graph.Enabled {
		client := o.graph
		if client == nil {
			c, err := graph.NewClient(cfg.Graph.Config)
			if err != nil {
				return fmt.Errorf("app: graph client: %w", err)
			}
			client = c
		}
		a.Graph = graph.New(cfg.Graph.Config, client, a.Resilience.Policy(resilience.DependencyGraph), a.Log)
		if err := a.Directory.Register(a.Graph); err != nil {
			return err
		}
	}

	if cfg.Local.Enabled {
		db := o.localDB
		if db == nil {
			pool, err := pgxpool.New(ctx, cfg.Local.DSN)
			if err != nil {
				return fmt.Errorf("app: local pool: %w", err)
			}
			a.closers = append(a.closers, func() error { pool.Close(); return nil })
			db = pool
		}
		a.LocalDB = db
		a.Local = local.New(cfg.Local.Config, db, a.Resilience.Policy(resilience.DependencyLocalStore), a.Log)
		if err := a.Directory.Register(a.Local); err != nil {
			return err
		}
	}

	a.Aggregator = directory.NewAggregator(a.Directory, a.Log)
	return nil
}

// Bootstrap deja el store listo (base, vistas, seed).
func (a *App) Bootstrap(ctx context.Context) error {
	return a.Bootstrapper.Run(ctx)
}

// OpsHandler arma el router de /healthz, /readyz, /metrics y /v1/principals.
func (a *App) OpsHandler(reg prometheus.Registerer, gatherer prometheus.Gatherer) (http.Handler, error) {
	return httpserver.NewRouter(httpserver.Deps{
		Ready:      a.Bootstrapper,
		Breakers:   a.Resilience,
		Search:     a.Aggregator,
		Version:    a.Config.App.Version,
		Registerer: reg,
		Gatherer:   gatherer,
		Logger:     a.Log,
	})
}

// Close libera recursos en orden inverso de creación.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
