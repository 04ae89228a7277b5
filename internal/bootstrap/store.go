// Package bootstrap prepara el document store en el primer arranque: crea la
// base si no existe e instala las vistas del core.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/observability/logger"
	store "github.com/dropDatabas3/identityd/internal/store"
)

// Config configuración del Bootstrapper.
type Config struct {
	// Conn conexión al document store.
	Conn store.AdapterConnection

	// Policy breaker compartido del document store. Cada paso pasa por él:
	// con el breaker abierto el arranque falla sin intentar la llamada.
	Policy store.Executor

	// Design design document a instalar (default: store.IdentityDesignDocument()).
	Design *store.DesignDocument

	// Seed carga los identity resources estándar si no hay ninguno.
	Seed bool

	Logger *zap.Logger
}

// Bootstrapper ejecuta Start → EnsureDatabaseExists → InstallIndexes → Ready
// una sola vez por proceso. Cualquier falla es fatal para el arranque.
type Bootstrapper struct {
	cfg   Config
	log   *zap.Logger
	once  sync.Once
	err   error
	ready atomic.Bool
}

// New crea un Bootstrapper.
func New(cfg Config) *Bootstrapper {
	if cfg.Design == nil {
		d := store.IdentityDesignDocument()
		cfg.Design = &d
	}
	log := cfg.Logger
	if log == nil {
		log = logger.L()
	}
	return &Bootstrapper{
		cfg: cfg,
		log: log.With(logger.Layer("bootstrap"), logger.Component("store")),
	}
}

// Run ejecuta el bootstrap. Llamadas posteriores retornan el resultado de la
// primera sin volver a ejecutar.
func (b *Bootstrapper) Run(ctx context.Context) error {
	b.once.Do(func() {
		start := time.Now()
		b.err = b.run(ctx)
		if b.err != nil {
			b.log.Error("store bootstrap failed", logger.Err(b.err))
			return
		}
		b.ready.Store(true)
		b.log.Info("store ready", logger.Duration(time.Since(start)))
	})
	return b.err
}

// Ready indica si el bootstrap terminó con éxito.
func (b *Bootstrapper) Ready() bool { return b.ready.Load() }

func (b *Bootstrapper) run(ctx context.Context) error {
	if b.cfg.Conn == nil {
		return fmt.Errorf("bootstrap: no store connection")
	}
	if err := b.ensureDatabase(ctx); err != nil {
		return fmt.Errorf("bootstrap: ensure database: %w", err)
	}
	if err := b.installIndexes(ctx); err != nil {
		return fmt.Errorf("bootstrap: install indexes: %w", err)
	}
	if b.cfg.Seed {
		if err := b.seed(ctx); err != nil {
			return fmt.Errorf("bootstrap: seed: %w", err)
		}
	}
	return nil
}

func (b *Bootstrapper) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.cfg.Policy == nil {
		return fn(ctx)
	}
	return b.cfg.Policy.Execute(ctx, fn)
}

func (b *Bootstrapper) ensureDatabase(ctx context.Context) error {
	var exists bool
	err := b.execute(ctx, func(ctx context.Context) error {
		var err error
		exists, err = b.cfg.Conn.DatabaseExists(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if exists {
		b.log.Debug("database exists, skipping creation")
		return nil
	}
	if err := b.execute(ctx, b.cfg.Conn.CreateDatabase); err != nil {
		return err
	}
	b.log.Info("database created")
	return nil
}

func (b *Bootstrapper) installIndexes(ctx context.Context) error {
	var changed bool
	err := b.execute(ctx, func(ctx context.Context) error {
		var err error
		changed, err = b.cfg.Conn.PutDesign(ctx, *b.cfg.Design)
		return err
	})
	if err != nil {
		return err
	}
	b.log.Info("indexes installed",
		logger.String("design", b.cfg.Design.Name),
		logger.Count(len(b.cfg.Design.Views)),
		logger.Bool("changed", changed),
	)
	return nil
}
