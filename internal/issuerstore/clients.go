// Package issuerstore expone al token issuer externo los contratos que
// consume: clients, grants persistidos, resources por scope y claims de
// perfil. Cada store es un pass-through fino sobre los repositorios del
// document store; las mutaciones emiten eventos de auditoría.
package issuerstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/audit"
	"github.com/dropDatabas3/identityd/internal/cache"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
	"github.com/dropDatabas3/identityd/internal/validation"
)

// Deps dependencias comunes de los stores.
type Deps struct {
	Audit  audit.Sink
	Clock  clock.Clock
	Logger *zap.Logger
}

func (d Deps) withDefaults(component string) Deps {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	if d.Logger == nil {
		d.Logger = logger.L()
	}
	d.Logger = d.Logger.With(logger.Layer("issuerstore"), logger.Component(component))
	return d
}

// ClientFinder es el contrato "find client by id".
type ClientFinder interface {
	FindClientByID(ctx context.Context, clientID string) (*repository.Client, bool, error)
}

// ─── ClientStore ───

// ClientStore lee y administra clients registrados.
type ClientStore struct {
	repo repository.ClientRepository
	deps Deps
}

func NewClientStore(repo repository.ClientRepository, deps Deps) *ClientStore {
	return &ClientStore{repo: repo, deps: deps.withDefaults("clients")}
}

func (s *ClientStore) FindClientByID(ctx context.Context, clientID string) (*repository.Client, bool, error) {
	if clientID == "" {
		return nil, false, repository.ArgumentNull("clientId")
	}
	return s.repo.Get(ctx, clientID)
}

// FindEnabledClientByID es FindClientByID ignorando clients deshabilitados.
func FindEnabledClientByID(ctx context.Context, f ClientFinder, clientID string) (*repository.Client, bool, error) {
	c, ok, err := f.FindClientByID(ctx, clientID)
	if err != nil || !ok || !c.Enabled {
		return nil, false, err
	}
	return c, true, nil
}

func (s *ClientStore) List(ctx context.Context) ([]repository.Client, error) {
	return s.repo.List(ctx)
}

func (s *ClientStore) Add(ctx context.Context, c *repository.Client) error {
	if err := validation.Client(c); err != nil {
		return err
	}
	now := s.deps.Clock.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.repo.Add(ctx, c); err != nil {
		return err
	}
	s.emit(ctx, audit.EntityCreated, c.ClientID)
	return nil
}

func (s *ClientStore) Update(ctx context.Context, c *repository.Client) error {
	if err := validation.Client(c); err != nil {
		return err
	}
	c.UpdatedAt = s.deps.Clock.Now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	s.emit(ctx, audit.EntityUpdated, c.ClientID)
	return nil
}

func (s *ClientStore) Delete(ctx context.Context, clientID string) error {
	if err := s.repo.Delete(ctx, clientID); err != nil {
		return err
	}
	s.emit(ctx, audit.EntityDeleted, clientID)
	return nil
}

func (s *ClientStore) emit(ctx context.Context, t audit.EventType, clientID string) {
	s.deps.Audit.Emit(ctx, audit.Event{Type: t, Entity: "client", EntityID: clientID, ClientID: clientID})
}

// ─── CachedClientStore ───

// CachedClientStore cachea FindClientByID. Las mutaciones pasan al store
// interno e invalidan la entrada. Los clients inexistentes no se cachean.
type CachedClientStore struct {
	*ClientStore
	cache cache.Client
	ttl   time.Duration
	log   *zap.Logger
}

// NewCachedClientStore decora inner con c. ttl 0 = 5 minutos.
func NewCachedClientStore(inner *ClientStore, c cache.Client, ttl time.Duration) *CachedClientStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedClientStore{ClientStore: inner, cache: c, ttl: ttl, log: inner.deps.Logger}
}

func clientCacheKey(id string) string { return "client:" + id }

func (s *CachedClientStore) FindClientByID(ctx context.Context, clientID string) (*repository.Client, bool, error) {
	if raw, err := s.cache.Get(ctx, clientCacheKey(clientID)); err == nil {
		var c repository.Client
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			return &c, true, nil
		}
	} else if !cache.IsNotFound(err) {
		s.log.Warn("client cache read failed", logger.ClientID(clientID), logger.Err(err))
	}

	c, ok, err := s.ClientStore.FindClientByID(ctx, clientID)
	if err != nil || !ok {
		return c, ok, err
	}
	if b, err := json.Marshal(c); err == nil {
		if err := s.cache.Set(ctx, clientCacheKey(clientID), string(b), s.ttl); err != nil {
			s.log.Warn("client cache write failed", logger.ClientID(clientID), logger.Err(err))
		}
	}
	return c, true, nil
}

func (s *CachedClientStore) Update(ctx context.Context, c *repository.Client) error {
	err := s.ClientStore.Update(ctx, c)
	if c != nil {
		s.invalidate(ctx, c.ClientID)
	}
	return err
}

func (s *CachedClientStore) Delete(ctx context.Context, clientID string) error {
	err := s.ClientStore.Delete(ctx, clientID)
	s.invalidate(ctx, clientID)
	return err
}

func (s *CachedClientStore) invalidate(ctx context.Context, clientID string) {
	if err := s.cache.Delete(ctx, clientCacheKey(clientID)); err != nil {
		s.log.Warn("client cache invalidation failed", logger.ClientID(clientID), logger.Err(err))
	}
}
