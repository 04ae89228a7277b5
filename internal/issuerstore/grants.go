package issuerstore

import (
	"context"

	"github.com/dropDatabas3/identityd/internal/audit"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// GrantStore guarda grants persistidos (codes, refresh tokens, consents).
// Los grants vencidos nunca se devuelven.
type GrantStore struct {
	repo repository.GrantRepository
	deps Deps
}

func NewGrantStore(repo repository.GrantRepository, deps Deps) *GrantStore {
	return &GrantStore{repo: repo, deps: deps.withDefaults("grants")}
}

// Store crea o reemplaza el grant con esa key.
func (s *GrantStore) Store(ctx context.Context, g *repository.PersistedGrant) error {
	if g == nil {
		return repository.ArgumentNull("grant")
	}
	if g.Key == "" {
		return repository.ArgumentNull("key")
	}
	if g.CreationTime.IsZero() {
		g.CreationTime = s.deps.Clock.Now().UTC()
	}
	if err := s.repo.Put(ctx, g); err != nil {
		return err
	}
	s.emit(ctx, audit.EntityCreated, g)
	return nil
}

func (s *GrantStore) Get(ctx context.Context, key string) (*repository.PersistedGrant, bool, error) {
	g, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if g.Expired(s.deps.Clock.Now()) {
		return nil, false, nil
	}
	return g, true, nil
}

func (s *GrantStore) GetAll(ctx context.Context, subjectID string) ([]repository.PersistedGrant, error) {
	gs, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return s.live(gs), nil
}

// Remove elimina el grant. Un grant inexistente no es error.
func (s *GrantStore) Remove(ctx context.Context, key string) error {
	g, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	return s.remove(ctx, g)
}

// RemoveAll elimina los grants de subject para client; grantType vacío =
// todos los tipos.
func (s *GrantStore) RemoveAll(ctx context.Context, subjectID, clientID, grantType string) error {
	gs, err := s.repo.ListBySubjectClient(ctx, subjectID, clientID)
	if err != nil {
		return err
	}
	for i := range gs {
		if grantType != "" && gs[i].Type != grantType {
			continue
		}
		if err := s.remove(ctx, &gs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *GrantStore) remove(ctx context.Context, g *repository.PersistedGrant) error {
	if err := s.repo.Delete(ctx, g.Key); err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	s.emit(ctx, audit.EntityDeleted, g)
	return nil
}

func (s *GrantStore) live(gs []repository.PersistedGrant) []repository.PersistedGrant {
	now := s.deps.Clock.Now()
	out := gs[:0]
	for _, g := range gs {
		if !g.Expired(now) {
			out = append(out, g)
		}
	}
	if len(out) < len(gs) {
		s.deps.Logger.Debug("expired grants skipped", logger.Count(len(gs)-len(out)))
	}
	return out
}

func (s *GrantStore) emit(ctx context.Context, t audit.EventType, g *repository.PersistedGrant) {
	s.deps.Audit.Emit(ctx, audit.Event{
		Type:      t,
		Entity:    "persisted_grant",
		EntityID:  g.Key,
		SubjectID: g.SubjectID,
		ClientID:  g.ClientID,
		Fields:    map[string]any{"grant_type": g.Type},
	})
}
