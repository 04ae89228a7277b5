package issuerstore

import (
	"context"

	"github.com/dropDatabas3/identityd/internal/audit"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/validation"
)

// Resources es el conjunto completo de resources registrados.
type Resources struct {
	Identity []repository.IdentityResource `json:"identity_resources"`
	API      []repository.APIResource      `json:"api_resources"`
}

// ResourceStore resuelve identity y API resources por scope.
type ResourceStore struct {
	repo repository.ResourceRepository
	deps Deps
}

func NewResourceStore(repo repository.ResourceRepository, deps Deps) *ResourceStore {
	return &ResourceStore{repo: repo, deps: deps.withDefaults("resources")}
}

func (s *ResourceStore) FindIdentityResourcesByScope(ctx context.Context, scopes []string) ([]repository.IdentityResource, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	return s.repo.FindIdentityByScopes(ctx, scopes)
}

func (s *ResourceStore) FindAPIResourcesByScope(ctx context.Context, scopes []string) ([]repository.APIResource, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	return s.repo.FindAPIByScopes(ctx, scopes)
}

func (s *ResourceStore) FindAPIResourceByName(ctx context.Context, name string) (*repository.APIResource, bool, error) {
	if name == "" {
		return nil, false, repository.ArgumentNull("name")
	}
	return s.repo.GetAPI(ctx, name)
}

func (s *ResourceStore) GetAll(ctx context.Context) (Resources, error) {
	ids, err := s.repo.ListIdentity(ctx)
	if err != nil {
		return Resources{}, err
	}
	apis, err := s.repo.ListAPI(ctx)
	if err != nil {
		return Resources{}, err
	}
	return Resources{Identity: ids, API: apis}, nil
}

func (s *ResourceStore) AddIdentityResource(ctx context.Context, r *repository.IdentityResource) error {
	if err := validation.IdentityResource(r); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.deps.Clock.Now().UTC()
	}
	if err := s.repo.AddIdentity(ctx, r); err != nil {
		return err
	}
	s.deps.Audit.Emit(ctx, audit.Event{Type: audit.EntityCreated, Entity: "identity_resource", EntityID: r.Name})
	return nil
}

func (s *ResourceStore) AddAPIResource(ctx context.Context, r *repository.APIResource) error {
	if err := validation.APIResource(r); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.deps.Clock.Now().UTC()
	}
	if err := s.repo.AddAPI(ctx, r); err != nil {
		return err
	}
	s.deps.Audit.Emit(ctx, audit.Event{Type: audit.EntityCreated, Entity: "api_resource", EntityID: r.Name})
	return nil
}
