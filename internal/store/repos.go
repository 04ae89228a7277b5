package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
)

// Type tags de los documentos del core. Coinciden con TypeName[T]().
const (
	TypeUser             = "user"
	TypeClient           = "client"
	TypeGrant            = "persistedgrant"
	TypeIdentityResource = "identityresource"
	TypeAPIResource      = "apiresource"
)

// ─── Repositorios ───

func (s *DocumentStore) Users() repository.UserRepository {
	return &userRepo{coll: NewCollection[repository.User](s)}
}

func (s *DocumentStore) Clients() repository.ClientRepository {
	return &clientRepo{coll: NewCollection[repository.Client](s)}
}

func (s *DocumentStore) Grants() repository.GrantRepository {
	return &grantRepo{coll: NewCollection[repository.PersistedGrant](s)}
}

func (s *DocumentStore) Resources() repository.ResourceRepository {
	return &resourceRepo{
		identity: NewCollection[repository.IdentityResource](s),
		api:      NewCollection[repository.APIResource](s),
	}
}

// ─── UserRepository ───

type userRepo struct{ coll *Collection[repository.User] }

func (r *userRepo) FindByExternalID(ctx context.Context, provider, externalID string) (*repository.User, bool, error) {
	doc, ok, err := r.coll.GetDocument(ctx, repository.UserDocumentID(provider, externalID))
	if err != nil || !ok {
		return nil, false, err
	}
	u := doc.Value
	u.Revision = doc.Rev
	return &u, true, nil
}

func (r *userRepo) FindBySubjectID(ctx context.Context, subjectID string) ([]repository.User, error) {
	docs, err := r.coll.FindByView(ctx, ViewUsersBySubject, ViewQuery{Key: subjectID})
	if err != nil {
		return nil, err
	}
	out := make([]repository.User, 0, len(docs))
	for _, d := range docs {
		u := d.Value
		u.Revision = d.Rev
		out = append(out, u)
	}
	return out, nil
}

func (r *userRepo) Add(ctx context.Context, u *repository.User) error {
	if u == nil {
		return repository.ArgumentNull("user")
	}
	rev, err := r.coll.Add(ctx, u.DocumentID(), *u)
	if err != nil {
		return err
	}
	u.Revision = rev
	return nil
}

func (r *userRepo) Update(ctx context.Context, u *repository.User) error {
	if u == nil {
		return repository.ArgumentNull("user")
	}
	var (
		rev string
		err error
	)
	if u.Revision != "" {
		rev, err = r.coll.Replace(ctx, u.DocumentID(), u.Revision, *u)
	} else {
		rev, err = r.coll.Update(ctx, u.DocumentID(), *u)
	}
	if err != nil {
		return err
	}
	u.Revision = rev
	return nil
}

// ─── ClientRepository ───

type clientRepo struct{ coll *Collection[repository.Client] }

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, bool, error) {
	c, ok, err := r.coll.Get(ctx, clientID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &c, true, nil
}

func (r *clientRepo) List(ctx context.Context) ([]repository.Client, error) {
	return r.coll.List(ctx)
}

func (r *clientRepo) Add(ctx context.Context, c *repository.Client) error {
	if c == nil {
		return repository.ArgumentNull("client")
	}
	if c.ClientID == "" {
		return repository.ArgumentNull("client_id")
	}
	_, err := r.coll.Add(ctx, c.ClientID, *c)
	return err
}

func (r *clientRepo) Update(ctx context.Context, c *repository.Client) error {
	if c == nil {
		return repository.ArgumentNull("client")
	}
	_, err := r.coll.Update(ctx, c.ClientID, *c)
	return err
}

func (r *clientRepo) Delete(ctx context.Context, clientID string) error {
	return r.coll.Delete(ctx, clientID)
}

// ─── GrantRepository ───

type grantRepo struct{ coll *Collection[repository.PersistedGrant] }

func (r *grantRepo) Get(ctx context.Context, key string) (*repository.PersistedGrant, bool, error) {
	g, ok, err := r.coll.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &g, true, nil
}

// Put hace upsert: intenta crear y, si la key existe, reemplaza.
func (r *grantRepo) Put(ctx context.Context, g *repository.PersistedGrant) error {
	if g == nil {
		return repository.ArgumentNull("grant")
	}
	if g.Key == "" {
		return repository.ArgumentNull("key")
	}
	_, err := r.coll.Add(ctx, g.Key, *g)
	if !repository.IsAlreadyExists(err) {
		return err
	}
	_, err = r.coll.Update(ctx, g.Key, *g)
	if repository.IsNotFound(err) {
		// borrado entre el add y el update
		_, err = r.coll.Add(ctx, g.Key, *g)
	}
	return err
}

func (r *grantRepo) ListBySubject(ctx context.Context, subjectID string) ([]repository.PersistedGrant, error) {
	docs, err := r.coll.FindByView(ctx, ViewGrantsBySubject, ViewQuery{Key: subjectID})
	if err != nil {
		return nil, err
	}
	return values(docs), nil
}

func (r *grantRepo) ListBySubjectClient(ctx context.Context, subjectID, clientID string) ([]repository.PersistedGrant, error) {
	docs, err := r.coll.FindByView(ctx, ViewGrantsBySubjectClient, ViewQuery{Key: []any{subjectID, clientID}})
	if err != nil {
		return nil, err
	}
	return values(docs), nil
}

func (r *grantRepo) Delete(ctx context.Context, key string) error {
	return r.coll.Delete(ctx, key)
}

// ─── ResourceRepository ───

type resourceRepo struct {
	identity *Collection[repository.IdentityResource]
	api      *Collection[repository.APIResource]
}

func scopeKeys(scopes []string) []any {
	keys := make([]any, 0, len(scopes))
	for _, s := range scopes {
		keys = append(keys, s)
	}
	return keys
}

func (r *resourceRepo) FindIdentityByScopes(ctx context.Context, scopes []string) ([]repository.IdentityResource, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	docs, err := r.identity.FindByView(ctx, ViewResourcesByScope, ViewQuery{Keys: scopeKeys(scopes)})
	if err != nil {
		return nil, err
	}
	return values(docs), nil
}

func (r *resourceRepo) FindAPIByScopes(ctx context.Context, scopes []string) ([]repository.APIResource, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	docs, err := r.api.FindByView(ctx, ViewResourcesByScope, ViewQuery{Keys: scopeKeys(scopes)})
	if err != nil {
		return nil, err
	}
	return values(docs), nil
}

func (r *resourceRepo) GetAPI(ctx context.Context, name string) (*repository.APIResource, bool, error) {
	a, ok, err := r.api.Get(ctx, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &a, true, nil
}

func (r *resourceRepo) ListIdentity(ctx context.Context) ([]repository.IdentityResource, error) {
	return r.identity.List(ctx)
}

func (r *resourceRepo) ListAPI(ctx context.Context) ([]repository.APIResource, error) {
	return r.api.List(ctx)
}

func (r *resourceRepo) AddIdentity(ctx context.Context, res *repository.IdentityResource) error {
	if res == nil || res.Name == "" {
		return repository.ArgumentNull("name")
	}
	_, err := r.identity.Add(ctx, res.Name, *res)
	return err
}

func (r *resourceRepo) AddAPI(ctx context.Context, res *repository.APIResource) error {
	if res == nil || res.Name == "" {
		return repository.ArgumentNull("name")
	}
	if _, err := r.api.Add(ctx, res.Name, *res); err != nil {
		return fmt.Errorf("api resource %s: %w", res.Name, err)
	}
	return nil
}

func values[T any](docs []Document[T]) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Value)
	}
	return out
}
