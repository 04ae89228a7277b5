package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/store"
	"github.com/dropDatabas3/identityd/internal/store/adapters/memory"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newStore(t *testing.T) (*store.DocumentStore, *memory.Connection) {
	t.Helper()
	conn := memory.New()
	_, err := conn.PutDesign(context.Background(), store.IdentityDesignDocument())
	require.NoError(t, err)
	return store.NewDocumentStore(conn), conn
}

func TestKeyEscapesPathSeparators(t *testing.T) {
	require.Equal(t, "user:DOMAIN%5Calice", store.Key("User", `DOMAIN\alice`))
	require.Equal(t, "user:a%2Fb", store.Key("USER", "a/b"))
	require.Equal(t, store.Key("user", "a/b"), store.Key("user", "a/b"))
	require.Equal(t, "a/b", store.IDOfKey(store.Key("user", "a/b")))
	require.Equal(t, "user", store.TypeOfKey("user:x"))
}

func TestTypeNames(t *testing.T) {
	require.Equal(t, store.TypeUser, store.TypeName[repository.User]())
	require.Equal(t, store.TypeClient, store.TypeName[repository.Client]())
	require.Equal(t, store.TypeGrant, store.TypeName[repository.PersistedGrant]())
	require.Equal(t, store.TypeIdentityResource, store.TypeName[repository.IdentityResource]())
	require.Equal(t, store.TypeAPIResource, store.TypeName[repository.APIResource]())
	require.Equal(t, "widget", store.TypeName[*widget]())
}

func TestCollectionSameLogicalIDResolvesToSameDocument(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	c := store.NewCollection[widget](s)
	id := `tenant/DOMAIN\bob`

	_, err := c.Add(ctx, id, widget{Name: "w", Count: 1})
	require.NoError(t, err)

	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, got.Count)

	_, err = c.Update(ctx, id, widget{Name: "w", Count: 2})
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, id))
	_, ok, err = c.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCollectionGetAbsentIsNotAnError(t *testing.T) {
	s, _ := newStore(t)
	c := store.NewCollection[widget](s)
	v, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, widget{}, v)
}

func TestCollectionAddCollision(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	c := store.NewCollection[widget](s)
	_, err := c.Add(ctx, "a", widget{Name: "first"})
	require.NoError(t, err)
	_, err = c.Add(ctx, "a", widget{Name: "second"})
	require.True(t, repository.IsAlreadyExists(err), "got %v", err)
}

func TestCollectionUpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	c := store.NewCollection[widget](s)

	_, err := c.Update(ctx, "missing", widget{})
	require.True(t, repository.IsNotFound(err), "update: %v", err)

	err = c.Delete(ctx, "missing")
	require.True(t, repository.IsNotFound(err), "delete: %v", err)

	_, err = c.Replace(ctx, "missing", "1-abc", widget{})
	require.True(t, repository.IsNotFound(err), "replace: %v", err)
}

func TestCollectionOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	c := store.NewCollection[widget](s)
	_, err := c.Add(ctx, "w", widget{Count: 1})
	require.NoError(t, err)

	first, _, err := c.GetDocument(ctx, "w")
	require.NoError(t, err)
	second, _, err := c.GetDocument(ctx, "w")
	require.NoError(t, err)

	_, err = c.Replace(ctx, "w", first.Rev, widget{Count: 2})
	require.NoError(t, err)

	_, err = c.Replace(ctx, "w", second.Rev, widget{Count: 3})
	require.True(t, repository.IsConflict(err), "stale rev: %v", err)

	latest, _, err := c.GetDocument(ctx, "w")
	require.NoError(t, err)
	_, err = c.Replace(ctx, "w", latest.Rev, widget{Count: 3})
	require.NoError(t, err)

	_, err = c.Replace(ctx, "w", "", widget{})
	require.True(t, errors.Is(err, repository.ErrArgumentNull))
}

func TestCollectionQueryRangeCompleteness(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)
	users := store.NewCollection[widget](s)

	for _, id := range []string{"app", "apple", "apricot", "banana"} {
		_, err := users.Add(ctx, id, widget{Name: id})
		require.NoError(t, err)
	}
	// documento de otro tipo con prefijo léxicamente adyacente
	_, err := conn.Put(ctx, "widgets:app", []byte(`{"name":"intruder"}`), "")
	require.NoError(t, err)

	got, err := users.Query(ctx, "ap")
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, w := range got {
		names = append(names, w.Name)
	}
	require.Equal(t, []string{"app", "apple", "apricot"}, names)

	all, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	c := store.NewCollection[widget](s)
	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Add(ctx, id, widget{Name: id})
		require.NoError(t, err)
	}
	n, err := s.Count(ctx, "Widget")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = s.Count(ctx, "user")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

type countingExecutor struct{ calls int }

func (e *countingExecutor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	e.calls++
	return fn(ctx)
}

func TestOperationsGoThroughExecutor(t *testing.T) {
	exec := &countingExecutor{}
	s := store.NewDocumentStore(memory.New(), store.WithExecutor(exec))
	c := store.NewCollection[widget](s)
	ctx := context.Background()

	_, err := c.Add(ctx, "a", widget{})
	require.NoError(t, err)
	_, err = c.Update(ctx, "a", widget{Count: 1}) // get + put
	require.NoError(t, err)
	require.Equal(t, 3, exec.calls)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	repo := s.Users()

	u := &repository.User{
		SubjectID:    `DOMAIN\alice`,
		ProviderName: "ldap",
		Claims:       []repository.Claim{repository.NewClaim("role", "viewer")},
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Add(ctx, u))
	require.NotEmpty(t, u.Revision)
	require.True(t, repository.IsAlreadyExists(repo.Add(ctx, &repository.User{SubjectID: `DOMAIN\alice`, ProviderName: "ldap"})))

	found, ok, err := repo.FindByExternalID(ctx, "ldap", `DOMAIN\alice`)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u.Revision, found.Revision)

	// un segundo lector con la misma revisión pierde la carrera
	stale := *found
	found.Username = "alice"
	require.NoError(t, repo.Update(ctx, found))
	stale.Username = "other"
	require.True(t, repository.IsConflict(repo.Update(ctx, &stale)))

	bySubject, err := repo.FindBySubjectID(ctx, `DOMAIN\alice`)
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
	require.Equal(t, "alice", bySubject[0].Username)

	_, ok, err = repo.FindByExternalID(ctx, "graph", `DOMAIN\alice`)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantRepository(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	repo := s.Grants()

	g := &repository.PersistedGrant{Key: "k1", Type: "refresh_token", SubjectID: "alice", ClientID: "app1", Data: "v1"}
	require.NoError(t, repo.Put(ctx, g))
	g.Data = "v2"
	require.NoError(t, repo.Put(ctx, g))
	require.NoError(t, repo.Put(ctx, &repository.PersistedGrant{Key: "k2", SubjectID: "alice", ClientID: "app2"}))
	require.NoError(t, repo.Put(ctx, &repository.PersistedGrant{Key: "k3", SubjectID: "bob", ClientID: "app1"}))

	got, ok, err := repo.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", got.Data)

	all, err := repo.ListBySubject(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 2)

	forClient, err := repo.ListBySubjectClient(ctx, "alice", "app2")
	require.NoError(t, err)
	require.Len(t, forClient, 1)
	require.Equal(t, "k2", forClient[0].Key)

	require.NoError(t, repo.Delete(ctx, "k2"))
	require.True(t, repository.IsNotFound(repo.Delete(ctx, "k2")))
}

func TestResourceRepository(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	repo := s.Resources()

	require.NoError(t, repo.AddIdentity(ctx, &repository.IdentityResource{Name: "openid", Enabled: true}))
	require.NoError(t, repo.AddIdentity(ctx, &repository.IdentityResource{Name: "profile", Enabled: true}))
	require.NoError(t, repo.AddAPI(ctx, &repository.APIResource{
		Name:   "orders",
		Scopes: []repository.APIScope{{Name: "orders.read"}, {Name: "orders.write"}},
	}))
	require.True(t, repository.IsAlreadyExists(repo.AddAPI(ctx, &repository.APIResource{Name: "orders"})))

	ids, err := repo.FindIdentityByScopes(ctx, []string{"openid", "orders.read"})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, "openid", ids[0].Name)

	apis, err := repo.FindAPIByScopes(ctx, []string{"orders.read", "orders.write"})
	require.NoError(t, err)
	require.Len(t, apis, 1, "an API matched by two scopes is returned once")

	api, ok, err := repo.GetAPI(ctx, "orders")
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"orders.read", "orders.write"}, api.ScopeNames())

	none, err := repo.FindAPIByScopes(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestClientRepository(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	repo := s.Clients()

	require.True(t, errors.Is(repo.Add(ctx, &repository.Client{}), repository.ErrArgumentNull))
	require.NoError(t, repo.Add(ctx, &repository.Client{ClientID: "app1", ClientName: "App"}))

	c, ok, err := repo.Get(ctx, "app1")
	require.NoError(t, err)
	require.True(t, ok)
	c.ClientName = "App v2"
	require.NoError(t, repo.Update(ctx, c))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "App v2", list[0].ClientName)

	require.NoError(t, repo.Delete(ctx, "app1"))
	_, ok, err = repo.Get(ctx, "app1")
	require.NoError(t, err)
	require.False(t, ok)
}
