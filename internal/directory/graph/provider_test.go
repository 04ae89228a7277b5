package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/microsoft/kiota-abstractions-go/store"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/resilience"
)

const aliceID = "8d7e3c1a-2b4f-4e5a-9c6d-1f2e3a4b5c6d"

type fakeClient struct {
	users   []models.DirectoryObjectable
	groups  []models.DirectoryObjectable
	objects map[string]models.DirectoryObjectable
	err     error
	filters []string
	calls   int
}

func (f *fakeClient) ListUsers(_ context.Context, filter string, _ int32) ([]models.DirectoryObjectable, error) {
	f.calls++
	f.filters = append(f.filters, filter)
	return f.users, f.err
}

func (f *fakeClient) ListGroups(_ context.Context, filter string, _ int32) ([]models.DirectoryObjectable, error) {
	f.calls++
	f.filters = append(f.filters, filter)
	return f.groups, f.err
}

func (f *fakeClient) GetDirectoryObject(_ context.Context, id string) (models.DirectoryObjectable, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.objects[id], nil
}

func str(s string) *string { return &s }

func newUser(id, given, surname, mail string) models.Userable {
	u := models.NewUser()
	u.SetId(str(id))
	u.SetGivenName(str(given))
	u.SetSurname(str(surname))
	u.SetDisplayName(str(given + " " + surname))
	u.SetMail(str(mail))
	return u
}

func newGroup(id, name string) models.Groupable {
	g := models.NewGroup()
	g.SetId(str(id))
	g.SetDisplayName(str(name))
	return g
}

func newProvider(c Client) *Provider {
	policy := resilience.NewPolicy(resilience.DependencyGraph, resilience.Settings{
		FailureThreshold:     2,
		OpenTimeout:          time.Hour,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	}, zap.NewNop())
	return New(Config{}, c, policy, zap.NewNop())
}

func TestSearchClassifiesByODataType(t *testing.T) {
	c := &fakeClient{
		// un grupo colado en la respuesta de usuarios se clasifica igual
		users:  []models.DirectoryObjectable{newUser(aliceID, "Alice", "Smith", "alice@contoso.com"), newGroup("g-2", "Stray")},
		groups: []models.DirectoryObjectable{newGroup("g-1", "Admins")},
	}
	p := newProvider(c)

	got := p.SearchPrincipals(context.Background(), "a", directory.FilterUsers, directory.MatchWildcardPrefix)
	if len(got) != 1 || got[0].SubjectID != aliceID || got[0].Type != directory.PrincipalUser {
		t.Fatalf("expected only alice, got %+v", got)
	}
	if got[0].FirstName != "Alice" || got[0].LastName != "Smith" || got[0].Email != "alice@contoso.com" {
		t.Fatalf("fields not mapped: %+v", got[0])
	}
	if c.calls != 1 {
		t.Fatalf("users-only search must not query groups, calls=%d", c.calls)
	}

	all := p.SearchPrincipals(context.Background(), "a", directory.FilterAll, directory.MatchExact)
	if len(all) != 3 {
		t.Fatalf("expected 3 principals, got %+v", all)
	}
	if all[2].Type != directory.PrincipalGroup || all[2].ProviderName != "graph" {
		t.Fatalf("unexpected group: %+v", all[2])
	}
}

func TestSearchFailureDegradesToEmpty(t *testing.T) {
	c := &fakeClient{err: errors.New("dial tcp: i/o timeout")}
	p := newProvider(c)
	if got := p.SearchPrincipals(context.Background(), "a", directory.FilterAll, directory.MatchExact); len(got) != 0 {
		t.Fatalf("expected empty, got %+v", got)
	}
	if p.policy.State() != resilience.StateOpen {
		t.Fatalf("two failures should open the breaker, got %s", p.policy.State())
	}
	calls := c.calls
	_ = p.SearchPrincipals(context.Background(), "a", directory.FilterAll, directory.MatchExact)
	if c.calls != calls {
		t.Fatal("open breaker must not reach Graph")
	}
}

func TestFindBySubjectID(t *testing.T) {
	c := &fakeClient{objects: map[string]models.DirectoryObjectable{
		aliceID: newUser(aliceID, "Alice", "Smith", ""),
	}}
	p := newProvider(c)

	got := p.FindBySubjectID(context.Background(), aliceID)
	if got == nil || got.FirstName != "Alice" {
		t.Fatalf("got %+v", got)
	}
	if got := p.FindBySubjectID(context.Background(), "00000000-0000-0000-0000-000000000001"); got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}

	calls := c.calls
	if got := p.FindBySubjectID(context.Background(), `CORP\alice`); got != nil {
		t.Fatalf("non-GUID subject must not resolve, got %+v", got)
	}
	if c.calls != calls {
		t.Fatal("non-GUID subject must not reach Graph")
	}
}

func TestODataFilters(t *testing.T) {
	f := UserFilter("o'brien", directory.MatchWildcardPrefix)
	if !strings.HasPrefix(f, "startswith(displayName,'o''brien') or ") {
		t.Fatalf("unexpected filter %s", f)
	}
	if f := GroupFilter("Admins", directory.MatchExact); f != "displayName eq 'Admins' or mail eq 'Admins'" {
		t.Fatalf("unexpected filter %s", f)
	}
}

func TestIsNotFound(t *testing.T) {
	odataErr := odataerrors.NewODataError()
	mainErr := odataerrors.NewMainError()
	mainErr.SetCode(str("Request_ResourceNotFound"))
	odataErr.SetBackingStore(store.NewInMemoryBackingStore())
	odataErr.SetErrorEscaped(mainErr)
	if !isNotFound(odataErr) {
		t.Fatal("expected Request_ResourceNotFound to be not found")
	}

	status := odataerrors.NewODataError()
	status.ResponseStatusCode = 404
	if !isNotFound(status) {
		t.Fatal("expected 404 to be not found")
	}

	if isNotFound(errors.New("boom")) || isNotFound(nil) {
		t.Fatal("plain errors are not not-found")
	}
}
