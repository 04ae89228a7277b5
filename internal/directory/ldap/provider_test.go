package ldap

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/resilience"
)

type fakeSession struct {
	entries []*goldap.Entry
	err     error
	filters []string
}

func (s *fakeSession) Search(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
	s.filters = append(s.filters, req.Filter)
	if s.err != nil {
		return &goldap.SearchResult{Entries: s.entries}, s.err
	}
	return &goldap.SearchResult{Entries: s.entries}, nil
}

func dialerFor(s *fakeSession, dials *int, dialErr error) Dialer {
	return func(context.Context, Config) (Session, func(), error) {
		*dials++
		if dialErr != nil {
			return nil, nil, dialErr
		}
		return s, func() {}, nil
	}
}

func fixtures() []*goldap.Entry {
	return []*goldap.Entry{
		goldap.NewEntry("CN=Alice Smith,OU=People,DC=corp,DC=local", map[string][]string{
			"objectClass":    {"top", "person", "organizationalPerson", "user"},
			"sAMAccountName": {"alice"},
			"displayName":    {"Alice Smith"},
			"givenName":      {"Alice"},
			"sn":             {"Smith"},
			"mail":           {"alice@corp.local"},
		}),
		goldap.NewEntry("CN=Admins,OU=Groups,DC=corp,DC=local", map[string][]string{
			"objectClass":    {"top", "group"},
			"sAMAccountName": {"admins"},
			"cn":             {"Admins"},
		}),
		goldap.NewEntry("CN=WS01,OU=Computers,DC=corp,DC=local", map[string][]string{
			"objectClass":    {"top", "person", "user", "computer"},
			"sAMAccountName": {"WS01$"},
		}),
	}
}

func testSettings() resilience.Settings {
	return resilience.Settings{
		FailureThreshold:     2,
		Window:               time.Minute,
		OpenTimeout:          time.Hour,
		HalfOpenRequests:     1,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	}
}

func newProvider(t *testing.T, s *fakeSession, dials *int, dialErr error) *Provider {
	t.Helper()
	policy := resilience.NewPolicy(resilience.DependencyLDAP, testSettings(), zap.NewNop())
	return New(Config{URL: "ldap://dc01", BaseDN: "DC=corp,DC=local", Domain: "CORP"}, policy,
		WithDialer(dialerFor(s, dials, dialErr)), WithLogger(zap.NewNop()))
}

func TestSearchClassifiesByObjectClass(t *testing.T) {
	var dials int
	s := &fakeSession{entries: fixtures()}
	p := newProvider(t, s, &dials, nil)

	got := p.SearchPrincipals(context.Background(), "a", directory.FilterAll, directory.MatchWildcardPrefix)
	if len(got) != 2 {
		t.Fatalf("expected user and group (computer dropped), got %+v", got)
	}
	if got[0].SubjectID != `CORP\alice` || got[0].Type != directory.PrincipalUser {
		t.Fatalf("unexpected user: %+v", got[0])
	}
	if got[0].FirstName != "Alice" || got[0].LastName != "Smith" || got[0].Email != "alice@corp.local" {
		t.Fatalf("attributes not mapped: %+v", got[0])
	}
	if got[1].Type != directory.PrincipalGroup || got[1].DisplayName != "Admins" {
		t.Fatalf("unexpected group: %+v", got[1])
	}
	if got[0].ProviderName != "ldap" {
		t.Fatalf("provider name = %q", got[0].ProviderName)
	}

	// aunque el directorio devuelva ambos tipos, el filtro decide por objectClass
	groups := p.SearchPrincipals(context.Background(), "a", directory.FilterGroups, directory.MatchExact)
	if len(groups) != 1 || groups[0].SubjectID != `CORP\admins` {
		t.Fatalf("expected only the group, got %+v", groups)
	}
}

func TestSearchTransportErrorDegradesToEmpty(t *testing.T) {
	var dials int
	p := newProvider(t, &fakeSession{}, &dials, errors.New("dial tcp: connection refused"))

	got := p.SearchPrincipals(context.Background(), "alice", directory.FilterAll, directory.MatchExact)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
	_ = p.SearchPrincipals(context.Background(), "alice", directory.FilterAll, directory.MatchExact)
	if dials != 2 {
		t.Fatalf("expected 2 dial attempts, got %d", dials)
	}

	// breaker abierto: no se intenta la conexión
	if got := p.FindBySubjectID(context.Background(), `CORP\alice`); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
	if dials != 2 {
		t.Fatalf("open breaker must short-circuit, dials=%d", dials)
	}
}

func TestSearchSizeLimitReturnsPartialResults(t *testing.T) {
	var dials int
	s := &fakeSession{
		entries: fixtures()[:1],
		err:     goldap.NewError(goldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded")),
	}
	p := newProvider(t, s, &dials, nil)
	if got := p.SearchPrincipals(context.Background(), "a", directory.FilterUsers, directory.MatchWildcardPrefix); len(got) != 1 {
		t.Fatalf("expected partial result, got %+v", got)
	}
}

func TestFindBySubjectID(t *testing.T) {
	var dials int
	s := &fakeSession{entries: fixtures()[:1]}
	p := newProvider(t, s, &dials, nil)

	got := p.FindBySubjectID(context.Background(), `corp\alice`)
	if got == nil || got.SubjectID != `CORP\alice` {
		t.Fatalf("got %+v", got)
	}
	if !strings.Contains(s.filters[0], "(sAMAccountName=alice)") {
		t.Fatalf("unexpected filter %q", s.filters[0])
	}

	if got := p.FindBySubjectID(context.Background(), `OTHER\alice`); got != nil {
		t.Fatalf("foreign domain must not resolve, got %+v", got)
	}
	if dials != 1 {
		t.Fatalf("foreign domain must not reach the directory, dials=%d", dials)
	}
}

func TestBuildFilterEscapesInput(t *testing.T) {
	f := BuildFilter("a*)(cn=x", directory.FilterGroups, directory.MatchExact)
	if strings.Contains(f, "a*)(cn=x") {
		t.Fatalf("filter not escaped: %s", f)
	}
	if !strings.HasPrefix(f, "(&(objectClass=group)") {
		t.Fatalf("unexpected groups filter: %s", f)
	}

	f = BuildFilter("ali", directory.FilterUsers, directory.MatchWildcardPrefix)
	if !strings.Contains(f, "(sAMAccountName=ali*)") || !strings.Contains(f, "(objectCategory=person)") {
		t.Fatalf("unexpected users filter: %s", f)
	}

	if f := BuildFilter("x", directory.FilterAll, directory.MatchExact); !strings.HasPrefix(f, "(|(&(objectClass=user)") {
		t.Fatalf("unexpected combined filter: %s", f)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatal("expected error for empty config")
	}
	if err := (Config{URL: "ldap://dc01", BaseDN: "DC=corp"}).Validate(); err != nil {
		t.Fatal(err)
	}
}

// localAccounts simula el directorio local: subject ids sin dominio.
type localAccounts struct{ ids []string }

func (l localAccounts) Name() string { return "local" }

func (l localAccounts) FindBySubjectID(_ context.Context, subjectID string) *directory.Principal {
	for _, id := range l.ids {
		if id == subjectID {
			return &directory.Principal{SubjectID: id, ProviderName: "local", Type: directory.PrincipalUser}
		}
	}
	return nil
}

func (l localAccounts) SearchPrincipals(context.Context, string, directory.TypeFilter, directory.MatchMode) []directory.Principal {
	return nil
}

func TestUnqualifiedSubjectResolvesInLocalDirectory(t *testing.T) {
	var dials int
	s := &fakeSession{entries: fixtures()[:1]}
	p := newProvider(t, s, &dials, nil)
	agg := directory.NewAggregator(directory.NewRegistry(p, localAccounts{ids: []string{"alice"}}), zap.NewNop())

	got := agg.FindBySubjectID(context.Background(), "alice")
	if got == nil || got.ProviderName != "local" || got.SubjectID != "alice" {
		t.Fatalf("got %+v", got)
	}
	if dials != 0 {
		t.Fatalf("unqualified id must not reach the domain directory, dials=%d", dials)
	}

	got = agg.FindBySubjectID(context.Background(), `CORP\alice`)
	if got == nil || got.ProviderName != "ldap" {
		t.Fatalf("got %+v", got)
	}
}

func TestUnqualifiedSubjectWithoutDomain(t *testing.T) {
	var dials int
	s := &fakeSession{entries: fixtures()[:1]}
	policy := resilience.NewPolicy(resilience.DependencyLDAP, testSettings(), zap.NewNop())
	p := New(Config{URL: "ldap://dc01", BaseDN: "DC=corp,DC=local"}, policy,
		WithDialer(dialerFor(s, &dials, nil)), WithLogger(zap.NewNop()))

	got := p.FindBySubjectID(context.Background(), "alice")
	if got == nil || got.SubjectID != "alice" {
		t.Fatalf("got %+v", got)
	}
}
