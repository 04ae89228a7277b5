package directory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeProvider struct {
	name    string
	results []Principal
	delay   time.Duration
	panics  bool
	calls   int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FindBySubjectID(_ context.Context, subjectID string) *Principal {
	atomic.AddInt32(&f.calls, 1)
	if f.panics {
		panic("directory down")
	}
	for i := range f.results {
		if f.results[i].SubjectID == subjectID {
			p := f.results[i]
			return &p
		}
	}
	return nil
}

func (f *fakeProvider) SearchPrincipals(_ context.Context, _ string, filter TypeFilter, _ MatchMode) []Principal {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("directory down")
	}
	var out []Principal
	for _, p := range f.results {
		if filter.Includes(p.Type) {
			out = append(out, p)
		}
	}
	return out
}

func user(provider, id string) Principal {
	return Principal{SubjectID: id, ProviderName: provider, Type: PrincipalUser}
}

func group(provider, id string) Principal {
	return Principal{SubjectID: id, ProviderName: provider, Type: PrincipalGroup}
}

func TestSearchConcatenatesInRegistrationOrder(t *testing.T) {
	// el primero tarda más: el orden no depende de quién termina antes
	slow := &fakeProvider{name: "ldap", delay: 20 * time.Millisecond, results: []Principal{user("ldap", `CORP\alice`)}}
	fast := &fakeProvider{name: "graph", results: []Principal{user("graph", "oid-1"), group("graph", "grp-1")}}
	agg := NewAggregator(NewRegistry(slow, fast), zap.NewNop())

	got := agg.SearchPrincipals(context.Background(), Query{Text: "a", Filter: FilterAll})
	if len(got) != 3 {
		t.Fatalf("expected 3 principals, got %d", len(got))
	}
	if got[0].SubjectID != `CORP\alice` || got[1].SubjectID != "oid-1" || got[2].SubjectID != "grp-1" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestSearchIsolatesFailingProvider(t *testing.T) {
	broken := &fakeProvider{name: "ldap", panics: true}
	ok := &fakeProvider{name: "local", results: []Principal{user("local", "bob")}}
	agg := NewAggregator(NewRegistry(broken, ok), zap.NewNop())

	got := agg.SearchPrincipals(context.Background(), Query{Text: "b"})
	if len(got) != 1 || got[0].SubjectID != "bob" {
		t.Fatalf("expected only the healthy provider's result, got %+v", got)
	}
}

func TestSearchProviderFilter(t *testing.T) {
	a := &fakeProvider{name: "ldap", results: []Principal{user("ldap", "a")}}
	b := &fakeProvider{name: "graph", results: []Principal{user("graph", "b")}}
	agg := NewAggregator(NewRegistry(a, b), zap.NewNop())

	got := agg.SearchPrincipals(context.Background(), Query{Providers: []string{"GRAPH"}})
	if len(got) != 1 || got[0].ProviderName != "graph" {
		t.Fatalf("filter not applied: %+v", got)
	}
	if atomic.LoadInt32(&a.calls) != 0 {
		t.Fatal("filtered-out provider must not be called")
	}

	if got := agg.SearchPrincipals(context.Background(), Query{Providers: []string{"none"}}); got != nil {
		t.Fatalf("expected nil for unknown provider, got %+v", got)
	}
}

func TestSearchTypeFilter(t *testing.T) {
	p := &fakeProvider{name: "graph", results: []Principal{user("graph", "u"), group("graph", "g")}}
	agg := NewAggregator(NewRegistry(p), zap.NewNop())

	got := agg.SearchPrincipals(context.Background(), Query{Filter: FilterGroups})
	if len(got) != 1 || got[0].Type != PrincipalGroup {
		t.Fatalf("expected only groups, got %+v", got)
	}
}

func TestFindBySubjectIDShortCircuits(t *testing.T) {
	first := &fakeProvider{name: "ldap"}
	second := &fakeProvider{name: "graph", results: []Principal{user("graph", "oid-7")}}
	third := &fakeProvider{name: "local", results: []Principal{user("local", "oid-7")}}
	agg := NewAggregator(NewRegistry(first, second, third), zap.NewNop())

	got := agg.FindBySubjectID(context.Background(), "oid-7")
	if got == nil || got.ProviderName != "graph" {
		t.Fatalf("expected graph principal, got %+v", got)
	}
	if atomic.LoadInt32(&first.calls) != 1 {
		t.Fatal("first provider should be consulted")
	}
	if atomic.LoadInt32(&third.calls) != 0 {
		t.Fatal("providers after the first hit must not be consulted")
	}
}

func TestFindBySubjectIDSurvivesPanic(t *testing.T) {
	broken := &fakeProvider{name: "ldap", panics: true}
	ok := &fakeProvider{name: "local", results: []Principal{user("local", "bob")}}
	agg := NewAggregator(NewRegistry(broken, ok), zap.NewNop())

	if got := agg.FindBySubjectID(context.Background(), "bob"); got == nil || got.ProviderName != "local" {
		t.Fatalf("got %+v", got)
	}
	if got := agg.FindBySubjectID(context.Background(), "nobody"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(&fakeProvider{name: "ldap"})
	if err := r.Register(&fakeProvider{name: "LDAP"}); err == nil {
		t.Fatal("expected duplicate provider error")
	}
	if err := r.Register(nil); err == nil {
		t.Fatal("expected nil provider error")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "ldap" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestParseTypeFilter(t *testing.T) {
	cases := map[string]TypeFilter{
		"":        FilterAll,
		"all":     FilterAll,
		"Users":   FilterUsers,
		" group ": FilterGroups,
	}
	for in, want := range cases {
		if got := ParseTypeFilter(in); got != want {
			t.Errorf("ParseTypeFilter(%q) = %v, want %v", in, got, want)
		}
	}
	if FilterAll.Includes(PrincipalType("Device")) {
		t.Error("unknown types are never included")
	}
}
