package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/resilience"
)

type readyFlag bool

func (r readyFlag) Ready() bool { return bool(r) }

type breakerMap map[resilience.Dependency]resilience.State

func (b breakerMap) States() map[resilience.Dependency]resilience.State { return b }

type fakeSearch struct {
	last directory.Query
}

func (f *fakeSearch) SearchPrincipals(_ context.Context, q directory.Query) []directory.Principal {
	f.last = q
	if q.Text == "none" {
		return nil
	}
	return []directory.Principal{{SubjectID: `CORP\alice`, ProviderName: "ldap", Type: directory.PrincipalUser}}
}

func (f *fakeSearch) FindBySubjectID(_ context.Context, id string, _ ...string) *directory.Principal {
	if id != "alice" {
		return nil
	}
	return &directory.Principal{SubjectID: "alice", ProviderName: "local", Type: directory.PrincipalUser}
}

func newTestRouter(t *testing.T, d Deps) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	d.Registerer, d.Gatherer, d.Logger = reg, reg, zap.NewNop()
	h, err := NewRouter(d)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return h
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	rr := get(newTestRouter(t, Deps{}), "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}
}

func TestReadyz(t *testing.T) {
	cases := []struct {
		name     string
		ready    bool
		breakers breakerMap
		code     int
		status   string
	}{
		{"ready", true, breakerMap{resilience.DependencyLDAP: resilience.StateClosed}, http.StatusOK, "ready"},
		{"directory down", true, breakerMap{resilience.DependencyLDAP: resilience.StateOpen}, http.StatusOK, "degraded"},
		{"not bootstrapped", false, breakerMap{}, http.StatusServiceUnavailable, "unavailable"},
		{"store breaker open", true, breakerMap{resilience.DependencyDocumentStore: resilience.StateOpen}, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newTestRouter(t, Deps{Ready: readyFlag(c.ready), Breakers: c.breakers, Version: "1.2.3"})
			rr := get(h, "/readyz")
			if rr.Code != c.code {
				t.Fatalf("code = %d, want %d", rr.Code, c.code)
			}
			var body HealthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != c.status {
				t.Fatalf("status = %q, want %q", body.Status, c.status)
			}
			if rr.Header().Get("X-Service-Version") != "1.2.3" {
				t.Fatal("missing version header")
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, Deps{})
	get(h, "/healthz")
	rr := get(h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `http_requests_total{method="GET",route="/healthz",status="200"}`) {
		t.Fatalf("request metric not exported:\n%s", rr.Body.String())
	}
}

func TestPrincipalRoutes(t *testing.T) {
	s := &fakeSearch{}
	h := newTestRouter(t, Deps{Search: s})

	rr := get(h, "/v1/principals?q=ali&type=users&prefix=true&provider=ldap,%20local")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if s.last.Mode != directory.MatchWildcardPrefix || s.last.Filter != directory.FilterUsers {
		t.Fatalf("query = %+v", s.last)
	}
	if len(s.last.Providers) != 2 || s.last.Providers[1] != "local" {
		t.Fatalf("providers = %v", s.last.Providers)
	}
	if !strings.Contains(rr.Body.String(), `CORP\\alice`) {
		t.Fatalf("body = %s", rr.Body.String())
	}

	rr = get(h, "/v1/principals?q=none")
	if strings.TrimSpace(rr.Body.String()) != `{"principals":[]}` {
		t.Fatalf("empty result body = %s", rr.Body.String())
	}

	if rr = get(h, "/v1/principals"); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing q: status = %d", rr.Code)
	}
	if rr = get(h, "/v1/principals/alice"); rr.Code != http.StatusOK {
		t.Fatalf("find: status = %d", rr.Code)
	}
	if rr = get(h, "/v1/principals/bob"); rr.Code != http.StatusNotFound {
		t.Fatalf("find missing: status = %d", rr.Code)
	}
}

func TestRecoverFromPanic(t *testing.T) {
	h := newTestRouter(t, Deps{Search: panicSearch{}})
	rr := get(h, "/v1/principals?q=x")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

type panicSearch struct{}

func (panicSearch) SearchPrincipals(context.Context, directory.Query) []directory.Principal {
	panic("boom")
}

func (panicSearch) FindBySubjectID(context.Context, string, ...string) *directory.Principal {
	return nil
}
