package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/identityd/internal/directory"
)

// PrincipalSearcher es la vista del aggregator que usan los handlers.
type PrincipalSearcher interface {
	SearchPrincipals(ctx context.Context, q directory.Query) []directory.Principal
	FindBySubjectID(ctx context.Context, subjectID string, providers ...string) *directory.Principal
}

type principalsController struct {
	search PrincipalSearcher
}

// Search maneja GET /v1/principals?q=&type=users|groups|all&prefix=true&provider=a,b
func (c *principalsController) Search(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	text := strings.TrimSpace(qs.Get("q"))
	if text == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	q := directory.Query{
		Text:      text,
		Filter:    directory.ParseTypeFilter(qs.Get("type")),
		Providers: splitCSV(qs.Get("provider")),
	}
	if qs.Get("prefix") == "true" {
		q.Mode = directory.MatchWildcardPrefix
	}
	out := c.search.SearchPrincipals(r.Context(), q)
	if out == nil {
		out = []directory.Principal{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"principals": out})
}

// Find maneja GET /v1/principals/{subjectID}
func (c *principalsController) Find(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subjectID")
	p := c.search.FindBySubjectID(r.Context(), id, splitCSV(r.URL.Query().Get("provider"))...)
	if p == nil {
		WriteError(w, http.StatusNotFound, "not_found", "principal not found")
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
