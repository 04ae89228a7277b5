package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	store "github.com/dropDatabas3/identityd/internal/store"
)

func (c *Connection) PutDesign(ctx context.Context, d store.DesignDocument) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return false, ErrNoDatabase
	}
	if current, ok := c.designs[d.Name]; ok && sameViews(current, d) {
		return false, nil
	}
	c.designs[d.Name] = d
	return true, nil
}

func sameViews(a, b store.DesignDocument) bool {
	if len(a.Views) != len(b.Views) {
		return false
	}
	for name, v := range a.Views {
		o, ok := b.Views[name]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

type indexRow struct {
	id    string
	key   any
	value any
}

func (c *Connection) QueryView(ctx context.Context, ref store.ViewRef, q store.ViewQuery) ([]store.ViewRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.exists {
		return nil, ErrNoDatabase
	}
	design, ok := c.designs[ref.Design]
	if !ok {
		return nil, fmt.Errorf("memory: design %s: %w", ref.Design, repository.ErrNotFound)
	}
	view, ok := design.Views[ref.View]
	if !ok || view.Emit == nil {
		return nil, fmt.Errorf("memory: view %s: %w", ref, repository.ErrNotFound)
	}

	index := c.buildIndex(view.Emit)
	rows := filter(index, q)

	if q.Reduce {
		if view.Reduce == "" {
			return nil, fmt.Errorf("memory: view %s has no reduce: %w", ref, repository.ErrInvalidInput)
		}
		return reduce(view.Reduce, rows)
	}

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]store.ViewRow, 0, len(rows))
	for _, r := range rows {
		row := store.ViewRow{ID: r.id, Key: mustJSON(r.key), Value: mustJSON(r.value)}
		if q.IncludeDocs {
			if e, ok := c.docs[r.id]; ok {
				row.Doc = withMeta(r.id, e)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// buildIndex aplica emit a todos los documentos y ordena por (key, id).
func (c *Connection) buildIndex(emit store.EmitFunc) []indexRow {
	var index []indexRow
	for key, e := range c.docs {
		body, _ := json.Marshal(e.body)
		for _, em := range emit(key, body) {
			index = append(index, indexRow{id: key, key: normalize(em.Key), value: normalize(em.Value)})
		}
	}
	sort.SliceStable(index, func(i, j int) bool {
		if c := collate(index[i].key, index[j].key); c != 0 {
			return c < 0
		}
		return index[i].id < index[j].id
	})
	return index
}

func filter(index []indexRow, q store.ViewQuery) []indexRow {
	switch {
	case q.Key != nil:
		k := normalize(q.Key)
		var out []indexRow
		for _, r := range index {
			if collate(r.key, k) == 0 {
				out = append(out, r)
			}
		}
		return out
	case q.Keys != nil:
		// CouchDB devuelve las filas en el orden de keys.
		var out []indexRow
		for _, want := range q.Keys {
			k := normalize(want)
			for _, r := range index {
				if collate(r.key, k) == 0 {
					out = append(out, r)
				}
			}
		}
		return out
	case q.StartKey != nil || q.EndKey != nil:
		var out []indexRow
		start, end := normalize(q.StartKey), normalize(q.EndKey)
		for _, r := range index {
			if q.StartKey != nil && collate(r.key, start) < 0 {
				continue
			}
			if q.EndKey != nil {
				c := collate(r.key, end)
				if c > 0 || (c == 0 && !q.InclusiveEnd) {
					continue
				}
			}
			out = append(out, r)
		}
		return out
	}
	return index
}

func reduce(fn string, rows []indexRow) ([]store.ViewRow, error) {
	switch fn {
	case "_count":
		if len(rows) == 0 {
			return nil, nil
		}
		return []store.ViewRow{{Key: json.RawMessage("null"), Value: mustJSON(len(rows))}}, nil
	case "_sum":
		if len(rows) == 0 {
			return nil, nil
		}
		var sum float64
		for _, r := range rows {
			if n, ok := r.value.(float64); ok {
				sum += n
			}
		}
		return []store.ViewRow{{Key: json.RawMessage("null"), Value: mustJSON(sum)}}, nil
	}
	return nil, fmt.Errorf("memory: unsupported reduce %q: %w", fn, repository.ErrInvalidInput)
}

// normalize lleva un valor Go a su forma JSON decodificada (string, float64,
// bool, nil, []any, map[string]any) para poder compararlo.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	_ = json.Unmarshal(b, &out)
	return out
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// collate ordena como la collation de vistas de CouchDB:
// null < bool < número < string < array < objeto. Los strings se comparan
// por bytes (CouchDB usa ICU; para keys ASCII el orden coincide).
func collate(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case []any:
		bv := b.([]any)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := collate(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(av), len(bv))
	case map[string]any:
		return cmpInt(len(av), len(b.(map[string]any)))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case []any:
		return 4
	}
	return 5
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
