// Package couchdb implementa el adapter CouchDB para el store usando
// github.com/go-kivik/kivik/v4.
//
// Requisitos:
//   - CouchDB 3.x
//   - URL: http://host:5984 (credenciales por config o embebidas en la URL)
package couchdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	store "github.com/dropDatabas3/identityd/internal/store"
)

func init() {
	store.RegisterAdapter(&couchAdapter{})
}

const designPrefix = "_design/"

// couchAdapter implementa store.Adapter para CouchDB.
type couchAdapter struct{}

func (a *couchAdapter) Name() string { return "couchdb" }

func (a *couchAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if cfg.URL == "" {
		return nil, errors.New("couchdb: url is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("couchdb: database is required")
	}

	var opts []kivik.Option
	if cfg.Username != "" {
		opts = append(opts, couchdb.BasicAuth(cfg.Username, cfg.Password))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, couchdb.OptionHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	client, err := kivik.New("couch", cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("couchdb: client: %w", err)
	}
	return &couchConnection{client: client, dbName: cfg.Database}, nil
}

// couchConnection representa una conexión activa a una base CouchDB.
type couchConnection struct {
	client *kivik.Client
	dbName string
}

func (c *couchConnection) Name() string { return "couchdb" }

func (c *couchConnection) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("couchdb: ping: %w", err)
	}
	if !ok {
		return errors.New("couchdb: ping: server not ready")
	}
	return nil
}

func (c *couchConnection) Close() error {
	return c.client.Close()
}

func (c *couchConnection) db() *kivik.DB {
	return c.client.DB(c.dbName)
}

// ─── Base de datos ───

func (c *couchConnection) DatabaseExists(ctx context.Context) (bool, error) {
	ok, err := c.client.DBExists(ctx, c.dbName)
	if err != nil {
		return false, fmt.Errorf("couchdb: exists %s: %w", c.dbName, err)
	}
	return ok, nil
}

func (c *couchConnection) CreateDatabase(ctx context.Context) error {
	err := c.client.CreateDB(ctx, c.dbName)
	if err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
		return fmt.Errorf("couchdb: create %s: %w", c.dbName, err)
	}
	return nil
}

// ─── Documentos ───

func (c *couchConnection) Get(ctx context.Context, key string) (store.RawDocument, error) {
	var body json.RawMessage
	if err := c.db().Get(ctx, key).ScanDoc(&body); err != nil {
		return store.RawDocument{}, mapError(key, err)
	}
	return store.RawDocument{Key: key, Rev: revisionOf(body), Body: body}, nil
}

func (c *couchConnection) Put(ctx context.Context, key string, body json.RawMessage, rev string) (string, error) {
	doc, err := withRev(body, rev)
	if err != nil {
		return "", fmt.Errorf("couchdb: %s: %w", key, err)
	}
	newRev, err := c.db().Put(ctx, key, doc)
	if err == nil {
		return newRev, nil
	}
	if kivik.HTTPStatus(err) != http.StatusConflict {
		return "", mapError(key, err)
	}
	if rev == "" {
		return "", fmt.Errorf("couchdb: %s: %w", key, repository.ErrAlreadyExists)
	}
	// CouchDB responde 409 también cuando el documento no existe; se distingue
	// releyendo.
	if _, getErr := c.Get(ctx, key); repository.IsNotFound(getErr) {
		return "", getErr
	}
	return "", fmt.Errorf("couchdb: %s: %w", key, repository.ErrConflict)
}

func (c *couchConnection) Delete(ctx context.Context, key, rev string) error {
	if _, err := c.db().Delete(ctx, key, rev); err != nil {
		return mapError(key, err)
	}
	return nil
}

func (c *couchConnection) Range(ctx context.Context, start, end string) ([]store.RawDocument, error) {
	rs := c.db().AllDocs(ctx, kivik.Params(map[string]interface{}{
		"startkey":      start,
		"endkey":        end,
		"inclusive_end": false,
		"include_docs":  true,
	}))
	defer rs.Close()

	var out []store.RawDocument
	for rs.Next() {
		id, err := rs.ID()
		if err != nil {
			return nil, fmt.Errorf("couchdb: range: %w", err)
		}
		var body json.RawMessage
		if err := rs.ScanDoc(&body); err != nil {
			return nil, fmt.Errorf("couchdb: range %s: %w", id, err)
		}
		out = append(out, store.RawDocument{Key: id, Rev: revisionOf(body), Body: body})
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("couchdb: range: %w", err)
	}
	return out, nil
}

// ─── Vistas ───

type designView struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

type designDoc struct {
	ID       string                `json:"_id"`
	Rev      string                `json:"_rev,omitempty"`
	Language string                `json:"language"`
	Views    map[string]designView `json:"views"`
}

func (c *couchConnection) PutDesign(ctx context.Context, d store.DesignDocument) (bool, error) {
	id := designPrefix + d.Name
	want := designDoc{ID: id, Language: "javascript", Views: make(map[string]designView, len(d.Views))}
	for name, v := range d.Views {
		want.Views[name] = designView{Map: v.Map, Reduce: v.Reduce}
	}

	var current designDoc
	err := c.db().Get(ctx, id).ScanDoc(&current)
	switch {
	case err == nil:
		if sameViews(current.Views, d.Views) {
			return false, nil
		}
		want.Rev = current.Rev
	case kivik.HTTPStatus(err) == http.StatusNotFound:
	default:
		return false, mapError(id, err)
	}

	if _, err := c.db().Put(ctx, id, want); err != nil {
		return false, mapError(id, err)
	}
	return true, nil
}

func sameViews(current map[string]designView, want map[string]store.ViewDefinition) bool {
	if len(current) != len(want) {
		return false
	}
	for name, v := range want {
		cur, ok := current[name]
		if !ok || !v.Equal(store.ViewDefinition{Map: cur.Map, Reduce: cur.Reduce}) {
			return false
		}
	}
	return true
}

func (c *couchConnection) QueryView(ctx context.Context, ref store.ViewRef, q store.ViewQuery) ([]store.ViewRow, error) {
	rs := c.db().Query(ctx, designPrefix+ref.Design, ref.View, kivik.Params(viewParams(q)))
	defer rs.Close()

	var out []store.ViewRow
	for rs.Next() {
		var row store.ViewRow
		if !q.Reduce {
			id, err := rs.ID()
			if err != nil {
				return nil, fmt.Errorf("couchdb: view %s: %w", ref, err)
			}
			row.ID = id
		}
		if err := rs.ScanKey(&row.Key); err != nil {
			return nil, fmt.Errorf("couchdb: view %s: key: %w", ref, err)
		}
		if err := rs.ScanValue(&row.Value); err != nil {
			return nil, fmt.Errorf("couchdb: view %s: value: %w", ref, err)
		}
		if q.IncludeDocs {
			// un documento borrado después de indexarse llega como doc null
			if err := rs.ScanDoc(&row.Doc); err != nil && kivik.HTTPStatus(err) != http.StatusNotFound {
				return nil, fmt.Errorf("couchdb: view %s: doc: %w", ref, err)
			}
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, mapError(ref.String(), err)
	}
	return out, nil
}

// viewParams traduce ViewQuery a parámetros de la API de vistas. reduce se
// envía siempre: CouchDB reduce por defecto en vistas con reduce.
func viewParams(q store.ViewQuery) map[string]interface{} {
	p := map[string]interface{}{
		"reduce": q.Reduce,
	}
	switch {
	case q.Key != nil:
		p["key"] = q.Key
	case q.Keys != nil:
		p["keys"] = q.Keys
	case q.StartKey != nil || q.EndKey != nil:
		if q.StartKey != nil {
			p["startkey"] = q.StartKey
		}
		if q.EndKey != nil {
			p["endkey"] = q.EndKey
		}
		p["inclusive_end"] = q.InclusiveEnd
	}
	if q.IncludeDocs && !q.Reduce {
		p["include_docs"] = true
	}
	if q.Limit > 0 {
		p["limit"] = q.Limit
	}
	return p
}

// ─── Helpers ───

// mapError traduce status HTTP de CouchDB a los sentinels del dominio.
func mapError(key string, err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return fmt.Errorf("couchdb: %s: %w", key, repository.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("couchdb: %s: %w", key, repository.ErrConflict)
	}
	return fmt.Errorf("couchdb: %s: %w", key, err)
}

func revisionOf(body json.RawMessage) string {
	var meta struct {
		Rev string `json:"_rev"`
	}
	_ = json.Unmarshal(body, &meta)
	return meta.Rev
}

// withRev agrega (o quita) _rev del body.
func withRev(body json.RawMessage, rev string) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	delete(doc, "_id")
	delete(doc, "_rev")
	if rev != "" {
		b, _ := json.Marshal(rev)
		doc["_rev"] = b
	}
	return doc, nil
}
