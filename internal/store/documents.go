package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/metrics"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// Executor ejecuta una operación a través de una política de resiliencia
// (resilience.Policy la implementa).
type Executor interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// DocumentStore envuelve una conexión de adapter: cada operación pasa por el
// Executor (si hay) y reporta métricas.
type DocumentStore struct {
	conn AdapterConnection
	exec Executor
	log  *zap.Logger
}

// Option configura un DocumentStore.
type Option func(*DocumentStore)

// WithExecutor hace pasar cada operación por e.
func WithExecutor(e Executor) Option {
	return func(s *DocumentStore) { s.exec = e }
}

// WithLogger reemplaza el logger por defecto.
func WithLogger(l *zap.Logger) Option {
	return func(s *DocumentStore) { s.log = l }
}

// NewDocumentStore crea un DocumentStore sobre conn.
func NewDocumentStore(conn AdapterConnection, opts ...Option) *DocumentStore {
	s := &DocumentStore{conn: conn}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logger.L()
	}
	s.log = s.log.With(logger.Layer("store"), logger.Component(conn.Name()))
	return s
}

// Connection retorna la conexión subyacente.
func (s *DocumentStore) Connection() AdapterConnection { return s.conn }

func (s *DocumentStore) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error
	if s.exec != nil {
		err = s.exec.Execute(ctx, fn)
	} else {
		err = fn(ctx)
	}
	metrics.StoreOperations.WithLabelValues(op, metrics.Result(err, classify)).Inc()
	metrics.StoreLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
	return err
}

func classify(err error) string {
	switch {
	case repository.IsNotFound(err):
		return "not_found"
	case repository.IsConflict(err):
		return "conflict"
	case repository.IsAlreadyExists(err):
		return "exists"
	case repository.IsCircuitOpen(err):
		return "circuit_open"
	}
	return ""
}

func (s *DocumentStore) get(ctx context.Context, key string) (RawDocument, error) {
	var doc RawDocument
	err := s.run(ctx, "get", func(ctx context.Context) error {
		var err error
		doc, err = s.conn.Get(ctx, key)
		return err
	})
	return doc, err
}

func (s *DocumentStore) put(ctx context.Context, key string, body json.RawMessage, rev string) (string, error) {
	var newRev string
	err := s.run(ctx, "put", func(ctx context.Context) error {
		var err error
		newRev, err = s.conn.Put(ctx, key, body, rev)
		return err
	})
	return newRev, err
}

func (s *DocumentStore) delete(ctx context.Context, key, rev string) error {
	return s.run(ctx, "delete", func(ctx context.Context) error {
		return s.conn.Delete(ctx, key, rev)
	})
}

func (s *DocumentStore) scan(ctx context.Context, prefix string) ([]RawDocument, error) {
	var docs []RawDocument
	start, end := PrefixRange(prefix)
	err := s.run(ctx, "range", func(ctx context.Context) error {
		var err error
		docs, err = s.conn.Range(ctx, start, end)
		return err
	})
	return docs, err
}

// QueryView consulta una vista.
func (s *DocumentStore) QueryView(ctx context.Context, ref ViewRef, q ViewQuery) ([]ViewRow, error) {
	var rows []ViewRow
	err := s.run(ctx, "view", func(ctx context.Context) error {
		var err error
		rows, err = s.conn.QueryView(ctx, ref, q)
		return err
	})
	return rows, err
}

// Count retorna la cantidad de documentos del type tag usando el índice
// agregado count_by_type, sin escanear documentos.
func (s *DocumentStore) Count(ctx context.Context, typeTag string) (int, error) {
	rows, err := s.QueryView(ctx, ViewCountByType, ViewQuery{
		Key:    strings.ToLower(typeTag),
		Reduce: true,
	})
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", typeTag, err)
	}
	if len(rows) == 0 || len(rows[0].Value) == 0 {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(rows[0].Value, &n); err != nil {
		return 0, fmt.Errorf("store: count %s: decode: %w", typeTag, err)
	}
	return n, nil
}

// ─── Collection[T] ───

// Document es un documento decodificado junto con su revisión.
type Document[T any] struct {
	ID    string
	Key   string
	Rev   string
	Value T
}

// Collection da acceso tipado a los documentos de tipo T, todos bajo el
// prefijo "{typeName}:".
type Collection[T any] struct {
	store    *DocumentStore
	typeName string
}

// NewCollection crea una colección cuyo type tag es el nombre del tipo T en
// minúsculas.
func NewCollection[T any](s *DocumentStore) *Collection[T] {
	return &Collection[T]{store: s, typeName: TypeName[T]()}
}

// TypeName retorna el type tag de T ("User" -> "user").
func TypeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}

// TypeName retorna el type tag de la colección.
func (c *Collection[T]) TypeName() string { return c.typeName }

// Key retorna la key de documento para id.
func (c *Collection[T]) Key(id string) string { return Key(c.typeName, id) }

// Get retorna el valor en id. Un documento ausente es (zero, false, nil).
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	doc, ok, err := c.GetDocument(ctx, id)
	if err != nil || !ok {
		return zero, false, err
	}
	return doc.Value, true, nil
}

// GetDocument retorna el documento en id con su revisión.
func (c *Collection[T]) GetDocument(ctx context.Context, id string) (*Document[T], bool, error) {
	key := c.Key(id)
	raw, err := c.store.get(ctx, key)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	doc, err := decode[T](raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Query retorna todos los documentos cuyo id empieza con idPrefix.
func (c *Collection[T]) Query(ctx context.Context, idPrefix string) ([]T, error) {
	docs, err := c.QueryDocuments(ctx, idPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Value)
	}
	return out, nil
}

// QueryDocuments es Query conservando ids y revisiones.
func (c *Collection[T]) QueryDocuments(ctx context.Context, idPrefix string) ([]Document[T], error) {
	prefix := c.Key(idPrefix)
	raws, err := c.store.scan(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", prefix, err)
	}
	out := make([]Document[T], 0, len(raws))
	for _, raw := range raws {
		doc, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

// List retorna todos los documentos de la colección.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	return c.Query(ctx, "")
}

// Add crea el documento. ErrAlreadyExists si la key existe.
func (c *Collection[T]) Add(ctx context.Context, id string, v T) (string, error) {
	key := c.Key(id)
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: add %s: encode: %w", key, err)
	}
	rev, err := c.store.put(ctx, key, body, "")
	if err != nil {
		return "", fmt.Errorf("store: add %s: %w", key, err)
	}
	c.store.log.Debug("document added", logger.DocKey(key))
	return rev, nil
}

// Update lee la revisión actual y escribe con ella como precondición.
// ErrNotFound si no existe, ErrConflict si otra escritura ganó la carrera.
func (c *Collection[T]) Update(ctx context.Context, id string, v T) (string, error) {
	key := c.Key(id)
	current, err := c.store.get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("store: update %s: %w", key, err)
	}
	return c.write(ctx, "update", key, current.Rev, v)
}

// Replace escribe con una revisión provista por el caller (leída antes).
func (c *Collection[T]) Replace(ctx context.Context, id, rev string, v T) (string, error) {
	if rev == "" {
		return "", repository.ArgumentNull("rev")
	}
	return c.write(ctx, "replace", c.Key(id), rev, v)
}

func (c *Collection[T]) write(ctx context.Context, op, key, rev string, v T) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: %s %s: encode: %w", op, key, err)
	}
	newRev, err := c.store.put(ctx, key, body, rev)
	if err != nil {
		if repository.IsConflict(err) {
			c.store.log.Debug("lost update", logger.DocKey(key), zap.String("rev", rev))
		}
		return "", fmt.Errorf("store: %s %s: %w", op, key, err)
	}
	return newRev, nil
}

// Delete lee la revisión actual y borra con ella. ErrNotFound si no existe.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	key := c.Key(id)
	current, err := c.store.get(ctx, key)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	if err := c.store.delete(ctx, key, current.Rev); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// FindByView consulta una vista con include_docs y decodifica los documentos
// de esta colección. Un documento emitido varias veces aparece una sola vez.
func (c *Collection[T]) FindByView(ctx context.Context, ref ViewRef, q ViewQuery) ([]Document[T], error) {
	q.IncludeDocs = true
	q.Reduce = false
	rows, err := c.store.QueryView(ctx, ref, q)
	if err != nil {
		return nil, fmt.Errorf("store: view %s: %w", ref, err)
	}
	prefix := TypePrefix(c.typeName)
	seen := make(map[string]struct{}, len(rows))
	out := make([]Document[T], 0, len(rows))
	for _, row := range rows {
		if !strings.HasPrefix(row.ID, prefix) || len(row.Doc) == 0 {
			continue
		}
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		doc, err := decode[T](RawDocument{Key: row.ID, Body: row.Doc})
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

func decode[T any](raw RawDocument) (*Document[T], error) {
	var v T
	if err := json.Unmarshal(raw.Body, &v); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", raw.Key, err)
	}
	rev := raw.Rev
	if rev == "" {
		rev = revisionOf(raw.Body)
	}
	return &Document[T]{ID: IDOfKey(raw.Key), Key: raw.Key, Rev: rev, Value: v}, nil
}

// revisionOf extrae _rev de un body JSON (filas de vistas con include_docs).
func revisionOf(body json.RawMessage) string {
	var meta struct {
		Rev string `json:"_rev"`
	}
	_ = json.Unmarshal(body, &meta)
	return meta.Rev
}
