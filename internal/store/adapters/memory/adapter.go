// Package memory implementa un adapter de document database en memoria con
// la misma semántica de revisiones y vistas que CouchDB. Se usa en tests y en
// modo dev (store.driver: memory).
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	store "github.com/dropDatabas3/identityd/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

// ErrNoDatabase indica una operación de documentos antes de CreateDatabase.
var ErrNoDatabase = errors.New("memory: database does not exist")

// memoryAdapter implementa store.Adapter.
type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	return newConnection(false), nil
}

// New retorna una conexión con la base ya creada (sin design documents).
func New() *Connection {
	return newConnection(true)
}

func newConnection(exists bool) *Connection {
	return &Connection{
		exists:  exists,
		docs:    make(map[string]*entry),
		designs: make(map[string]store.DesignDocument),
	}
}

type entry struct {
	rev  string
	gen  int
	body map[string]json.RawMessage
}

// Connection es una base de documentos en memoria. Segura para uso concurrente.
type Connection struct {
	mu      sync.RWMutex
	exists  bool
	docs    map[string]*entry
	designs map[string]store.DesignDocument
}

func (c *Connection) Name() string { return "memory" }

func (c *Connection) Ping(ctx context.Context) error { return nil }

func (c *Connection) Close() error { return nil }

// ─── Base de datos ───

func (c *Connection) DatabaseExists(ctx context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exists, nil
}

func (c *Connection) CreateDatabase(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exists = true
	return nil
}

// ─── Documentos ───

func (c *Connection) Get(ctx context.Context, key string) (store.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return store.RawDocument{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.exists {
		return store.RawDocument{}, ErrNoDatabase
	}
	e, ok := c.docs[key]
	if !ok {
		return store.RawDocument{}, fmt.Errorf("memory: %s: %w", key, repository.ErrNotFound)
	}
	return store.RawDocument{Key: key, Rev: e.rev, Body: withMeta(key, e)}, nil
}

func (c *Connection) Put(ctx context.Context, key string, body json.RawMessage, rev string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", fmt.Errorf("memory: %s: body must be a JSON object: %w", key, err)
	}
	delete(fields, "_id")
	delete(fields, "_rev")

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return "", ErrNoDatabase
	}
	current, ok := c.docs[key]
	switch {
	case rev == "" && ok:
		return "", fmt.Errorf("memory: %s: %w", key, repository.ErrAlreadyExists)
	case rev != "" && !ok:
		return "", fmt.Errorf("memory: %s: %w", key, repository.ErrNotFound)
	case rev != "" && current.rev != rev:
		return "", fmt.Errorf("memory: %s: rev %s != %s: %w", key, rev, current.rev, repository.ErrConflict)
	}
	gen := 1
	if ok {
		gen = current.gen + 1
	}
	e := &entry{rev: newRev(gen), gen: gen, body: fields}
	c.docs[key] = e
	return e.rev, nil
}

func (c *Connection) Delete(ctx context.Context, key, rev string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return ErrNoDatabase
	}
	current, ok := c.docs[key]
	if !ok {
		return fmt.Errorf("memory: %s: %w", key, repository.ErrNotFound)
	}
	if current.rev != rev {
		return fmt.Errorf("memory: %s: %w", key, repository.ErrConflict)
	}
	delete(c.docs, key)
	return nil
}

func (c *Connection) Range(ctx context.Context, start, end string) ([]store.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.exists {
		return nil, ErrNoDatabase
	}
	keys := make([]string, 0)
	for k := range c.docs {
		if k >= start && k < end {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]store.RawDocument, 0, len(keys))
	for _, k := range keys {
		e := c.docs[k]
		out = append(out, store.RawDocument{Key: k, Rev: e.rev, Body: withMeta(k, e)})
	}
	return out, nil
}

// Len retorna la cantidad de documentos (sin design documents).
func (c *Connection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func newRev(gen int) string {
	return strconv.Itoa(gen) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// withMeta serializa el body con _id y _rev, como los devuelve CouchDB.
func withMeta(key string, e *entry) json.RawMessage {
	m := make(map[string]json.RawMessage, len(e.body)+2)
	for k, v := range e.body {
		m[k] = v
	}
	m["_id"], _ = json.Marshal(key)
	m["_rev"], _ = json.Marshal(e.rev)
	b, _ := json.Marshal(m)
	return b
}
