// Package store provee el registry de adaptadores de document database y el
// acceso tipado a documentos (Collection[T]) sobre ellos.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Adapter representa un adaptador de document database.
type Adapter interface {
	// Name retorna el nombre del adapter (ej: "couchdb", "memory").
	Name() string

	// Connect establece conexión con el almacenamiento. No crea la base de
	// datos: eso es responsabilidad del bootstrapper.
	Connect(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error)
}

// AdapterConnection representa una conexión activa a una base de documentos.
//
// Contrato de errores (sentinels de domain/repository):
//   - Get/Delete sobre una key inexistente: ErrNotFound
//   - Put sin revisión sobre una key existente: ErrAlreadyExists
//   - Put/Delete con revisión distinta a la actual: ErrConflict
//   - Put con revisión sobre una key inexistente: ErrNotFound
type AdapterConnection interface {
	// Name retorna el nombre del adapter.
	Name() string

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error

	// ─── Base de datos ───

	DatabaseExists(ctx context.Context) (bool, error)
	CreateDatabase(ctx context.Context) error

	// ─── Documentos ───

	Get(ctx context.Context, key string) (RawDocument, error)
	Put(ctx context.Context, key string, body json.RawMessage, rev string) (string, error)
	Delete(ctx context.Context, key, rev string) error

	// Range retorna los documentos con start <= key < end, ordenados por key.
	Range(ctx context.Context, start, end string) ([]RawDocument, error)

	// ─── Vistas ───

	// PutDesign instala o reemplaza un design document. changed es false
	// cuando la definición almacenada ya era idéntica.
	PutDesign(ctx context.Context, d DesignDocument) (changed bool, err error)

	QueryView(ctx context.Context, ref ViewRef, q ViewQuery) ([]ViewRow, error)
}

// RawDocument es un documento tal como lo devuelve el adapter.
type RawDocument struct {
	Key  string
	Rev  string
	Body json.RawMessage
}

// AdapterConfig configuración para conectar a una base de documentos.
type AdapterConfig struct {
	// Name del adapter: "couchdb", "memory"
	Name string

	// URL del servidor (para couchdb)
	URL string

	// Database nombre de la base de datos
	Database string

	// Credenciales opcionales (basic auth)
	Username string
	Password string

	// Timeout por request HTTP (0 = sin timeout propio)
	Timeout time.Duration
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter en el registry global.
// Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("adapter: %q already registered", name))
	}
	adapters[name] = a
}

// GetAdapter obtiene un adapter por nombre.
func GetAdapter(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}

// ListAdapters retorna los nombres de todos los adapters registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenAdapter abre una conexión usando el adapter especificado en la config.
func OpenAdapter(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error) {
	a, ok := GetAdapter(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("adapter: %q not registered", cfg.Name)
	}
	return a.Connect(ctx, cfg)
}
