package directory

import (
	"fmt"
	"strings"
	"sync"
)

// Registry guarda los providers en orden de registro.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry crea un registry con los providers dados, en orden.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		_ = r.Register(p)
	}
	return r
}

// Register agrega un provider. Los nombres son únicos sin distinguir mayúsculas.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("directory: nil provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.providers {
		if strings.EqualFold(existing.Name(), p.Name()) {
			return fmt.Errorf("directory: provider %q already registered", p.Name())
		}
	}
	r.providers = append(r.providers, p)
	return nil
}

// Providers retorna los providers cuyo nombre está en names (todos si está
// vacío), en orden de registro.
func (r *Registry) Providers(names ...string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if len(names) == 0 || containsFold(names, p.Name()) {
			out = append(out, p)
		}
	}
	return out
}

// Names retorna los nombres registrados, en orden.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Name())
	}
	return out
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return true
		}
	}
	return false
}
