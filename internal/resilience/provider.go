package resilience

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// Provider entrega una Policy por dependencia, creada la primera vez que se
// pide y compartida desde entonces.
type Provider struct {
	mu        sync.Mutex
	defaults  Settings
	overrides map[Dependency]Settings
	policies  map[Dependency]*Policy
	log       *zap.Logger
}

// NewProvider crea un Provider. Los campos en cero de cada override se
// completan con defaults.
func NewProvider(defaults Settings, overrides map[Dependency]Settings, log *zap.Logger) *Provider {
	if log == nil {
		log = logger.L()
	}
	o := make(map[Dependency]Settings, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}
	return &Provider{
		defaults:  defaults,
		overrides: o,
		policies:  make(map[Dependency]*Policy),
		log:       log,
	}
}

// Policy retorna la política singleton de dep.
func (p *Provider) Policy(dep Dependency) *Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pol, ok := p.policies[dep]; ok {
		return pol
	}
	s := p.defaults
	if o, ok := p.overrides[dep]; ok {
		s = o.Merge(p.defaults)
	}
	pol := NewPolicy(dep, s, p.log)
	p.policies[dep] = pol
	return pol
}

// States retorna el estado de cada breaker creado hasta ahora.
func (p *Provider) States() map[Dependency]State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Dependency]State, len(p.policies))
	for dep, pol := range p.policies {
		out[dep] = pol.State()
	}
	return out
}

// Open retorna las dependencias con el breaker abierto, ordenadas.
func (p *Provider) Open() []Dependency {
	var out []Dependency
	for dep, st := range p.States() {
		if st == StateOpen {
			out = append(out, dep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
