package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/identityd/internal/cache"
	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/directory/graph"
	"github.com/dropDatabas3/identityd/internal/directory/ldap"
	"github.com/dropDatabas3/identityd/internal/directory/local"
	"github.com/dropDatabas3/identityd/internal/resilience"
	"github.com/dropDatabas3/identityd/internal/store"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env" env:"APP_ENV"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Server struct {
		// Addr del servidor de operaciones (/healthz, /readyz, /metrics)
		Addr string `yaml:"addr" env:"SERVER_ADDR"`
	} `yaml:"server"`

	Store StoreConfig `yaml:"store"`

	Cache cache.Config `yaml:"cache"`

	Resilience struct {
		Defaults resilience.Settings `yaml:"defaults"`
		// Overrides por dependencia: ldap | graph | local_store | document_store
		Overrides map[string]resilience.Settings `yaml:"overrides"`
	} `yaml:"resilience"`

	LDAP struct {
		Enabled     bool `yaml:"enabled" env:"LDAP_ENABLED"`
		ldap.Config `yaml:",inline"`
	} `yaml:"ldap"`

	Graph struct {
		Enabled      bool `yaml:"enabled" env:"GRAPH_ENABLED"`
		graph.Config `yaml:",inline"`
	} `yaml:"graph"`

	Local struct {
		Enabled      bool `yaml:"enabled" env:"LOCAL_ENABLED"`
		local.Config `yaml:",inline"`
	} `yaml:"local"`

	Auth claims.Config `yaml:"auth"`

	// Login limita los intentos de password login por username. max_attempts
	// negativo deshabilita el límite.
	Login struct {
		MaxAttempts int           `yaml:"max_attempts" env:"LOGIN_MAX_ATTEMPTS"`
		Window      time.Duration `yaml:"window" env:"LOGIN_WINDOW"`
	} `yaml:"login"`

	Audit struct {
		Buffer int `yaml:"buffer"`
	} `yaml:"audit"`
}

// StoreConfig conexión al document store.
type StoreConfig struct {
	Driver   string        `yaml:"driver" env:"STORE_DRIVER"` // couchdb | memory
	URL      string        `yaml:"url" env:"STORE_URL"`
	Database string        `yaml:"database" env:"STORE_DATABASE"`
	User     string        `yaml:"user" env:"STORE_USER"`
	Password string        `yaml:"password" env:"STORE_PASSWORD"`
	Timeout  time.Duration `yaml:"timeout"`
	// Seed carga los identity resources estándar en el bootstrap
	Seed bool `yaml:"seed"`
}

// Adapter traduce la sección store a la config del registry de adapters.
func (s StoreConfig) Adapter() store.AdapterConfig {
	return store.AdapterConfig{
		Name:     s.Driver,
		URL:      s.URL,
		Database: s.Database,
		Username: s.User,
		Password: s.Password,
		Timeout:  s.Timeout,
	}
}

// Load lee path (si no está vacío), pisa con variables de entorno y aplica
// defaults. No valida: llamar Validate.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "identityd"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8081"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "couchdb"
	}
	if c.Store.Database == "" {
		c.Store.Database = "identity"
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = 10 * time.Second
	}

	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "identityd"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}

	// campo a campo: un bloque parcial conserva lo configurado
	c.Resilience.Defaults = c.Resilience.Defaults.Merge(resilience.DefaultSettings())

	if c.Auth.CloudScheme == "" {
		c.Auth.CloudScheme = "aad"
	}
	if c.Login.MaxAttempts == 0 {
		c.Login.MaxAttempts = 10
	}
	if c.Login.Window <= 0 {
		c.Login.Window = 5 * time.Minute
	}
	if c.Audit.Buffer <= 0 {
		c.Audit.Buffer = 1024
	}
}

// ResilienceOverrides convierte los overrides a claves Dependency, con sus
// campos en cero completados desde resilience.defaults.
func (c *Config) ResilienceOverrides() map[resilience.Dependency]resilience.Settings {
	out := make(map[resilience.Dependency]resilience.Settings, len(c.Resilience.Overrides))
	for k, v := range c.Resilience.Overrides {
		out[resilience.Dependency(strings.ToLower(k))] = v.Merge(c.Resilience.Defaults)
	}
	return out
}

var knownDependencies = map[resilience.Dependency]struct{}{
	resilience.DependencyLDAP:          {},
	resilience.DependencyGraph:         {},
	resilience.DependencyLocalStore:    {},
	resilience.DependencyDocumentStore: {},
}

// Validate rechaza configuraciones incoherentes. Retorna todos los errores
// encontrados juntos.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "couchdb":
		if c.Store.URL == "" {
			errs = append(errs, errors.New("store.url is required for couchdb"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q not supported", c.Store.Driver))
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Addr == "" {
			errs = append(errs, errors.New("cache.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q not supported", c.Cache.Kind))
	}

	for dep := range c.ResilienceOverrides() {
		if _, ok := knownDependencies[dep]; !ok {
			errs = append(errs, fmt.Errorf("resilience.overrides: unknown dependency %q", dep))
		}
	}

	if c.LDAP.Enabled {
		if err := c.LDAP.Config.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Graph.Enabled {
		if err := c.Graph.Config.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Local.Enabled && c.Local.DSN == "" {
		errs = append(errs, errors.New("local.dsn is required"))
	}
	if c.Auth.CloudEnabled && !c.Graph.Enabled {
		errs = append(errs, errors.New("auth.cloud_enabled requires graph.enabled"))
	}
	// sin allow-list todo login cloud termina en InvalidIssuer
	if c.Auth.CloudEnabled && len(c.Auth.AllowedIssuers) == 0 {
		errs = append(errs, errors.New("auth.cloud_enabled requires auth.allowed_issuers"))
	}

	// en prod el store no puede ser en memoria
	if c.App.Env == "prod" && c.Store.Driver == "memory" {
		errs = append(errs, errors.New("store.driver memory is not allowed in prod"))
	}
	return errors.Join(errs...)
}
