package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/identityd/internal/resilience"
)

const sample = `
app:
  env: staging
store:
  driver: couchdb
  url: http://couch:5984
  database: idp
cache:
  kind: redis
  addr: redis:6379
  ttl: 30s
resilience:
  overrides:
    ldap:
      failure_threshold: 2
      open_timeout: 10s
ldap:
  enabled: true
  url: ldaps://dc01:636
  base_dn: DC=corp,DC=example
  domain: CORP
graph:
  enabled: true
  tenant_id: t
  client_id: c
  client_secret: s
auth:
  cloud_enabled: true
  allowed_issuers: ["https://login.example.com/t/v2.0"]
`

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAMLAndDefaults(t *testing.T) {
	c, err := Load(write(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.App.Env != "staging" || c.Store.Database != "idp" {
		t.Fatalf("unexpected values: %+v", c.App)
	}
	if c.LDAP.URL != "ldaps://dc01:636" || c.LDAP.Domain != "CORP" {
		t.Fatalf("inline ldap section not decoded: %+v", c.LDAP.Config)
	}
	if c.Cache.TTL != 30*time.Second {
		t.Fatalf("cache ttl = %v", c.Cache.TTL)
	}
	if c.Server.Addr != ":8081" || c.Audit.Buffer != 1024 || c.Auth.CloudScheme != "aad" || c.Login.MaxAttempts != 10 {
		t.Fatal("defaults not applied")
	}
	if c.Resilience.Defaults != resilience.DefaultSettings() {
		t.Fatalf("resilience defaults = %+v", c.Resilience.Defaults)
	}
	ov := c.ResilienceOverrides()[resilience.DependencyLDAP]
	if ov.FailureThreshold != 2 || ov.OpenTimeout != 10*time.Second {
		t.Fatalf("ldap override = %+v", ov)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("STORE_URL", "http://other:5984")
	t.Setenv("LDAP_BIND_PASSWORD", "from-env")
	t.Setenv("APP_ENV", "PROD")

	c, err := Load(write(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Store.URL != "http://other:5984" {
		t.Fatalf("store url = %q", c.Store.URL)
	}
	if c.LDAP.BindPassword != "from-env" {
		t.Fatalf("bind password = %q", c.LDAP.BindPassword)
	}
	if c.App.Env != "prod" {
		t.Fatalf("env = %q", c.App.Env)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("memory store in dev should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	body := `
app:
  env: prod
store:
  driver: memory
cache:
  kind: memcached
resilience:
  overrides:
    smtp: {}
ldap:
  enabled: true
auth:
  cloud_enabled: true
local:
  enabled: true
`
	c, err := Load(write(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = c.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"memory is not allowed in prod",
		`cache.kind "memcached"`,
		`unknown dependency "smtp"`,
		"ldap: url is required",
		"requires graph.enabled",
		"requires auth.allowed_issuers",
		"local.dsn is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestResiliencePartialBlocksMerge(t *testing.T) {
	body := `
store:
  driver: memory
resilience:
  defaults:
    failure_threshold: 3
    call_timeout: 2s
  overrides:
    ldap:
      open_timeout: 10s
    graph:
      max_retries: -1
`
	c, err := Load(write(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := c.Resilience.Defaults
	if def.FailureThreshold != 3 || def.CallTimeout != 2*time.Second {
		t.Fatalf("configured defaults lost: %+v", def)
	}
	if def.MaxRetries != resilience.DefaultSettings().MaxRetries || def.OpenTimeout != resilience.DefaultSettings().OpenTimeout {
		t.Fatalf("missing default fields not filled: %+v", def)
	}

	ov := c.ResilienceOverrides()
	ldap := ov[resilience.DependencyLDAP]
	if ldap.OpenTimeout != 10*time.Second {
		t.Fatalf("ldap open timeout = %v", ldap.OpenTimeout)
	}
	if ldap.FailureThreshold != 3 || ldap.CallTimeout != 2*time.Second || ldap.MaxRetries != def.MaxRetries {
		t.Fatalf("ldap override not merged with defaults: %+v", ldap)
	}
	if g := ov[resilience.DependencyGraph]; g.MaxRetries != -1 || g.FailureThreshold != 3 {
		t.Fatalf("graph override = %+v", g)
	}
}
