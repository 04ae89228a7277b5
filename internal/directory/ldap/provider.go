// Package ldap implementa directory.Provider sobre un directorio LDAP
// (Active Directory). Los subject ids tienen la forma DOMINIO\sAMAccountName.
package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
	"github.com/dropDatabas3/identityd/internal/resilience"
)

// Config del provider LDAP.
type Config struct {
	Name         string        `yaml:"name"`
	URL          string        `yaml:"url" env:"LDAP_URL"` // ldap://host:389 | ldaps://host:636
	BindDN       string        `yaml:"bind_dn" env:"LDAP_BIND_DN"`
	BindPassword string        `yaml:"bind_password" env:"LDAP_BIND_PASSWORD"`
	BaseDN       string        `yaml:"base_dn" env:"LDAP_BASE_DN"`
	Domain       string        `yaml:"domain"` // prefijo NetBIOS de los subject ids
	SizeLimit    int           `yaml:"size_limit"`
	Timeout      time.Duration `yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "ldap"
	}
	if c.SizeLimit <= 0 {
		c.SizeLimit = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Session es la parte de *ldap.Conn que usa el provider.
type Session interface {
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
}

// Dialer abre una sesión ya autenticada. release libera la conexión.
type Dialer func(ctx context.Context, cfg Config) (s Session, release func(), err error)

var attributes = []string{
	"objectClass", "sAMAccountName", "cn", "displayName",
	"givenName", "middleName", "sn", "mail",
}

// Provider consulta el directorio a través de la política de resiliencia
// de LDAP. Nunca propaga errores de transporte.
type Provider struct {
	cfg    Config
	dial   Dialer
	policy *resilience.Policy
	log    *zap.Logger
}

// Option configura el Provider.
type Option func(*Provider)

// WithDialer reemplaza el dialer por defecto (tests).
func WithDialer(d Dialer) Option { return func(p *Provider) { p.dial = d } }

// WithLogger fija el logger.
func WithLogger(l *zap.Logger) Option { return func(p *Provider) { p.log = l } }

// New crea el provider. policy es compartida por todos los callers de LDAP.
func New(cfg Config, policy *resilience.Policy, opts ...Option) *Provider {
	p := &Provider{cfg: cfg.withDefaults(), dial: DialSession, policy: policy, log: logger.L()}
	for _, o := range opts {
		o(p)
	}
	if p.policy == nil {
		p.policy = resilience.NewPolicy(resilience.DependencyLDAP, resilience.DefaultSettings(), p.log)
	}
	p.log = p.log.With(logger.Layer("directory"), logger.Provider(p.cfg.Name))
	return p
}

func (p *Provider) Name() string { return p.cfg.Name }

// DialSession conecta con net.Dialer y hace bind si hay credenciales.
func DialSession(_ context.Context, cfg Config) (Session, func(), error) {
	conn, err := goldap.DialURL(cfg.URL, goldap.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, nil, fmt.Errorf("ldap dial: %w", err)
	}
	conn.SetTimeout(cfg.Timeout)
	closeFn := func() { conn.Close() }
	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ldap bind: %w", err)
		}
	}
	return conn, closeFn, nil
}

// FindBySubjectID resuelve DOMINIO\cuenta. Un dominio distinto al configurado
// no pertenece a este provider.
func (p *Provider) FindBySubjectID(ctx context.Context, subjectID string) *directory.Principal {
	account, ok := p.accountOf(subjectID)
	if !ok {
		return nil
	}
	filter := fmt.Sprintf("(&(|(objectClass=user)(objectClass=group))(sAMAccountName=%s))", goldap.EscapeFilter(account))
	entries, err := p.search(ctx, filter, 2)
	if err != nil {
		directory.ReportFailure(p.log, p.cfg.Name, "find", err)
		return nil
	}
	for _, e := range entries {
		if pr, ok := p.toPrincipal(e); ok {
			return &pr
		}
	}
	return nil
}

// SearchPrincipals traduce el texto a un filtro LDAP y clasifica cada entrada
// por objectClass.
func (p *Provider) SearchPrincipals(ctx context.Context, text string, filter directory.TypeFilter, mode directory.MatchMode) []directory.Principal {
	entries, err := p.search(ctx, BuildFilter(text, filter, mode), p.cfg.SizeLimit)
	if err != nil {
		directory.ReportFailure(p.log, p.cfg.Name, "search", err)
		return nil
	}
	out := make([]directory.Principal, 0, len(entries))
	for _, e := range entries {
		pr, ok := p.toPrincipal(e)
		if !ok || !filter.Includes(pr.Type) {
			continue
		}
		out = append(out, pr)
	}
	return out
}

func (p *Provider) search(ctx context.Context, filter string, size int) ([]*goldap.Entry, error) {
	return resilience.Call(ctx, p.policy, func(ctx context.Context) ([]*goldap.Entry, error) {
		s, closeFn, err := p.dial(ctx, p.cfg)
		if err != nil {
			return nil, err
		}
		defer closeFn()

		req := goldap.NewSearchRequest(
			p.cfg.BaseDN, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
			size, int(p.cfg.Timeout/time.Second), false,
			filter, attributes, nil,
		)
		res, err := s.Search(req)
		switch {
		case err == nil:
			return res.Entries, nil
		case goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject):
			return nil, nil
		case goldap.IsErrorWithCode(err, goldap.LDAPResultSizeLimitExceeded) && res != nil:
			// resultados parciales
			return res.Entries, nil
		}
		return nil, err
	})
}

// BuildFilter arma el filtro LDAP para una búsqueda. El texto siempre se
// escapa; en modo prefijo se agrega el comodín al final.
func BuildFilter(text string, filter directory.TypeFilter, mode directory.MatchMode) string {
	v := goldap.EscapeFilter(strings.TrimSpace(text))
	if mode == directory.MatchWildcardPrefix {
		v += "*"
	}
	users := fmt.Sprintf("(&(objectClass=user)(objectCategory=person)(|(sAMAccountName=%[1]s)(displayName=%[1]s)(givenName=%[1]s)(sn=%[1]s)(mail=%[1]s)))", v)
	groups := fmt.Sprintf("(&(objectClass=group)(|(sAMAccountName=%[1]s)(cn=%[1]s)))", v)
	switch filter {
	case directory.FilterUsers:
		return users
	case directory.FilterGroups:
		return groups
	}
	return "(|" + users + groups + ")"
}

func (p *Provider) accountOf(subjectID string) (string, bool) {
	domain, account, found := strings.Cut(subjectID, `\`)
	if !found {
		// con dominio configurado los subject ids propios siempre van calificados
		if p.cfg.Domain != "" {
			return "", false
		}
		return subjectID, subjectID != ""
	}
	if p.cfg.Domain != "" && !strings.EqualFold(domain, p.cfg.Domain) {
		return "", false
	}
	return account, account != ""
}

func (p *Provider) subjectID(account string) string {
	if p.cfg.Domain == "" {
		return account
	}
	return p.cfg.Domain + `\` + account
}

// classify usa objectClass; computer hereda de user y se descarta.
func classify(e *goldap.Entry) (directory.PrincipalType, bool) {
	var isUser bool
	for _, oc := range e.GetAttributeValues("objectClass") {
		switch strings.ToLower(oc) {
		case "group":
			return directory.PrincipalGroup, true
		case "computer":
			return "", false
		case "user", "person", "inetorgperson":
			isUser = true
		}
	}
	if isUser {
		return directory.PrincipalUser, true
	}
	return "", false
}

func (p *Provider) toPrincipal(e *goldap.Entry) (directory.Principal, bool) {
	t, ok := classify(e)
	if !ok {
		return directory.Principal{}, false
	}
	account := e.GetAttributeValue("sAMAccountName")
	if account == "" {
		return directory.Principal{}, false
	}
	display := e.GetAttributeValue("displayName")
	if display == "" {
		display = e.GetAttributeValue("cn")
	}
	return directory.Principal{
		SubjectID:    p.subjectID(account),
		FirstName:    e.GetAttributeValue("givenName"),
		MiddleName:   e.GetAttributeValue("middleName"),
		LastName:     e.GetAttributeValue("sn"),
		DisplayName:  display,
		Email:        e.GetAttributeValue("mail"),
		ProviderName: p.cfg.Name,
		Type:         t,
	}, true
}

// Validate verifica la configuración mínima.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("ldap: url is required")
	}
	if strings.TrimSpace(c.BaseDN) == "" {
		return errors.New("ldap: base_dn is required")
	}
	return nil
}
