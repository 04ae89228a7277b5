// Package graph implementa directory.Provider sobre Microsoft Graph.
// El subject id de un principal es su object id.
package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
	"github.com/dropDatabas3/identityd/internal/resilience"
)

// Config del provider Graph.
type Config struct {
	Name         string `yaml:"name"`
	TenantID     string `yaml:"tenant_id" env:"GRAPH_TENANT_ID"`
	ClientID     string `yaml:"client_id" env:"GRAPH_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"GRAPH_CLIENT_SECRET"`
	Top          int32  `yaml:"top"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "graph"
	}
	if c.Top <= 0 {
		c.Top = 50
	}
	return c
}

// Validate verifica credenciales mínimas.
func (c Config) Validate() error {
	if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("graph: tenant_id, client_id and client_secret are required")
	}
	return nil
}

// Provider consulta Graph a través de la política de resiliencia compartida.
type Provider struct {
	cfg    Config
	client Client
	policy *resilience.Policy
	log    *zap.Logger
}

// New crea el provider sobre client.
func New(cfg Config, client Client, policy *resilience.Policy, log *zap.Logger) *Provider {
	if log == nil {
		log = logger.L()
	}
	if policy == nil {
		policy = resilience.NewPolicy(resilience.DependencyGraph, resilience.DefaultSettings(), log)
	}
	cfg = cfg.withDefaults()
	return &Provider{
		cfg:    cfg,
		client: client,
		policy: policy,
		log:    log.With(logger.Layer("directory"), logger.Provider(cfg.Name)),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

// FindBySubjectID busca por object id. Ids que no son GUID no se consultan.
func (p *Provider) FindBySubjectID(ctx context.Context, subjectID string) *directory.Principal {
	if _, err := uuid.Parse(subjectID); err != nil {
		return nil
	}
	obj, err := resilience.Call(ctx, p.policy, func(ctx context.Context) (models.DirectoryObjectable, error) {
		return p.client.GetDirectoryObject(ctx, subjectID)
	})
	if err != nil {
		directory.ReportFailure(p.log, p.cfg.Name, "find", err)
		return nil
	}
	if obj == nil {
		return nil
	}
	pr, ok := p.toPrincipal(obj)
	if !ok {
		return nil
	}
	return &pr
}

// SearchPrincipals consulta /users y/o /groups según el filtro. Si una de
// las consultas falla, se devuelve lo obtenido por la otra.
func (p *Provider) SearchPrincipals(ctx context.Context, text string, filter directory.TypeFilter, mode directory.MatchMode) []directory.Principal {
	var objs []models.DirectoryObjectable
	if filter != directory.FilterGroups {
		objs = append(objs, p.list(ctx, "search_users", UserFilter(text, mode), p.client.ListUsers)...)
	}
	if filter != directory.FilterUsers {
		objs = append(objs, p.list(ctx, "search_groups", GroupFilter(text, mode), p.client.ListGroups)...)
	}

	out := make([]directory.Principal, 0, len(objs))
	for _, o := range objs {
		pr, ok := p.toPrincipal(o)
		if !ok || !filter.Includes(pr.Type) {
			continue
		}
		out = append(out, pr)
	}
	return out
}

type listFunc func(ctx context.Context, filter string, top int32) ([]models.DirectoryObjectable, error)

func (p *Provider) list(ctx context.Context, op, filter string, fn listFunc) []models.DirectoryObjectable {
	objs, err := resilience.Call(ctx, p.policy, func(ctx context.Context) ([]models.DirectoryObjectable, error) {
		return fn(ctx, filter, p.cfg.Top)
	})
	if err != nil {
		directory.ReportFailure(p.log, p.cfg.Name, op, err)
		return nil
	}
	return objs
}

// UserFilter arma el $filter OData para usuarios.
func UserFilter(text string, mode directory.MatchMode) string {
	return odataFilter(text, mode, "displayName", "givenName", "surname", "mail", "userPrincipalName")
}

// GroupFilter arma el $filter OData para grupos.
func GroupFilter(text string, mode directory.MatchMode) string {
	return odataFilter(text, mode, "displayName", "mail")
}

func odataFilter(text string, mode directory.MatchMode, fields ...string) string {
	v := "'" + strings.ReplaceAll(strings.TrimSpace(text), "'", "''") + "'"
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if mode == directory.MatchWildcardPrefix {
			parts = append(parts, "startswith("+f+","+v+")")
		} else {
			parts = append(parts, f+" eq "+v)
		}
	}
	return strings.Join(parts, " or ")
}

// toPrincipal clasifica por @odata.type.
func (p *Provider) toPrincipal(o models.DirectoryObjectable) (directory.Principal, bool) {
	t := deref(o.GetOdataType())
	pr := directory.Principal{SubjectID: deref(o.GetId()), ProviderName: p.cfg.Name}
	if pr.SubjectID == "" {
		return directory.Principal{}, false
	}
	switch {
	case strings.EqualFold(t, odataTypeUser):
		u, ok := o.(models.Userable)
		if !ok {
			return directory.Principal{}, false
		}
		pr.Type = directory.PrincipalUser
		pr.FirstName = deref(u.GetGivenName())
		pr.LastName = deref(u.GetSurname())
		pr.DisplayName = deref(u.GetDisplayName())
		pr.Email = deref(u.GetMail())
		if pr.Email == "" {
			pr.Email = deref(u.GetUserPrincipalName())
		}
	case strings.EqualFold(t, odataTypeGroup):
		g, ok := o.(models.Groupable)
		if !ok {
			return directory.Principal{}, false
		}
		pr.Type = directory.PrincipalGroup
		pr.DisplayName = deref(g.GetDisplayName())
		pr.Email = deref(g.GetMail())
	default:
		return directory.Principal{}, false
	}
	return pr, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
