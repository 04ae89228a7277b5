// Package local implementa el directorio de cuentas locales sobre Postgres:
// búsqueda de principals (directory.Provider) y verificación de credenciales.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
	"github.com/dropDatabas3/identityd/internal/resilience"
)

// ErrInvalidCredentials usuario inexistente, deshabilitado o password incorrecto.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Querier es la mínima interfaz que cumplen *pgxpool.Pool y pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Kind valores de la columna kind.
const (
	KindUser  = "user"
	KindGroup = "group"
)

// Account fila de local_account.
type Account struct {
	Username     string
	GivenName    string
	MiddleName   string
	FamilyName   string
	DisplayName  string
	Email        string
	Kind         string
	PasswordHash string
	Roles        []string
	Disabled     bool
}

// Config del provider local.
type Config struct {
	Name  string `yaml:"name"`
	DSN   string `yaml:"dsn" env:"LOCAL_DSN"`
	Limit int    `yaml:"limit"`
}

// Provider busca en local_account a través de la política local_store.
type Provider struct {
	cfg    Config
	db     Querier
	policy *resilience.Policy
	log    *zap.Logger
}

func New(cfg Config, db Querier, policy *resilience.Policy, log *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "local"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if log == nil {
		log = logger.L()
	}
	if policy == nil {
		policy = resilience.NewPolicy(resilience.DependencyLocalStore, resilience.DefaultSettings(), log)
	}
	return &Provider{
		cfg:    cfg,
		db:     db,
		policy: policy,
		log:    log.With(logger.Layer("directory"), logger.Provider(cfg.Name)),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

const columns = `username, given_name, middle_name, family_name, display_name, email, kind, password_hash, roles, disabled`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.Username, &a.GivenName, &a.MiddleName, &a.FamilyName, &a.DisplayName,
		&a.Email, &a.Kind, &a.PasswordHash, &a.Roles, &a.Disabled)
	return a, err
}

// LikePattern escapa los comodines de LIKE; en modo prefijo agrega %.
func LikePattern(text string, mode directory.MatchMode) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	v := r.Replace(strings.ToLower(strings.TrimSpace(text)))
	if mode == directory.MatchWildcardPrefix {
		v += "%"
	}
	return v
}

func (p *Provider) SearchPrincipals(ctx context.Context, text string, filter directory.TypeFilter, mode directory.MatchMode) []directory.Principal {
	const q = `
SELECT ` + columns + `
FROM local_account
WHERE NOT disabled
  AND (lower(username) LIKE $1 ESCAPE '\'
    OR lower(display_name) LIKE $1 ESCAPE '\'
    OR lower(email) LIKE $1 ESCAPE '\')
ORDER BY username
LIMIT $2;
`
	accounts, err := resilience.Call(ctx, p.policy, func(ctx context.Context) ([]Account, error) {
		rows, err := p.db.Query(ctx, q, LikePattern(text, mode), p.cfg.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		out := make([]Account, 0, 16)
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, rows.Err()
	})
	if err != nil {
		directory.ReportFailure(p.log, p.cfg.Name, "search", err)
		return nil
	}

	out := make([]directory.Principal, 0, len(accounts))
	for _, a := range accounts {
		pr, ok := p.toPrincipal(a)
		if !ok || !filter.Includes(pr.Type) {
			continue
		}
		out = append(out, pr)
	}
	return out
}

func (p *Provider) FindBySubjectID(ctx context.Context, subjectID string) *directory.Principal {
	a, ok, err := p.account(ctx, subjectID)
	if err != nil {
		directory.ReportFailure(p.log, p.cfg.Name, "find", err)
		return nil
	}
	if !ok || a.Disabled {
		return nil
	}
	pr, ok := p.toPrincipal(a)
	if !ok {
		return nil
	}
	return &pr
}

func (p *Provider) account(ctx context.Context, username string) (Account, bool, error) {
	const q = `SELECT ` + columns + ` FROM local_account WHERE lower(username) = lower($1);`
	type found struct {
		a  Account
		ok bool
	}
	// ErrNoRows no es falla de la dependencia
	f, err := resilience.Call(ctx, p.policy, func(ctx context.Context) (found, error) {
		a, err := scanAccount(p.db.QueryRow(ctx, q, username))
		if errors.Is(err, pgx.ErrNoRows) {
			return found{}, nil
		}
		if err != nil {
			return found{}, err
		}
		return found{a: a, ok: true}, nil
	})
	return f.a, f.ok, err
}

func (p *Provider) toPrincipal(a Account) (directory.Principal, bool) {
	var t directory.PrincipalType
	switch strings.ToLower(a.Kind) {
	case KindUser:
		t = directory.PrincipalUser
	case KindGroup:
		t = directory.PrincipalGroup
	default:
		return directory.Principal{}, false
	}
	return directory.Principal{
		SubjectID:    a.Username,
		FirstName:    a.GivenName,
		MiddleName:   a.MiddleName,
		LastName:     a.FamilyName,
		DisplayName:  a.DisplayName,
		Email:        a.Email,
		ProviderName: p.cfg.Name,
		Type:         t,
	}, true
}

// ─── Credenciales ───

var (
	compareHash = bcrypt.CompareHashAndPassword

	dummyHash = sync.OnceValue(func() []byte {
		h, _ := bcrypt.GenerateFromPassword([]byte("identityd-unknown-account"), bcrypt.DefaultCost)
		return h
	})
)

// Authenticate verifica usuario y password y arma el resultado de
// autenticación que consume el motor de claims.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (*claims.AuthenticationResult, error) {
	if username == "" {
		return nil, repository.ArgumentNull("username")
	}
	a, ok, err := p.account(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("local authenticate: %w", err)
	}
	if !ok || a.Disabled || !strings.EqualFold(a.Kind, KindUser) || a.PasswordHash == "" {
		// mismo costo que un password incorrecto: no revela qué usernames existen
		_ = compareHash(dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := compareHash([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	cs := []repository.Claim{repository.NewClaim(claims.Subject, a.Username)}
	add := func(t, v string) {
		if v != "" {
			cs = append(cs, repository.NewClaim(t, v))
		}
	}
	add(claims.Name, a.DisplayName)
	add(claims.GivenName, a.GivenName)
	add(claims.MiddleName, a.MiddleName)
	add(claims.FamilyName, a.FamilyName)
	add(claims.Email, a.Email)
	for _, r := range a.Roles {
		add(claims.Role, r)
	}
	return &claims.AuthenticationResult{
		Claims: cs,
		Properties: map[string]string{
			claims.PropertyProvider: p.cfg.Name,
			claims.PropertyScheme:   p.cfg.Name,
		},
	}, nil
}

// SetPassword guarda el hash bcrypt de password.
func (p *Provider) SetPassword(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return p.policy.Execute(ctx, func(ctx context.Context) error {
		tag, err := p.db.Exec(ctx, `UPDATE local_account SET password_hash = $2 WHERE lower(username) = lower($1);`, username, string(hash))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}
