// Package claims resuelve el resultado crudo de una autenticación federada en
// un bundle de claims normalizado: valida la política de issuer, enriquece
// desde el directorio cloud y determina la identidad efectiva.
package claims

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// Claves de las propiedades almacenadas en el resultado de autenticación.
const (
	PropertyProvider = "provider"
	PropertyScheme   = "scheme"
	PropertyIDToken  = "id_token"
)

// AuthenticationResult es el resultado crudo de un handler de autenticación.
type AuthenticationResult struct {
	Claims     []repository.Claim
	Properties map[string]string
}

// AuthorizationContext es la solicitud de autorización en curso (opcional).
type AuthorizationContext struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
}

// Result es el bundle de claims de un intento de login. No se persiste.
type Result struct {
	Provider string
	Scheme   string

	// Claims sin el user-id claim.
	Claims      []repository.Claim
	UserIDClaim repository.Claim

	// AdditionalClaims se propagan a la sesión: sid y groups.
	AdditionalClaims []repository.Claim
	Properties       map[string]string

	ClientID     string
	CloudSourced bool
	ObjectID     string

	cloudEnabled bool
}

// EffectiveUserID retorna el object id cuando el login viene del directorio
// cloud y está habilitado; si no, el valor del user-id claim.
func (r *Result) EffectiveUserID() string {
	if r.useObjectID() {
		return r.ObjectID
	}
	return r.UserIDClaim.Value
}

// EffectiveSubjectID aplica la misma precedencia y cae en el subject id ya
// persistido del usuario.
func (r *Result) EffectiveSubjectID(u *repository.User) string {
	if r.useObjectID() {
		return r.ObjectID
	}
	if u != nil && u.SubjectID != "" {
		return u.SubjectID
	}
	return r.UserIDClaim.Value
}

func (r *Result) useObjectID() bool {
	return r.CloudSourced && r.cloudEnabled && r.ObjectID != ""
}

// Config de la política de identidad.
type Config struct {
	// CloudScheme es el scheme de autenticación del directorio cloud.
	CloudScheme    string   `yaml:"cloud_scheme"`
	CloudEnabled   bool     `yaml:"cloud_enabled"`
	AllowedIssuers []string `yaml:"allowed_issuers"`
}

// Engine resuelve claims. Es seguro para uso concurrente.
type Engine struct {
	cfg     Config
	cloud   directory.Provider
	allowed map[string]struct{}
	log     *zap.Logger
}

// NewEngine crea el motor. cloud es el provider del directorio cloud usado
// para enriquecer claims; puede ser nil.
func NewEngine(cfg Config, cloud directory.Provider, log *zap.Logger) *Engine {
	if log == nil {
		log = logger.L()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedIssuers))
	for _, iss := range cfg.AllowedIssuers {
		allowed[normalizeIssuer(iss)] = struct{}{}
	}
	return &Engine{
		cfg:     cfg,
		cloud:   cloud,
		allowed: allowed,
		log:     log.With(logger.Layer("claims"), logger.Component("engine")),
	}
}

// Resolve produce el Result de un login o un *PolicyError.
func (e *Engine) Resolve(ctx context.Context, auth *AuthenticationResult, authz *AuthorizationContext) (*Result, error) {
	if auth == nil {
		return nil, repository.ArgumentNull("auth")
	}

	res := &Result{
		Provider:     auth.Properties[PropertyProvider],
		Scheme:       auth.Properties[PropertyScheme],
		Properties:   map[string]string{},
		cloudEnabled: e.cfg.CloudEnabled,
	}
	if res.Provider == "" {
		res.Provider = res.Scheme
	}
	if authz != nil {
		res.ClientID = authz.ClientID
	}
	log := e.log.With(logger.Provider(res.Provider), logger.Scheme(res.Scheme))

	// ─── user-id claim ───
	idx := indexOf(auth.Claims, Subject)
	if idx < 0 {
		idx = indexOf(auth.Claims, NameIdentifier)
	}
	if idx < 0 {
		return nil, &PolicyError{
			Kind:    MissingUserClaim,
			Message: "Unknown user ID.",
			Detail:  fmt.Sprintf("no %q or %q claim from provider %q", Subject, NameIdentifier, res.Provider),
		}
	}
	res.UserIDClaim = auth.Claims[idx]

	claims := make([]repository.Claim, 0, len(auth.Claims)+4)
	claims = append(claims, auth.Claims[:idx]...)
	claims = append(claims, auth.Claims[idx+1:]...)

	// ─── directorio cloud ───
	if oid := firstValue(claims, ObjectID, ObjectIDLong); oid != "" {
		res.CloudSourced = true
		res.ObjectID = oid
		if e.cfg.CloudScheme != "" {
			res.Scheme = e.cfg.CloudScheme
		}
		claims = e.enrich(ctx, log, claims, oid)
		if !repository.HasClaim(claims, Issuer) && res.UserIDClaim.Issuer != "" {
			claims = append(claims, repository.NewClaim(Issuer, res.UserIDClaim.Issuer))
		}
	}

	// ─── política de issuer ───
	if e.cfg.CloudEnabled && e.cfg.CloudScheme != "" && strings.EqualFold(res.Scheme, e.cfg.CloudScheme) {
		if err := e.checkIssuer(claims, res.Provider); err != nil {
			pe, _ := AsPolicyError(err)
			log.Warn("issuer policy violation", zap.String("kind", string(pe.Kind)), zap.String("detail", pe.Detail))
			return nil, err
		}
	}
	res.Claims = claims

	// ─── claims adicionales ───
	if c, ok := repository.FindClaim(claims, SessionID); ok {
		res.AdditionalClaims = append(res.AdditionalClaims, c)
	}
	for _, c := range claims {
		if c.Type == Groups {
			res.AdditionalClaims = append(res.AdditionalClaims, c)
		}
	}

	// ─── propiedades ───
	if tok := auth.Properties[PropertyIDToken]; tok != "" {
		res.Properties[PropertyIDToken] = tok
		if !repository.HasClaim(res.AdditionalClaims, SessionID) {
			if sid := sessionIDFromToken(tok); sid != "" {
				res.AdditionalClaims = append(res.AdditionalClaims, repository.NewClaim(SessionID, sid))
			}
		}
	}

	log.Debug("claims resolved",
		logger.SubjectID(res.EffectiveUserID()),
		logger.Count(len(res.Claims)),
		logger.Bool("cloud", res.CloudSourced),
	)
	return res, nil
}

// enrich completa nombre y email desde el directorio cloud si faltan.
func (e *Engine) enrich(ctx context.Context, log *zap.Logger, claims []repository.Claim, oid string) []repository.Claim {
	if e.cloud == nil {
		return claims
	}
	missingGiven := firstValue(claims, GivenName, nsSOAP+"givenname") == ""
	missingFamily := firstValue(claims, FamilyName, nsSOAP+"surname") == ""
	missingEmail := firstValue(claims, Email, nsSOAP+"emailaddress") == ""
	if !missingGiven && !missingFamily && !missingEmail {
		return claims
	}

	p := e.cloud.FindBySubjectID(ctx, oid)
	if p == nil {
		log.Debug("cloud principal not found, claims not enriched", logger.SubjectID(oid))
		return claims
	}
	if missingGiven && p.FirstName != "" {
		claims = append(claims, repository.NewClaim(GivenName, p.FirstName))
	}
	if missingFamily && p.LastName != "" {
		claims = append(claims, repository.NewClaim(FamilyName, p.LastName))
	}
	if missingEmail && p.Email != "" {
		claims = append(claims, repository.NewClaim(Email, p.Email))
	}
	return claims
}

func (e *Engine) checkIssuer(claims []repository.Claim, provider string) error {
	iss := repository.ClaimValue(claims, Issuer)
	if iss == "" {
		return &PolicyError{
			Kind:    MissingIssuerClaim,
			Message: "The identity provider did not supply an issuer.",
			Detail:  fmt.Sprintf("no %q claim from provider %q", Issuer, provider),
		}
	}
	if _, ok := e.allowed[normalizeIssuer(iss)]; !ok {
		return &PolicyError{
			Kind:    InvalidIssuer,
			Message: "Your organization is not allowed to sign in to this application.",
			Detail:  fmt.Sprintf("issuer %q from provider %q is not in the allow-list", iss, provider),
		}
	}
	return nil
}

// sessionIDFromToken lee el sid del id_token capturado. El token ya fue
// validado por el handler externo; aquí solo se inspecciona.
func sessionIDFromToken(raw string) string {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sid, _ := mc[SessionID].(string)
	return sid
}

func normalizeIssuer(iss string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(iss), "/"))
}

func indexOf(claims []repository.Claim, claimType string) int {
	for i, c := range claims {
		if c.Type == claimType {
			return i
		}
	}
	return -1
}

func firstValue(claims []repository.Claim, types ...string) string {
	for _, t := range types {
		if v := repository.ClaimValue(claims, t); v != "" {
			return v
		}
	}
	return ""
}
