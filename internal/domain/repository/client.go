package repository

import (
	"context"
	"time"
)

// Grant types soportados por los clients registrados.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeHybrid            = "hybrid"
	GrantTypeImplicit          = "implicit"
)

// Secret es un secreto (hasheado) de client o API.
type Secret struct {
	Value       string     `json:"value"`
	Description string     `json:"description,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
}

// Client representa un cliente OAuth/OIDC registrado.
type Client struct {
	ClientID                  string    `json:"client_id"`
	ClientName                string    `json:"client_name"`
	Enabled                   bool      `json:"enabled"`
	AllowedGrantTypes         []string  `json:"allowed_grant_types"`
	RedirectURIs              []string  `json:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs    []string  `json:"post_logout_redirect_uris,omitempty"`
	AllowedCORSOrigins        []string  `json:"allowed_cors_origins,omitempty"`
	AllowedScopes             []string  `json:"allowed_scopes"`
	ClientSecrets             []Secret  `json:"client_secrets,omitempty"`
	RequireConsent            bool      `json:"require_consent"`
	RequirePKCE               bool      `json:"require_pkce"`
	AllowOfflineAccess        bool      `json:"allow_offline_access"`
	AccessTokenLifetimeSecs   int       `json:"access_token_lifetime_secs"`
	IdentityTokenLifetimeSecs int       `json:"identity_token_lifetime_secs"`
	Claims                    []Claim   `json:"claims,omitempty"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// ClientRepository define operaciones sobre clients registrados.
type ClientRepository interface {
	// Get busca por client_id. (nil, false, nil) si no existe.
	Get(ctx context.Context, clientID string) (*Client, bool, error)

	// List lista todos los clients.
	List(ctx context.Context) ([]Client, error)

	// Add crea un client. Retorna ErrAlreadyExists si el client_id existe.
	Add(ctx context.Context, c *Client) error

	// Update reemplaza un client existente. Retorna ErrNotFound o ErrConflict.
	Update(ctx context.Context, c *Client) error

	// Delete elimina un client. Retorna ErrNotFound si no existe.
	Delete(ctx context.Context, clientID string) error
}
