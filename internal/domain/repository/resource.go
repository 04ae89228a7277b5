package repository

import (
	"context"
	"time"
)

// IdentityResource agrupa claims de usuario bajo un scope de identidad (openid, profile, ...).
type IdentityResource struct {
	Name                    string    `json:"name"`
	DisplayName             string    `json:"display_name,omitempty"`
	Description             string    `json:"description,omitempty"`
	Enabled                 bool      `json:"enabled"`
	Required                bool      `json:"required"`
	Emphasize               bool      `json:"emphasize"`
	ShowInDiscoveryDocument bool      `json:"show_in_discovery_document"`
	UserClaims              []string  `json:"user_claims"`
	CreatedAt               time.Time `json:"created_at"`
}

// APIScope es un scope expuesto por un APIResource.
type APIScope struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Emphasize   bool     `json:"emphasize"`
	UserClaims  []string `json:"user_claims,omitempty"`
}

// APIResource es una API protegida con sus scopes.
type APIResource struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name,omitempty"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	APISecrets  []Secret   `json:"api_secrets,omitempty"`
	Scopes      []APIScope `json:"scopes"`
	UserClaims  []string   `json:"user_claims,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ScopeNames retorna los nombres de todos los scopes de la API.
func (a *APIResource) ScopeNames() []string {
	out := make([]string, 0, len(a.Scopes))
	for _, s := range a.Scopes {
		out = append(out, s.Name)
	}
	return out
}

// ResourceRepository define operaciones sobre identity y API resources.
type ResourceRepository interface {
	// FindIdentityByScopes retorna los identity resources cuyo nombre está en scopes.
	FindIdentityByScopes(ctx context.Context, scopes []string) ([]IdentityResource, error)

	// FindAPIByScopes retorna las APIs que exponen alguno de los scopes (sin duplicados).
	FindAPIByScopes(ctx context.Context, scopes []string) ([]APIResource, error)

	// GetAPI busca una API por nombre. (nil, false, nil) si no existe.
	GetAPI(ctx context.Context, name string) (*APIResource, bool, error)

	ListIdentity(ctx context.Context) ([]IdentityResource, error)
	ListAPI(ctx context.Context) ([]APIResource, error)

	// AddIdentity/AddAPI retornan ErrAlreadyExists si el nombre existe.
	AddIdentity(ctx context.Context, r *IdentityResource) error
	AddAPI(ctx context.Context, r *APIResource) error
}
