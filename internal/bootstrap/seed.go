package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
	store "github.com/dropDatabas3/identityd/internal/store"
)

// StandardIdentityResources retorna los identity resources OIDC estándar.
func StandardIdentityResources(now time.Time) []repository.IdentityResource {
	return []repository.IdentityResource{
		{
			Name:                    "openid",
			DisplayName:             "Your user identifier",
			Enabled:                 true,
			Required:                true,
			ShowInDiscoveryDocument: true,
			UserClaims:              []string{"sub"},
			CreatedAt:               now,
		},
		{
			Name:                    "profile",
			DisplayName:             "User profile",
			Description:             "Your user profile information (first name, last name, etc.)",
			Enabled:                 true,
			Emphasize:               true,
			ShowInDiscoveryDocument: true,
			UserClaims:              []string{"name", "family_name", "given_name", "middle_name", "preferred_username", "updated_at"},
			CreatedAt:               now,
		},
		{
			Name:                    "email",
			DisplayName:             "Your email address",
			Enabled:                 true,
			Emphasize:               true,
			ShowInDiscoveryDocument: true,
			UserClaims:              []string{"email", "email_verified"},
			CreatedAt:               now,
		},
		{
			Name:                    "roles",
			DisplayName:             "User roles",
			Enabled:                 true,
			ShowInDiscoveryDocument: true,
			UserClaims:              []string{"role"},
			CreatedAt:               now,
		},
	}
}

// seed carga los identity resources estándar solo si no existe ninguno.
func (b *Bootstrapper) seed(ctx context.Context) error {
	ds := store.NewDocumentStore(b.cfg.Conn, store.WithExecutor(b.cfg.Policy), store.WithLogger(b.log))

	n, err := ds.Count(ctx, store.TypeIdentityResource)
	if err != nil {
		return fmt.Errorf("count identity resources: %w", err)
	}
	if n > 0 {
		b.log.Debug("identity resources present, skipping seed")
		return nil
	}

	repo := ds.Resources()
	created := 0
	for _, r := range StandardIdentityResources(time.Now().UTC()) {
		r := r
		if err := repo.AddIdentity(ctx, &r); err != nil {
			if repository.IsAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("add %s: %w", r.Name, err)
		}
		created++
	}
	b.log.Info("identity resources seeded", logger.Count(created))
	return nil
}
