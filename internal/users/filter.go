package users

import (
	"strings"

	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
)

// FilterClaims normaliza los claims entrantes antes de guardarlos:
//   - el display name legacy pasa a Name solo si no vino un Name;
//   - los tipos en forma larga conocidos pasan a su tipo estándar;
//   - el resto queda igual;
//   - si no hay Name, se sintetiza con given/family.
func FilterClaims(in []repository.Claim) []repository.Claim {
	hasName := repository.HasClaim(in, claims.Name)
	out := make([]repository.Claim, 0, len(in)+1)
	for _, c := range in {
		switch {
		case c.Type == claims.DisplayName && !hasName:
			c.Type = claims.Name
			hasName = true
		default:
			if std, ok := claims.StandardType(c.Type); ok {
				c.Type = std
			}
		}
		out = append(out, c)
	}
	if !hasName {
		if name := joinName(repository.ClaimValue(out, claims.GivenName), repository.ClaimValue(out, claims.FamilyName)); name != "" {
			out = append(out, repository.NewClaim(claims.Name, name))
		}
	}
	return out
}

func joinName(given, family string) string {
	return strings.TrimSpace(strings.TrimSpace(given) + " " + strings.TrimSpace(family))
}

// ApplyNames recalcula los campos de nombre del usuario desde sus claims.
// Un campo sin claim correspondiente queda vacío.
func ApplyNames(u *repository.User) {
	u.Username = repository.ClaimValue(u.Claims, claims.UPN)
	if u.Username == "" {
		u.Username = repository.ClaimValue(u.Claims, claims.Name)
	}
	u.FirstName = repository.ClaimValue(u.Claims, claims.GivenName)
	u.MiddleName = repository.ClaimValue(u.Claims, claims.MiddleName)
	u.LastName = repository.ClaimValue(u.Claims, claims.FamilyName)
}
