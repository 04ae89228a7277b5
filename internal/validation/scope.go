// Package validation valida nombres de scopes y las entidades del token
// issuer que los referencian antes de persistirlas.
package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
)

// Reglas de nombre de scope:
//   - solo minúsculas, dígitos y [:_.-]
//   - empieza y termina en [a-z0-9]
//   - largo 1..64
//
// Válidos: profile, orders.read, email:read:e2e123. Inválidos: ;hack, BAD,
// "bad space", :leader, trailer:, "".
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName reporta si name es un nombre de scope aceptable.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// Client valida client_id y los scopes permitidos de c.
func Client(c *repository.Client) error {
	if c == nil {
		return repository.ArgumentNull("client")
	}
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, repository.ArgumentNull("client_id"))
	}
	errs = append(errs, scopes("allowed_scopes", c.AllowedScopes)...)
	return errors.Join(errs...)
}

// IdentityResource valida que el nombre del resource sea un scope válido.
func IdentityResource(r *repository.IdentityResource) error {
	if r == nil {
		return repository.ArgumentNull("resource")
	}
	return errors.Join(scopes("name", []string{r.Name})...)
}

// APIResource valida el nombre de la API y cada uno de sus scopes.
func APIResource(r *repository.APIResource) error {
	if r == nil {
		return repository.ArgumentNull("resource")
	}
	var errs []error
	if r.Name == "" {
		errs = append(errs, repository.ArgumentNull("name"))
	}
	errs = append(errs, scopes("scopes", r.ScopeNames())...)
	return errors.Join(errs...)
}

func scopes(field string, names []string) []error {
	var errs []error
	for _, n := range names {
		if !ValidScopeName(n) {
			errs = append(errs, fmt.Errorf("%w: %s: invalid scope name %q", repository.ErrInvalidInput, field, n))
		}
	}
	return errs
}
