// Package directory define el contrato de búsqueda de principals común a
// todas las fuentes de identidad federada (LDAP, graph cloud, cuentas
// locales) y el Aggregator que reparte una búsqueda entre ellas.
//
// Arquitectura:
//   - Provider: una implementación por fuente, cada una en su sub-paquete
//   - Registry: lista explícita y ordenada de providers
//   - Aggregator: fan-out concurrente, aislamiento de fallas, fan-in ordenado
//
// Los providers nunca retornan errores de transporte: una fuente caída
// registra la falla y aporta un resultado vacío.
package directory

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/metrics"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// PrincipalType clasifica un principal.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "User"
	PrincipalGroup PrincipalType = "Group"
)

// Principal es un resultado de búsqueda normalizado, venga de donde venga.
type Principal struct {
	SubjectID    string        `json:"subject_id"`
	FirstName    string        `json:"first_name,omitempty"`
	MiddleName   string        `json:"middle_name,omitempty"`
	LastName     string        `json:"last_name,omitempty"`
	DisplayName  string        `json:"display_name,omitempty"`
	Email        string        `json:"email,omitempty"`
	ProviderName string        `json:"provider_name"`
	Type         PrincipalType `json:"type"`
}

// TypeFilter limita una búsqueda a usuarios, grupos o ambos.
type TypeFilter int

const (
	FilterAll TypeFilter = iota
	FilterUsers
	FilterGroups
)

// Includes indica si un principal de tipo t pasa el filtro.
func (f TypeFilter) Includes(t PrincipalType) bool {
	switch f {
	case FilterUsers:
		return t == PrincipalUser
	case FilterGroups:
		return t == PrincipalGroup
	}
	return t == PrincipalUser || t == PrincipalGroup
}

// ParseTypeFilter interpreta "all", "users" o "groups" (sin distinguir mayúsculas).
func ParseTypeFilter(s string) TypeFilter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "users":
		return FilterUsers
	case "group", "groups":
		return FilterGroups
	}
	return FilterAll
}

// MatchMode elige match exacto o por prefijo del texto buscado.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchWildcardPrefix
)

// Provider es la interfaz que implementa cada fuente de directorio.
type Provider interface {
	// Name es el nombre del provider usado en filtros y logs.
	Name() string

	// FindBySubjectID retorna el principal, o nil si no existe o la fuente no responde.
	FindBySubjectID(ctx context.Context, subjectID string) *Principal

	// SearchPrincipals retorna los principals que matchean, del tipo filtrado.
	SearchPrincipals(ctx context.Context, text string, filter TypeFilter, mode MatchMode) []Principal
}

// Query es un pedido de búsqueda agregada.
type Query struct {
	Text   string
	Filter TypeFilter
	Mode   MatchMode

	// Providers limita la búsqueda a estos nombres. Vacío = todos.
	Providers []string
}

// ReportFailure registra una búsqueda degradada a resultado vacío.
func ReportFailure(log *zap.Logger, provider, op string, err error) {
	metrics.DirectorySearchFailures.WithLabelValues(provider).Inc()
	if repository.IsCircuitOpen(err) {
		log.Warn("directory unavailable, breaker open", logger.Provider(provider), logger.Op(op))
		return
	}
	log.Error("directory call failed", logger.Provider(provider), logger.Op(op), logger.Err(err))
}
