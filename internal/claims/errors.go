package claims

import "errors"

// ErrPolicy es el sentinel de toda violación de política de identidad.
var ErrPolicy = errors.New("identity policy violation")

// PolicyKind clasifica la violación.
type PolicyKind string

const (
	MissingUserClaim   PolicyKind = "missing_user_claim"
	MissingIssuerClaim PolicyKind = "missing_issuer_claim"
	InvalidIssuer      PolicyKind = "invalid_issuer"
)

// PolicyError termina el intento de login. Message es seguro para mostrar al
// usuario; Detail va solo al log.
type PolicyError struct {
	Kind    PolicyKind
	Message string
	Detail  string
}

func (e *PolicyError) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Detail
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *PolicyError) Is(target error) bool { return target == ErrPolicy }

// AsPolicyError extrae el *PolicyError de err, si lo hay.
func AsPolicyError(err error) (*PolicyError, bool) {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsPolicyError verifica si err es una violación de política.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrPolicy)
}
