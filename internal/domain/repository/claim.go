package repository

// Claim es un atributo de identidad. Issuer es opcional y solo se conserva
// cuando la fuente lo informa.
type Claim struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Issuer string `json:"issuer,omitempty"`
}

// NewClaim crea un claim sin issuer.
func NewClaim(claimType, value string) Claim {
	return Claim{Type: claimType, Value: value}
}

// FindClaim retorna el primer claim del tipo dado.
func FindClaim(claims []Claim, claimType string) (Claim, bool) {
	for _, c := range claims {
		if c.Type == claimType {
			return c, true
		}
	}
	return Claim{}, false
}

// ClaimValue retorna el valor del primer claim del tipo dado, o "".
func ClaimValue(claims []Claim, claimType string) string {
	c, _ := FindClaim(claims, claimType)
	return c.Value
}

// ClaimValues retorna todos los valores del tipo dado, en orden.
func ClaimValues(claims []Claim, claimType string) []string {
	var out []string
	for _, c := range claims {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// HasClaim indica si existe al menos un claim del tipo dado.
func HasClaim(claims []Claim, claimType string) bool {
	_, ok := FindClaim(claims, claimType)
	return ok
}
