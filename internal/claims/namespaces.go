package claims

import "strings"

// Namespaces de los tipos de claim en forma larga (WS-Federation / SAML).
const (
	nsSOAP = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/"
	nsMS   = "http://schemas.microsoft.com/identity/claims/"
	nsMSWS = "http://schemas.microsoft.com/ws/2008/06/identity/claims/"
)

// Tipos de claim estándar (forma corta, OIDC).
const (
	Subject    = "sub"
	Name       = "name"
	GivenName  = "given_name"
	FamilyName = "family_name"
	MiddleName = "middle_name"
	Email      = "email"
	Role       = "role"
	Issuer     = "iss"
	SessionID  = "sid"
	Groups     = "groups"
	UPN        = "upn"
	ObjectID   = "oid"
	TenantID   = "tid"
)

// Tipos en forma larga con tratamiento especial.
const (
	// NameIdentifier es el user-id claim legacy.
	NameIdentifier = nsSOAP + "nameidentifier"
	// DisplayName es el nombre visible legacy; solo se mapea a Name si no hay Name.
	DisplayName = nsSOAP + "name"
	// ObjectIDLong es el object id del directorio cloud en forma larga.
	ObjectIDLong = nsMS + "objectidentifier"
)

var standardTypes = map[string]string{
	nsSOAP + "givenname":      GivenName,
	nsSOAP + "surname":        FamilyName,
	nsSOAP + "emailaddress":   Email,
	nsSOAP + "upn":            UPN,
	nsMSWS + "role":           Role,
	nsMSWS + "groups":         Groups,
	nsMS + "objectidentifier": ObjectID,
	nsMS + "tenantid":         TenantID,
}

// StandardType retorna el tipo estándar de un tipo en forma larga conocido.
// La comparación ignora mayúsculas, como hacen los emisores WS-Fed.
func StandardType(claimType string) (string, bool) {
	if t, ok := standardTypes[claimType]; ok {
		return t, true
	}
	t, ok := standardTypes[strings.ToLower(claimType)]
	return t, ok
}
