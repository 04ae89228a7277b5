// Package util tiene helpers chicos compartidos.
package util

import "strings"

// MaskIdentifier enmascara un username para logs. Soporta email,
// DOMINIO\usuario y nombres planos.
func MaskIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if dom, user, ok := strings.Cut(s, `\`); ok {
		return dom + `\` + maskPart(user)
	}
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		return maskPart(s)
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	dparts := strings.Split(dom, ".")
	if len(dparts) > 0 && len(dparts[0]) > 1 {
		dparts[0] = dparts[0][:1] + "…"
	}
	return user + "@" + strings.Join(dparts, ".")
}

func maskPart(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 3 {
		return "***"
	}
	return s[:1] + "…" + s[len(s)-1:]
}
