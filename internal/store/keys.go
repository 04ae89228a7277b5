package store

import (
	"net/url"
	"strings"
)

// HighSentinel ordena después de cualquier carácter legal de una key. Se usa
// como cota superior exclusiva en los range scans por prefijo.
const HighSentinel = "\ufff0"

// Key construye la key de documento "{typeName}:{id}". typeName se pasa a
// minúsculas e id se escapa como segmento de path, así "a/b" y "DOMAIN\x"
// resuelven siempre a la misma key.
func Key(typeName, id string) string {
	return TypePrefix(typeName) + url.PathEscape(id)
}

// TypePrefix retorna el prefijo común a todas las keys de typeName.
func TypePrefix(typeName string) string {
	return strings.ToLower(typeName) + ":"
}

// PrefixRange retorna el rango [prefix, prefix+HighSentinel).
func PrefixRange(prefix string) (start, end string) {
	return prefix, prefix + HighSentinel
}

// TypeOfKey extrae el type tag de una key ("" si no tiene).
func TypeOfKey(key string) string {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return ""
	}
	return key[:i]
}

// IDOfKey revierte Key: retorna el id original sin escapar.
func IDOfKey(key string) string {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return key
	}
	id, err := url.PathUnescape(key[i+1:])
	if err != nil {
		return key[i+1:]
	}
	return id
}
