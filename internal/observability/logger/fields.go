package logger

import (
	"time"

	"go.uber.org/zap"
)

// ─── Sistema ───

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Layer crea un campo para la capa (store, directory, engine).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Dependency identifica la dependencia externa protegida por un breaker.
func Dependency(v string) zap.Field { return zap.String("dependency", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Attempt numera reintentos.
func Attempt(v int) zap.Field { return zap.Int("attempt", v) }

// ─── Identidad ───

// Provider crea un campo para el proveedor de identidad.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Scheme crea un campo para el esquema de autenticación externo.
func Scheme(v string) zap.Field { return zap.String("scheme", v) }

// SubjectID crea un campo para el subject id (provider-qualified).
func SubjectID(v string) zap.Field { return zap.String("subject_id", v) }

// ClientID crea un campo para el ID del cliente OAuth.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// Issuer crea un campo para el issuer de un token externo.
func Issuer(v string) zap.Field { return zap.String("issuer", v) }

// ─── Datos ───

// DocKey crea un campo para la clave de documento ("{type}:{id}").
func DocKey(v string) zap.Field { return zap.String("doc_key", v) }

// Count crea un campo para un conteo.
func Count(v int) zap.Field { return zap.Int("count", v) }

// String crea un campo string genérico.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
