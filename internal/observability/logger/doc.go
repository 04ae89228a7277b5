// Package logger provee un logger Zap singleton con scoping por contexto.
//
// # Decisiones
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context scoping: cada login o búsqueda puede llevar su propio logger con campos
//     (provider, subject_id, client_id) sin crear un nuevo core.
//   - Entornos: "dev" usa consola con colores; "staging" y "prod" usan JSON.
//   - Trazas: From agrega trace_id/span_id cuando el contexto trae un span.
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Component("users.reconciler"))
//	log.Info("user created", logger.SubjectID(sub), logger.Provider(p))
package logger
