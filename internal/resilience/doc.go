// Package resilience construye las políticas de llamada (retry + circuit
// breaker) para cada dependencia externa: directorio LDAP, cloud directory,
// credential store local y document store.
//
// Hay una sola Policy por dependencia durante toda la vida del proceso; el
// Provider las crea bajo demanda y se inyecta en quien hace la llamada.
//
//	caller ──► Policy.Execute
//	             │  retry (backoff exponencial, acotado)
//	             ▼
//	           gobreaker ──► fn(ctx)
//
// El retry corre fuera del breaker y se corta con ErrCircuitOpen: con el
// breaker abierto la llamada no se intenta.
package resilience
