// Package repository define los tipos de dominio persistidos y las interfaces
// de repositorio, independientes del almacenamiento subyacente.
//
// Las implementaciones viven en internal/store (documentos tipados sobre un
// adapter couchdb o memory).
//
//	┌──────────────────────────────────────────────────────┐
//	│   users.Reconciler / issuerstore / login.Flow        │
//	└──────────────────────────────────────────────────────┘
//	                         │
//	                         ▼
//	┌──────────────────────────────────────────────────────┐
//	│        domain/repository (tipos + interfaces)        │
//	│  UserRepository, ClientRepository, GrantRepository   │
//	└──────────────────────────────────────────────────────┘
//	                         │
//	                         ▼
//	┌──────────────────────────────────────────────────────┐
//	│   store.Collection[T]  →  adapters/couchdb | memory  │
//	└──────────────────────────────────────────────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - "No existe" en lecturas es (nil, false, nil), no un error
//   - Errores de dominio están en errors.go
package repository
