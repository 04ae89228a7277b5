package repository

import (
	"context"
	"time"
)

// PersistedGrant es un grant persistido por el emisor de tokens
// (authorization code, refresh token, consent, reference token).
type PersistedGrant struct {
	Key          string     `json:"key"`
	Type         string     `json:"type"`
	SubjectID    string     `json:"subject_id"`
	ClientID     string     `json:"client_id"`
	CreationTime time.Time  `json:"creation_time"`
	Expiration   *time.Time `json:"expiration,omitempty"`
	Data         string     `json:"data"`
}

// Expired indica si el grant venció en now.
func (g *PersistedGrant) Expired(now time.Time) bool {
	return g.Expiration != nil && !g.Expiration.After(now)
}

// GrantRepository define operaciones sobre grants persistidos.
type GrantRepository interface {
	// Get busca por key. (nil, false, nil) si no existe.
	Get(ctx context.Context, key string) (*PersistedGrant, bool, error)

	// Put crea o reemplaza el grant con esa key.
	Put(ctx context.Context, g *PersistedGrant) error

	// ListBySubject lista los grants de un subject.
	ListBySubject(ctx context.Context, subjectID string) ([]PersistedGrant, error)

	// ListBySubjectClient lista los grants de un subject para un client.
	ListBySubjectClient(ctx context.Context, subjectID, clientID string) ([]PersistedGrant, error)

	// Delete elimina por key. Retorna ErrNotFound si no existe.
	Delete(ctx context.Context, key string) error
}
