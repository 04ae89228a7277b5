package repository

import (
	"context"
	"time"
)

// User es el registro durable de una identidad federada.
// Se crea en el primer login exitoso de un par (provider, externalId) y se
// muta en cada login posterior. Nunca se elimina desde este subsistema.
type User struct {
	SubjectID    string `json:"subject_id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	MiddleName   string `json:"middle_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	ProviderName string `json:"provider_name"`

	// Claims: Role es multi-valor, el resto de tipos conocidos son single-valor.
	Claims []Claim `json:"claims"`

	// LastLoginDatesByClient: client_id -> último login (una entrada por client).
	LastLoginDatesByClient map[string]time.Time `json:"last_login_dates_by_client"`

	CreatedAt time.Time `json:"created_at"`

	// Revision es la revisión leída del store. No se serializa; el repositorio
	// la usa como precondición en Update.
	Revision string `json:"-"`
}

// UserDocumentID construye el id de documento de un usuario.
func UserDocumentID(provider, externalID string) string {
	return externalID + ":" + provider
}

// DocumentID retorna el id de documento del usuario.
func (u *User) DocumentID() string {
	return UserDocumentID(u.ProviderName, u.SubjectID)
}

// StampLogin registra el login de clientID en at, reemplazando cualquier
// marca previa del mismo client.
func (u *User) StampLogin(clientID string, at time.Time) {
	if u.LastLoginDatesByClient == nil {
		u.LastLoginDatesByClient = make(map[string]time.Time)
	}
	delete(u.LastLoginDatesByClient, clientID)
	u.LastLoginDatesByClient[clientID] = at
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// FindByExternalID busca por (provider, externalId). (nil, false, nil) si no existe.
	FindByExternalID(ctx context.Context, provider, externalID string) (*User, bool, error)

	// FindBySubjectID lista los usuarios con ese subject id (uno por provider).
	FindBySubjectID(ctx context.Context, subjectID string) ([]User, error)

	// Add crea el usuario. Retorna ErrAlreadyExists si ya existe.
	Add(ctx context.Context, u *User) error

	// Update persiste el usuario usando u.Revision como precondición cuando
	// está presente. Retorna ErrNotFound o ErrConflict.
	Update(ctx context.Context, u *User) error
}
