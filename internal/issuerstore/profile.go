package issuerstore

import (
	"context"
	"time"

	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// ProfileService entrega los claims de perfil de un subject al token issuer.
type ProfileService struct {
	users repository.UserRepository
	deps  Deps
}

func NewProfileService(users repository.UserRepository, deps Deps) *ProfileService {
	return &ProfileService{users: users, deps: deps.withDefaults("profile")}
}

// GetProfileClaims retorna sub más los claims del usuario cuyo tipo está en
// requested (todos si requested está vacío). Si el subject tiene registros
// en varios providers se usa el de login más reciente.
func (s *ProfileService) GetProfileClaims(ctx context.Context, subjectID string, requested []string) ([]repository.Claim, error) {
	if subjectID == "" {
		return nil, repository.ArgumentNull("subjectId")
	}
	u, ok, err := s.find(ctx, subjectID)
	if err != nil || !ok {
		return nil, err
	}

	want := make(map[string]struct{}, len(requested))
	for _, t := range requested {
		want[t] = struct{}{}
	}
	out := []repository.Claim{repository.NewClaim(claims.Subject, u.SubjectID)}
	for _, c := range u.Claims {
		if c.Type == claims.Subject {
			continue
		}
		if _, ok := want[c.Type]; len(want) == 0 || ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// IsActive indica si existe un usuario para subject.
func (s *ProfileService) IsActive(ctx context.Context, subjectID string) (bool, error) {
	_, ok, err := s.find(ctx, subjectID)
	return ok, err
}

func (s *ProfileService) find(ctx context.Context, subjectID string) (*repository.User, bool, error) {
	us, err := s.users.FindBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, false, err
	}
	if len(us) == 0 {
		s.deps.Logger.Debug("profile subject not found", logger.SubjectID(subjectID))
		return nil, false, nil
	}
	best := &us[0]
	for i := 1; i < len(us); i++ {
		if lastLogin(&us[i]).After(lastLogin(best)) {
			best = &us[i]
		}
	}
	return best, true, nil
}

func lastLogin(u *repository.User) (t time.Time) {
	for _, at := range u.LastLoginDatesByClient {
		if at.After(t) {
			t = at
		}
	}
	return t
}
