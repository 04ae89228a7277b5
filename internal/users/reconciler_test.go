package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/audit"
	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/domain/repository"
	"github.com/dropDatabas3/identityd/internal/store"
	"github.com/dropDatabas3/identityd/internal/store/adapters/memory"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func fastRetry() RetrySettings {
	return RetrySettings{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func newReconciler(repo repository.UserRepository, clk *testclock.Clock, sink audit.Sink) *Reconciler {
	return NewReconciler(repo, WithClock(clk), WithAudit(sink), WithLogger(zap.NewNop()), WithRetry(fastRetry()))
}

func userRepo() repository.UserRepository {
	return store.NewDocumentStore(memory.New()).Users()
}

func TestLoginScenarioRoleReplacement(t *testing.T) {
	ctx := context.Background()
	repo := userRepo()
	clk := testclock.NewClock(t0)
	rec := &audit.Recorder{}
	r := newReconciler(repo, clk, rec)

	u, err := r.Login(ctx, "ldap", `DOMAIN\alice`, []repository.Claim{
		repository.NewClaim(claims.Name, "Alice Smith"),
		repository.NewClaim(claims.Role, "Viewer"),
	}, "app1")
	require.NoError(t, err)
	require.Equal(t, "Alice Smith", u.Username)
	require.Len(t, u.Claims, 2)
	require.Equal(t, map[string]time.Time{"app1": t0}, u.LastLoginDatesByClient)

	clk.Advance(time.Hour)
	t2 := t0.Add(time.Hour)
	_, err = r.Login(ctx, "ldap", `DOMAIN\alice`, []repository.Claim{
		repository.NewClaim(claims.Name, "Alice Smith"),
		repository.NewClaim(claims.Role, "Editor"),
	}, "app1")
	require.NoError(t, err)

	stored, ok, err := repo.FindByExternalID(ctx, "ldap", `DOMAIN\alice`)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Editor"}, repository.ClaimValues(stored.Claims, claims.Role))
	require.Len(t, stored.LastLoginDatesByClient, 1)
	require.True(t, stored.LastLoginDatesByClient["app1"].Equal(t2))
	require.True(t, stored.CreatedAt.Equal(t0))

	require.Len(t, rec.OfType(audit.EntityCreated), 1)
	require.Len(t, rec.OfType(audit.EntityUpdated), 1)
}

func TestLoginReplacesNonRoleClaims(t *testing.T) {
	ctx := context.Background()
	r := newReconciler(userRepo(), testclock.NewClock(t0), audit.Nop{})

	_, err := r.Login(ctx, "graph", "oid-1", []repository.Claim{
		repository.NewClaim(claims.Email, "old@example.com"),
		repository.NewClaim(claims.Role, "A"),
		repository.NewClaim(claims.Role, "B"),
	}, "app1")
	require.NoError(t, err)

	u, err := r.Login(ctx, "graph", "oid-1", []repository.Claim{
		repository.NewClaim(claims.Role, "C"),
		repository.NewClaim(claims.GivenName, "Bob"),
	}, "app2")
	require.NoError(t, err)
	require.Equal(t, []string{"C"}, repository.ClaimValues(u.Claims, claims.Role))
	require.False(t, repository.HasClaim(u.Claims, claims.Email), "claims absent from the latest login disappear")
	require.Equal(t, "Bob", u.FirstName)
	require.Equal(t, "Bob", u.Username, "synthesized name feeds the username")
	require.Len(t, u.LastLoginDatesByClient, 2)
}

func TestLoginSameClientKeepsOneEntry(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(t0)
	r := newReconciler(userRepo(), clk, audit.Nop{})

	var u *repository.User
	var err error
	for i := 0; i < 5; i++ {
		u, err = r.Login(ctx, "local", "bob", nil, "app1")
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}
	require.Len(t, u.LastLoginDatesByClient, 1)
	require.True(t, u.LastLoginDatesByClient["app1"].Equal(t0.Add(4*time.Minute)))
}

func TestLoginRequiresArguments(t *testing.T) {
	r := newReconciler(userRepo(), testclock.NewClock(t0), audit.Nop{})
	_, err := r.Login(context.Background(), "", "x", nil, "app1")
	require.ErrorIs(t, err, repository.ErrArgumentNull)
	_, err = r.Login(context.Background(), "ldap", "", nil, "app1")
	require.ErrorIs(t, err, repository.ErrArgumentNull)
}

// racingRepo simula otro login que escribe entre la lectura y la escritura.
type racingRepo struct {
	repository.UserRepository
	races int
	finds int
}

func (r *racingRepo) FindByExternalID(ctx context.Context, provider, externalID string) (*repository.User, bool, error) {
	u, ok, err := r.UserRepository.FindByExternalID(ctx, provider, externalID)
	r.finds++
	if err == nil && ok && r.races > 0 {
		r.races--
		other := *u
		other.Claims = []repository.Claim{repository.NewClaim(claims.Role, "Racer")}
		if err := r.UserRepository.Update(ctx, &other); err != nil {
			return nil, false, err
		}
	}
	return u, ok, err
}

func TestLoginRetriesWholeReconciliationOnConflict(t *testing.T) {
	ctx := context.Background()
	base := userRepo()
	clk := testclock.NewClock(t0)
	_, err := newReconciler(base, clk, audit.Nop{}).Login(ctx, "ldap", "carol", nil, "app1")
	require.NoError(t, err)

	racing := &racingRepo{UserRepository: base, races: 2}
	u, err := newReconciler(racing, clk, audit.Nop{}).Login(ctx, "ldap", "carol", []repository.Claim{
		repository.NewClaim(claims.Role, "Admin"),
	}, "app1")
	require.NoError(t, err)
	require.Equal(t, 3, racing.finds, "each retry must re-read the latest state")
	require.Equal(t, []string{"Admin"}, repository.ClaimValues(u.Claims, claims.Role))

	stored, _, err := base.FindByExternalID(ctx, "ldap", "carol")
	require.NoError(t, err)
	require.Equal(t, []string{"Admin"}, repository.ClaimValues(stored.Claims, claims.Role))
}

func TestLoginGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	base := userRepo()
	clk := testclock.NewClock(t0)
	_, err := newReconciler(base, clk, audit.Nop{}).Login(ctx, "ldap", "dave", nil, "app1")
	require.NoError(t, err)

	racing := &racingRepo{UserRepository: base, races: 100}
	_, err = newReconciler(racing, clk, audit.Nop{}).Login(ctx, "ldap", "dave", nil, "app1")
	require.True(t, repository.IsConflict(err), "got %v", err)
	require.Equal(t, 4, racing.finds)
}

type failingRepo struct{ repository.UserRepository }

func (failingRepo) FindByExternalID(context.Context, string, string) (*repository.User, bool, error) {
	return nil, false, repository.ErrCircuitOpen
}

func TestLoginDoesNotRetryOtherErrors(t *testing.T) {
	_, err := newReconciler(failingRepo{}, testclock.NewClock(t0), audit.Nop{}).
		Login(context.Background(), "ldap", "erin", nil, "app1")
	require.True(t, errors.Is(err, repository.ErrCircuitOpen), "got %v", err)
}

func TestFilterClaims(t *testing.T) {
	got := FilterClaims([]repository.Claim{
		repository.NewClaim(claims.DisplayName, "Legacy Name"),
		repository.NewClaim("http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress", "a@example.com"),
		repository.NewClaim("custom", "x"),
	})
	require.Equal(t, "Legacy Name", repository.ClaimValue(got, claims.Name))
	require.Equal(t, "a@example.com", repository.ClaimValue(got, claims.Email))
	require.Equal(t, "x", repository.ClaimValue(got, "custom"))
	require.Len(t, got, 3)

	// con Name presente el display name legacy no se reescribe
	got = FilterClaims([]repository.Claim{
		repository.NewClaim(claims.Name, "Std"),
		repository.NewClaim(claims.DisplayName, "Legacy"),
	})
	require.Equal(t, []string{"Std"}, repository.ClaimValues(got, claims.Name))

	cases := []struct {
		in   []repository.Claim
		want string
	}{
		{[]repository.Claim{repository.NewClaim(claims.GivenName, "Ann")}, "Ann"},
		{[]repository.Claim{repository.NewClaim(claims.FamilyName, "Lee")}, "Lee"},
		{[]repository.Claim{repository.NewClaim(claims.GivenName, "Ann"), repository.NewClaim(claims.FamilyName, "Lee")}, "Ann Lee"},
		{nil, ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, repository.ClaimValue(FilterClaims(tc.in), claims.Name))
	}
	require.False(t, repository.HasClaim(FilterClaims(nil), claims.Name))
}

func TestApplyNames(t *testing.T) {
	u := &repository.User{Claims: []repository.Claim{
		repository.NewClaim(claims.Name, "Alice Smith"),
		repository.NewClaim(claims.UPN, "alice@corp.local"),
		repository.NewClaim(claims.MiddleName, "Q"),
	}, FirstName: "stale"}
	ApplyNames(u)
	require.Equal(t, "alice@corp.local", u.Username)
	require.Equal(t, "Q", u.MiddleName)
	require.Empty(t, u.FirstName)
	require.Empty(t, u.LastName)
}
