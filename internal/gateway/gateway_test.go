package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/campus/internal/auth"
	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/store"
)

type fixture struct {
	store    *store.SQLiteStore
	provider *auth.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gw.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return &fixture{store: s, provider: auth.NewProvider(s, auth.WithBcryptCost(bcrypt.MinCost))}
}

func (f *fixture) gateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(f.store, f.provider.NewClient(), nil, Config{PageSize: 100, RetryAttempts: 2, RetryBaseDelay: time.Millisecond})
	require.NoError(t, g.Open(context.Background()))
	return g
}

func TestNotInitialized(t *testing.T) {
	f := newFixture(t)
	g := New(f.store, f.provider.NewClient(), nil, DefaultConfig)
	ctx := context.Background()

	assert.False(t, g.Initialized())

	_, err := g.Login(ctx, "a@campus.edu", "secret1")
	assert.Equal(t, KindNotInitialized, KindOf(err))
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = g.CreateIssue(ctx, models.NewIssue{Title: "x"})
	assert.Equal(t, KindNotInitialized, KindOf(err))

	// Subscriptions are no-ops before Open
	called := false
	cancel := g.WatchIssues(0, func([]*models.Issue, error) { called = true })
	cancel()
	cancel = g.OnAuthStateChanged(func(*models.User, models.Role, error) { called = true })
	cancel()
	assert.False(t, called)
}

func TestOpen_BackendDown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	g := New(f.store, f.provider.NewClient(), nil, Config{RetryAttempts: 2, RetryBaseDelay: time.Millisecond})
	err := g.Open(context.Background())
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.False(t, g.Initialized())
}

func TestOpen_RetryWaitsOnClock(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	fc := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	g := New(f.store, f.provider.NewClient(), nil, Config{RetryAttempts: 2, RetryBaseDelay: time.Minute}, WithClock(fc))
	done := make(chan error, 1)
	go func() { done <- g.Open(context.Background()) }()

	require.Eventually(t, func() bool { return fc.Pending() == 1 }, time.Second, time.Millisecond)
	fc.Advance(time.Minute)

	select {
	case err := <-done:
		assert.Equal(t, KindNetwork, KindOf(err))
	case <-time.After(time.Second):
		t.Fatal("Open did not return after the clock advanced")
	}
	assert.False(t, g.Initialized())
}

func TestRegister_CreatesProfile(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	u, err := g.Register(ctx, "admin@campus.edu", "secret1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, u.UID, g.CurrentUser().UID)

	p, err := f.store.GetProfile(ctx, u.UID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)
	assert.True(t, p.IsActive)
	assert.Equal(t, "admin@campus.edu", p.Email)
}

func TestRegister_Errors(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	_, err := g.Register(ctx, "x@campus.edu", "secret1", models.Role("janitor"))
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = g.Register(ctx, "x@campus.edu", "secret1", models.RoleStudent)
	require.NoError(t, err)

	_, err = g.Register(ctx, "x@campus.edu", "secret1", models.RoleStudent)
	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, KindAuth, ge.Kind)
	assert.Equal(t, auth.CodeEmailAlreadyInUse, ge.Code)
	assert.Equal(t, "Registration", ge.Op)
	assert.NotEmpty(t, ge.Message())
}

// profileWriteFails rejects every profile write.
type profileWriteFails struct {
	store.Store
}

func (profileWriteFails) PutProfile(context.Context, *models.Profile) error {
	return errors.New("profile table is read-only")
}

func TestRegister_ProfileWriteFailureSignsNobodyIn(t *testing.T) {
	f := newFixture(t)
	g := New(profileWriteFails{f.store}, f.provider.NewClient(), nil, Config{PageSize: 100, RetryAttempts: 1})
	require.NoError(t, g.Open(context.Background()))
	ctx := context.Background()

	rec := newRecorder[authState]()
	cancel := g.OnAuthStateChanged(func(u *models.User, role models.Role, err error) {
		rec.add(authState{u, role, err})
	})
	defer cancel()
	rec.wait(t, 1)

	u, err := g.Register(ctx, "admin@campus.edu", "secret1", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, "Registration", errOp(err))
	assert.Nil(t, g.CurrentUser())

	// No default student profile is written behind the failed registration
	require.NotNil(t, u)
	_, err = f.store.GetProfile(ctx, u.UID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, rec.len(), "no auth delivery for the failed registration")
}

func errOp(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Op
	}
	return ""
}

func TestLogin_DistinctCodes(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	_, err := f.provider.CreateUser(ctx, "stu@campus.edu", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		code     auth.Code
	}{
		{"unknown user", "nobody@campus.edu", "secret1", auth.CodeUserNotFound},
		{"wrong password", "stu@campus.edu", "bad-pass", auth.CodeWrongPassword},
		{"invalid email", "stu-at-campus", "secret1", auth.CodeInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Login(ctx, tt.email, tt.password)
			var ge *Error
			require.True(t, errors.As(err, &ge))
			assert.Equal(t, KindAuth, ge.Kind)
			assert.Equal(t, tt.code, ge.Code)
		})
	}

	u, err := g.Login(ctx, "stu@campus.edu", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "stu@campus.edu", u.Email)

	require.NoError(t, g.Logout(ctx))
	assert.Nil(t, g.CurrentUser())
}

func TestCreateAndUpdateIssue(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	id, err := g.CreateIssue(ctx, models.NewIssue{
		Title:         "Broken chair",
		Description:   "Chair in lab 3 has a cracked leg",
		ReporterID:    "u1",
		ReporterEmail: "stu@campus.edu",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	issue, err := g.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusPending, issue.Status)

	require.NoError(t, g.UpdateIssueStatus(ctx, id, models.IssueStatusResolved, "admin1"))
	issue, err = g.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, issue.Status)
	assert.Equal(t, "admin1", issue.UpdatedBy)

	err = g.UpdateIssueStatus(ctx, "gone", models.IssueStatusResolved, "admin1")
	assert.Equal(t, KindNotFound, KindOf(err))

	err = g.UpdateIssueStatus(ctx, id, models.IssueStatus("Closed"), "admin1")
	assert.Equal(t, KindValidation, KindOf(err))
}

// recorder collects callback deliveries for assertions from the test goroutine.
type recorder[T any] struct {
	mu   sync.Mutex
	got  []T
	wake chan struct{}
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{wake: make(chan struct{}, 64)}
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
	r.wake <- struct{}{}
}

func (r *recorder[T]) wait(t *testing.T, n int) []T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		if len(r.got) >= n {
			out := append([]T(nil), r.got...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.wake:
		case <-deadline:
			t.Fatalf("timed out waiting for %d deliveries", n)
		}
	}
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestWatchIssues_SnapshotsAndCancel(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	_, err := g.CreateIssue(ctx, models.NewIssue{Title: "First", Description: "first description"})
	require.NoError(t, err)

	rec := newRecorder[[]*models.Issue]()
	cancel := g.WatchIssues(2, func(issues []*models.Issue, err error) {
		assert.NoError(t, err)
		rec.add(issues)
	})

	snaps := rec.wait(t, 1)
	require.Len(t, snaps[0], 1)
	assert.Equal(t, "First", snaps[0][0].Title)

	time.Sleep(2 * time.Millisecond)
	_, err = g.CreateIssue(ctx, models.NewIssue{Title: "Second", Description: "second description"})
	require.NoError(t, err)

	snaps = rec.wait(t, 2)
	last := snaps[len(snaps)-1]
	require.Len(t, last, 2)
	assert.Equal(t, "Second", last[0].Title, "newest first")

	cancel()
	cancel()
	n := rec.len()

	_, err = g.CreateIssue(ctx, models.NewIssue{Title: "Third", Description: "third description"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, rec.len(), "no callbacks after cancel")
	assert.Equal(t, 0, f.store.Changes().(*store.Broadcaster).Len())
}

func TestWatchIssues_ReadFailureDeliversEmpty(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	require.NoError(t, f.store.Close())

	type delivery struct {
		issues []*models.Issue
		err    error
	}
	rec := newRecorder[delivery]()
	cancel := g.WatchIssues(0, func(issues []*models.Issue, err error) {
		rec.add(delivery{issues, err})
	})
	defer cancel()

	got := rec.wait(t, 1)
	assert.NotNil(t, got[0].issues)
	assert.Empty(t, got[0].issues)
	assert.Equal(t, KindNetwork, KindOf(got[0].err))
}

type authState struct {
	user *models.User
	role models.Role
	err  error
}

func TestOnAuthStateChanged_ResolvesRole(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	rec := newRecorder[authState]()
	cancel := g.OnAuthStateChanged(func(u *models.User, role models.Role, err error) {
		rec.add(authState{u, role, err})
	})
	defer cancel()

	got := rec.wait(t, 1)
	assert.Nil(t, got[0].user, "signed out initially")

	_, err := g.Register(ctx, "boss@campus.edu", "secret1", models.RoleAdmin)
	require.NoError(t, err)

	got = rec.wait(t, 2)
	require.NotNil(t, got[1].user)
	assert.Equal(t, models.RoleAdmin, got[1].role)
	assert.NoError(t, got[1].err)
}

func TestOnAuthStateChanged_MissingProfileBecomesStudent(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	// Account without a profile document
	u, err := f.provider.CreateUser(ctx, "new@campus.edu", "secret1")
	require.NoError(t, err)

	rec := newRecorder[authState]()
	cancel := g.OnAuthStateChanged(func(u *models.User, role models.Role, err error) {
		rec.add(authState{u, role, err})
	})
	defer cancel()

	_, err = g.Login(ctx, "new@campus.edu", "secret1")
	require.NoError(t, err)

	got := rec.wait(t, 2)
	assert.Equal(t, models.RoleStudent, got[1].role)

	p, err := f.store.GetProfile(ctx, u.UID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, p.Role)
	assert.True(t, p.IsActive)
}

func TestOnAuthStateChanged_InactiveProfileSignsOut(t *testing.T) {
	f := newFixture(t)
	g := f.gateway(t)
	ctx := context.Background()

	u, err := f.provider.CreateUser(ctx, "gone@campus.edu", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.store.PutProfile(ctx, &models.Profile{UID: u.UID, Email: u.Email, Role: models.RoleStudent, IsActive: false}))

	rec := newRecorder[authState]()
	cancel := g.OnAuthStateChanged(func(u *models.User, role models.Role, err error) {
		rec.add(authState{u, role, err})
	})
	defer cancel()

	_, err = g.Login(ctx, "gone@campus.edu", "secret1")
	require.NoError(t, err)

	got := rec.wait(t, 2)
	assert.Nil(t, got[1].user)
	assert.ErrorIs(t, got[1].err, ErrDeactivated)

	assert.Eventually(t, func() bool { return g.CurrentUser() == nil }, time.Second, 5*time.Millisecond)

	// The follow-up signed-out transition is not delivered again
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, rec.len())
}
