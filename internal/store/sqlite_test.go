package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/campus/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

// --- Accounts ---

func TestAccountCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.Account{Email: "ana@campus.edu", PasswordHash: []byte("hash")}
	require.NoError(t, s.CreateAccount(ctx, a))
	assert.NotEmpty(t, a.UID)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := s.GetAccount(ctx, a.UID)
	require.NoError(t, err)
	assert.Equal(t, "ana@campus.edu", got.Email)
	assert.Equal(t, []byte("hash"), got.PasswordHash)
	assert.False(t, got.Disabled)

	got, err = s.GetAccountByEmail(ctx, "ana@campus.edu")
	require.NoError(t, err)
	assert.Equal(t, a.UID, got.UID)

	require.NoError(t, s.SetAccountDisabled(ctx, a.UID, true))
	got, err = s.GetAccount(ctx, a.UID)
	require.NoError(t, err)
	assert.True(t, got.Disabled)
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAccount(ctx, &models.Account{Email: "dup@campus.edu", PasswordHash: []byte("x")}))
	err := s.CreateAccount(ctx, &models.Account{Email: "dup@campus.edu", PasswordHash: []byte("y")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAccount_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetAccountByEmail(ctx, "nobody@campus.edu")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.SetAccountDisabled(ctx, "missing", true), ErrNotFound)
}

// --- Profiles ---

func TestProfileCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Profile{UID: "u1", Email: "ana@campus.edu", Role: models.RoleStudent, IsActive: true}
	require.NoError(t, s.PutProfile(ctx, p))
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, got.Role)
	assert.True(t, got.IsActive)

	// Put replaces role but keeps the original creation time
	created := got.CreatedAt
	p.Role = models.RoleAdmin
	p.CreatedAt = time.Time{}
	require.NoError(t, s.PutProfile(ctx, p))
	got, err = s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.True(t, created.Equal(got.CreatedAt))

	require.NoError(t, s.SetProfileActive(ctx, "u1", false))
	got, err = s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestProfile_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetProfileActive(ctx, "missing", true), ErrNotFound)
}

// --- Issues ---

func TestIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := &models.Issue{
		Title:         "Broken light",
		Description:   "Hallway light flickers all night",
		ReporterID:    "u1",
		ReporterEmail: "ana@campus.edu",
	}
	require.NoError(t, s.CreateIssue(ctx, issue))
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, models.IssueStatusPending, issue.Status)
	assert.False(t, issue.CreatedAt.IsZero())

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Broken light", got.Title)
	assert.Equal(t, "", got.ImageURL)
	assert.Equal(t, "", got.UpdatedBy)

	require.NoError(t, s.UpdateIssueStatus(ctx, issue.ID, models.IssueStatusResolved, "admin1"))
	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, got.Status)
	assert.Equal(t, "admin1", got.UpdatedBy)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestIssue_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetIssue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateIssueStatus(ctx, "missing", models.IssueStatusResolved, "a"), ErrNotFound)
}

func TestListRecentIssues_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateIssue(ctx, &models.Issue{Title: title, Description: "description text"}))
		time.Sleep(2 * time.Millisecond)
	}

	issues, err := s.ListRecentIssues(ctx, 2)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "third", issues[0].Title)
	assert.Equal(t, "second", issues[1].Title)

	issues, err = s.ListRecentIssues(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, issues, 3)
}

func TestChanges_SignalsIssueWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, cancel := s.Changes().Subscribe()
	defer cancel()

	issue := &models.Issue{Title: "Leak", Description: "Water under the sink"}
	require.NoError(t, s.CreateIssue(ctx, issue))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal after create")
	}

	require.NoError(t, s.UpdateIssueStatus(ctx, issue.ID, models.IssueStatusInProgress, "a"))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal after update")
	}

	// Profile writes do not touch the issues feed
	require.NoError(t, s.PutProfile(ctx, &models.Profile{UID: "u", Email: "u@campus.edu", Role: models.RoleStudent, IsActive: true}))
	select {
	case <-ch:
		t.Fatal("unexpected signal for profile write")
	default:
	}
}
