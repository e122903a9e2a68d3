package app

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
	"github.com/joescharf/campus/internal/controller"
	"github.com/joescharf/campus/internal/gateway"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/store"
	"github.com/joescharf/campus/internal/theme"
	"github.com/joescharf/campus/internal/validate"
	"github.com/joescharf/campus/internal/view"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type testEnv struct {
	store *store.SQLiteStore
	app   *App
	clock *clock.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	fc := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	p := auth.NewProvider(s, auth.WithBcryptCost(bcrypt.MinCost))
	cfg := DefaultConfig
	cfg.Gateway = gateway.Config{PageSize: 100, RetryAttempts: 1, RetryBaseDelay: time.Millisecond}
	return &testEnv{store: s, app: New(cfg, s, p, nil, fc), clock: fc}
}

type noteLog struct {
	mu   sync.Mutex
	msgs []string
}

func (l *noteLog) record(n *notify.Notification) {
	if n == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, n.Message)
}

func (l *noteLog) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func (e *testEnv) session(t *testing.T, surface view.Surface) (*Session, *noteLog) {
	t.Helper()
	s := e.app.NewSession(SessionOptions{ID: t.Name(), Surface: surface, Prefs: theme.NewMemoryPrefs()})
	t.Cleanup(s.Close)
	notes := &noteLog{}
	s.Notes.OnChange(notes.record)
	require.NoError(t, s.Start(context.Background()))
	return s, notes
}

func TestSession_StartSetsReady(t *testing.T) {
	e := newTestEnv(t)
	s, _ := e.session(t, nil)

	m := s.Model()
	assert.Equal(t, view.PhaseReady, m.Status.Phase)
	assert.Equal(t, view.MsgReady, m.Status.Message)
	assert.True(t, m.ShowAuth)
	assert.Equal(t, "light", m.Theme)
}

func TestSession_StartFailure(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.store.Close())

	s := e.app.NewSession(SessionOptions{ID: "down"})
	t.Cleanup(s.Close)
	err := s.Start(context.Background())
	require.Error(t, err)

	m := s.Model()
	assert.Equal(t, view.PhaseError, m.Status.Phase)
	assert.Equal(t, validate.MsgInitFailed, m.Status.Message)
	require.NotNil(t, s.Notes.Current())
	assert.Equal(t, validate.MsgInitFailed, s.Notes.Current().Message)

	// Actions are refused while not initialized.
	err = s.Controller.Login(context.Background(), "a@campus.edu", "secret1")
	assert.Equal(t, gateway.KindNotInitialized, gateway.KindOf(err))
}

func TestSession_StudentFlow(t *testing.T) {
	e := newTestEnv(t)
	s, notes := e.session(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Controller.Register(ctx, "stu@campus.edu", "secret1", "student"))
	require.Eventually(t, func() bool { return s.Session().LoggedIn() }, waitFor, tick)
	assert.Equal(t, models.RoleStudent, s.Session().Role)
	require.Eventually(t, func() bool { return notes.has(MsgWelcomeStudent) }, waitFor, tick)
	assert.True(t, notes.has(controller.MsgRegistered))

	m := s.Model()
	assert.True(t, m.ShowReporting)
	assert.False(t, m.ShowIssues)

	require.NoError(t, s.Controller.ReportIssue(ctx, controller.IssueForm{
		Title:       "Broken projector",
		Description: "Room 101 projector shows no signal.",
	}))
	assert.Empty(t, s.Snapshot().Issues, "students hold no collection")

	issues, err := e.store.ListRecentIssues(ctx, 10)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "stu@campus.edu", issues[0].ReporterEmail)
}

func TestSession_AdminReceivesPushes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	admin, notes := e.session(t, nil)
	student, _ := e.session(t, nil)

	require.NoError(t, admin.Controller.Register(ctx, "boss@campus.edu", "secret1", "admin"))
	require.Eventually(t, func() bool { return admin.Session().Role == models.RoleAdmin }, waitFor, tick)
	require.Eventually(t, func() bool { return notes.has(MsgWelcomeAdmin) }, waitFor, tick)
	require.Eventually(t, func() bool { return !admin.Model().IssuesPending }, waitFor, tick)
	assert.True(t, admin.Model().Empty)

	require.NoError(t, student.Controller.Register(ctx, "stu@campus.edu", "secret1", "student"))
	require.Eventually(t, func() bool { return student.Session().LoggedIn() }, waitFor, tick)
	require.NoError(t, student.Controller.ReportIssue(ctx, controller.IssueForm{
		Title:       "Flooded hallway",
		Description: "Water on the floor near the library entrance.",
	}))

	require.Eventually(t, func() bool { return len(admin.Snapshot().Issues) == 1 }, waitFor, tick)
	id := admin.Snapshot().Issues[0].ID

	require.NoError(t, admin.Controller.ChangeStatus(ctx, id, "Resolved"))
	assert.Equal(t, models.IssueStatusResolved, admin.Snapshot().Issues[0].Status)
	assert.Equal(t, 1, admin.Model().Stats.Resolved)

	require.NoError(t, admin.SetFilter("Pending"))
	assert.Empty(t, admin.Snapshot().Filtered)
	require.NoError(t, admin.SetFilter(""))
	assert.Len(t, admin.Snapshot().Filtered, 1)
	assert.Error(t, admin.SetFilter("Closed"))

	require.NoError(t, admin.Controller.Logout(ctx))
	require.Eventually(t, func() bool { return !admin.Session().LoggedIn() }, waitFor, tick)
	assert.Empty(t, admin.Snapshot().Issues)

	feed := e.store.Changes().(*store.Broadcaster)
	assert.Eventually(t, func() bool { return feed.Len() == 0 }, waitFor, tick, "issues subscription detached")
}

func TestSession_SingleIssuesSubscription(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s, _ := e.session(t, nil)

	require.NoError(t, s.Controller.Register(ctx, "boss@campus.edu", "secret1", "admin"))
	require.Eventually(t, func() bool { return s.Session().Role == models.RoleAdmin }, waitFor, tick)

	require.NoError(t, s.Controller.Logout(ctx))
	require.Eventually(t, func() bool { return !s.Session().LoggedIn() }, waitFor, tick)
	require.NoError(t, s.Controller.Login(ctx, "boss@campus.edu", "secret1"))
	require.Eventually(t, func() bool { return s.Session().Role == models.RoleAdmin }, waitFor, tick)

	feed := e.store.Changes().(*store.Broadcaster)
	assert.Eventually(t, func() bool { return feed.Len() == 1 }, waitFor, tick)
}

func TestSession_DeactivatedProfile(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s, notes := e.session(t, nil)

	require.NoError(t, s.Controller.Register(ctx, "stu@campus.edu", "secret1", "student"))
	require.Eventually(t, func() bool { return s.Session().LoggedIn() }, waitFor, tick)
	uid := s.Session().User.UID
	require.NoError(t, s.Controller.Logout(ctx))
	require.Eventually(t, func() bool { return !s.Session().LoggedIn() }, waitFor, tick)

	require.NoError(t, e.store.SetProfileActive(ctx, uid, false))
	require.NoError(t, s.Controller.Login(ctx, "stu@campus.edu", "secret1"))

	require.Eventually(t, func() bool { return notes.has(validate.MsgDeactivated) }, waitFor, tick)
	assert.Eventually(t, func() bool { return !s.Session().LoggedIn() }, waitFor, tick)
}

func TestSession_SearchIsDebounced(t *testing.T) {
	e := newTestEnv(t)
	s, _ := e.session(t, nil)

	s.Search("lib")
	s.Search("library")
	e.clock.Advance(299 * time.Millisecond)
	assert.Empty(t, s.Snapshot().Search)

	e.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return s.Snapshot().Search == "library" }, waitFor, tick)

	s.Search("pending")
	s.ClearSearch()
	e.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return s.Snapshot().Search == "" }, waitFor, tick)
}

func TestSession_ToggleTheme(t *testing.T) {
	e := newTestEnv(t)
	prefs := theme.NewMemoryPrefs()
	s := e.app.NewSession(SessionOptions{ID: "theme", Prefs: prefs})
	t.Cleanup(s.Close)

	assert.Equal(t, theme.Dark, s.ToggleTheme())
	assert.Equal(t, theme.Dark, s.Theme())
	assert.Equal(t, "dark", s.Model().Theme)
	v, _ := prefs.Get(theme.Key)
	assert.Equal(t, "dark", v)
	assert.Equal(t, "Switched to dark mode", s.Notes.Current().Message)
}

func TestSession_Guard(t *testing.T) {
	e := newTestEnv(t)
	s, _ := e.session(t, nil)

	err := s.Guard("boom", func() error { panic("kaboom") })
	require.Error(t, err)
	assert.Equal(t, validate.MsgSystemError, s.Notes.Current().Message)

	s.Notes.Success("reset")
	err = s.Guard("plain", func() error { return errors.New("unexpected") })
	require.Error(t, err)
	assert.Equal(t, validate.MsgSystemError, s.Notes.Current().Message)

	s.Notes.Success("reset")
	err = s.Guard("handled", func() error { return &gateway.Error{Kind: gateway.KindValidation, Op: "x", Err: errors.New("bad")} })
	require.Error(t, err)
	assert.Equal(t, "reset", s.Notes.Current().Message)
}

func TestSession_LoopPanicNotifies(t *testing.T) {
	e := newTestEnv(t)
	s, _ := e.session(t, nil)

	s.loop.Post(func() { panic("in loop") })
	require.Eventually(t, func() bool {
		n := s.Notes.Current()
		return n != nil && n.Message == validate.MsgSystemError
	}, waitFor, tick)
}
