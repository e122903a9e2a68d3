package view

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/state"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func TestTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "Just now"},
		{59 * time.Second, "Just now"},
		{-time.Hour, "Just now"},
		{time.Minute, "1m ago"},
		{59*time.Minute + 59*time.Second, "59m ago"},
		{time.Hour, "1h ago"},
		{23 * time.Hour, "23h ago"},
		{24 * time.Hour, "1d ago"},
		{10 * 24 * time.Hour, "10d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeAgo(now.Add(-tt.ago), now), tt.ago.String())
	}
	assert.Equal(t, "Just now", TimeAgo(time.Time{}, now))
}

func TestComputeStats_UsesFullCollection(t *testing.T) {
	issues := []models.Issue{
		{ID: "1", Status: models.IssueStatusPending},
		{ID: "2", Status: models.IssueStatusInProgress},
		{ID: "3", Status: models.IssueStatusResolved},
		{ID: "4", Status: models.IssueStatusResolved},
	}
	m := Project(Input{State: state.Snapshot{Issues: issues, Filtered: issues[:1]}, Now: now})
	assert.Equal(t, Stats{Total: 4, Pending: 1, InProgress: 1, Resolved: 2}, m.Stats)
	assert.Len(t, m.Issues, 1)
}

func adminSession() models.Session {
	return models.Session{User: &models.User{UID: "a1", Email: "boss@campus.edu"}, Role: models.RoleAdmin}
}

func TestProject_Visibility(t *testing.T) {
	m := Project(Input{Now: now})
	assert.True(t, m.ShowAuth)
	assert.False(t, m.ShowReporting)
	assert.False(t, m.ShowIssues)

	m = Project(Input{State: state.Snapshot{Session: models.Session{User: &models.User{Email: "s@campus.edu"}, Role: models.RoleStudent}}, Now: now})
	assert.False(t, m.ShowAuth)
	assert.True(t, m.ShowReporting)
	assert.False(t, m.ShowIssues)
	assert.Equal(t, "Student", m.UserRole)

	m = Project(Input{State: state.Snapshot{Session: adminSession()}, Now: now})
	assert.True(t, m.ShowIssues)
	assert.Equal(t, "Admin", m.UserRole)
	assert.Equal(t, "boss@campus.edu", m.UserEmail)
	assert.True(t, m.Empty)
}

func TestProject_Cards(t *testing.T) {
	issues := []models.Issue{
		{ID: "1", Title: "Lamp", Status: models.IssueStatusInProgress, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "2", Title: "Door", ReporterEmail: "r@campus.edu"},
	}
	m := Project(Input{State: state.Snapshot{Session: adminSession(), Issues: issues, Filtered: issues}, Now: now})
	require.Len(t, m.Issues, 2)

	c := m.Issues[0]
	assert.Equal(t, "2h ago", c.TimeAgo)
	assert.Equal(t, Anonymous, c.Reporter)
	assert.Equal(t, "status-in-progress", c.StatusClass)
	require.Len(t, c.Actions, 3)
	assert.True(t, c.Actions[0].Disabled, "current status is disabled")
	assert.False(t, c.Actions[1].Disabled)
	assert.Equal(t, "Reopen", c.Actions[2].Label)

	c = m.Issues[1]
	assert.Equal(t, "Pending", c.Status, "missing status reads Pending")
	assert.Equal(t, "r@campus.edu", c.Reporter)
	assert.True(t, c.Actions[2].Disabled)

	// Students get no actions
	student := models.Session{User: &models.User{UID: "s"}, Role: models.RoleStudent}
	m = Project(Input{State: state.Snapshot{Session: student, Issues: issues, Filtered: issues}, Now: now})
	assert.Empty(t, m.Issues[0].Actions)
}

func TestProject_PendingAndBusy(t *testing.T) {
	m := Project(Input{State: state.Snapshot{Session: adminSession(), Loading: true}, IssuesPending: true, Now: now})
	assert.True(t, m.IssuesPending)
	assert.False(t, m.Empty)
	assert.True(t, m.Busy)
	assert.Equal(t, BusyLabel, m.BusyLabel)
}

func TestProject_FilterOptions(t *testing.T) {
	m := Project(Input{State: state.Snapshot{Filter: models.IssueStatusResolved}, Now: now})
	require.Len(t, m.Filters, 4)
	assert.False(t, m.Filters[0].Selected)
	assert.True(t, m.Filters[3].Selected)
}

func TestRenderer_EscapesUserText(t *testing.T) {
	r := MustRenderer()
	issues := []models.Issue{{
		ID:            "x1",
		Title:         `<img src=x onerror="alert(1)">`,
		Description:   "<b>bold</b> & more text",
		ImageURL:      "javascript:alert(1)",
		ReporterEmail: "<script>@campus.edu",
	}}
	m := Project(Input{State: state.Snapshot{Session: adminSession(), Issues: issues, Filtered: issues}, Now: now})

	html, err := r.Region(RegionIssueList, m)
	require.NoError(t, err)
	assert.NotContains(t, html, "<img src=x")
	assert.Contains(t, html, "&lt;img src=x")
	assert.Contains(t, html, "&lt;b&gt;bold&lt;/b&gt; &amp; more text")
	assert.NotContains(t, html, "javascript:alert")
	assert.NotContains(t, html, "<script>@")
	assert.Contains(t, html, `action="/issues/x1/status"`)
}

func TestRenderer_Page(t *testing.T) {
	r := MustRenderer()
	var sb strings.Builder
	m := Project(Input{Theme: "dark", Status: SystemStatus{Phase: PhaseReady, Message: MsgReady}, Now: now})
	require.NoError(t, r.Page(&sb, m))

	page := sb.String()
	assert.Contains(t, page, `data-theme="dark"`)
	assert.Contains(t, page, MsgReady)
	assert.Contains(t, page, `id="authSection"`)
	assert.NotContains(t, page, `id="reportingSection"`)
}

func TestRenderer_Placeholders(t *testing.T) {
	r := MustRenderer()

	html, err := r.Region(RegionIssueList, Project(Input{State: state.Snapshot{Session: adminSession()}, IssuesPending: true, Now: now}))
	require.NoError(t, err)
	assert.Contains(t, html, LoadingIssues)

	html, err = r.Region(RegionIssueList, Project(Input{State: state.Snapshot{Session: adminSession()}, Now: now}))
	require.NoError(t, err)
	assert.Contains(t, html, EmptyIssues)
}

type recordingSurface struct {
	mu       sync.Mutex
	replaced map[Region]string
	order    []Region
	busy     []bool
	theme    string
	resets   []string
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{replaced: make(map[Region]string)}
}

func (s *recordingSurface) Replace(region Region, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced[region] = html
	s.order = append(s.order, region)
}

func (s *recordingSurface) SetBusy(busy bool, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = append(s.busy, busy)
}

func (s *recordingSurface) SetTheme(theme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
}

func (s *recordingSurface) ResetForm(form string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, form)
}

func newTestBinder(t *testing.T) (*Binder, *state.Store, *notify.Center, *recordingSurface, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(now)
	st := state.New(nil)
	notes := notify.New(fc, 0)
	surf := newRecordingSurface()
	b := NewBinder(BinderDeps{Store: st, Notes: notes, Renderer: MustRenderer(), Surface: surf, Clock: fc, Theme: "light"})
	b.Bind()
	t.Cleanup(b.Close)
	return b, st, notes, surf, fc
}

func TestBinder_RoutesEvents(t *testing.T) {
	_, st, _, surf, _ := newTestBinder(t)

	st.SetSession(adminSession())
	assert.Equal(t, []Region{RegionHeader, RegionForms, RegionIssues}, surf.order)
	assert.Contains(t, surf.replaced[RegionHeader], "boss@campus.edu")

	surf.order = nil
	st.SetIssues([]*models.Issue{{ID: "1", Title: "Leak", Description: "water", Status: models.IssueStatusPending}})
	assert.Equal(t, []Region{RegionStats, RegionIssueList}, surf.order)
	assert.Contains(t, surf.replaced[RegionIssueList], "Leak")

	st.SetLoading(true)
	st.SetLoading(false)
	assert.Equal(t, []bool{true, false}, surf.busy)
}

func TestBinder_NotificationAndStatus(t *testing.T) {
	b, _, notes, surf, fc := newTestBinder(t)

	notes.Error("Something <bad> happened")
	assert.Contains(t, surf.replaced[RegionNotification], "Something &lt;bad&gt; happened")

	fc.Advance(notify.DefaultDuration)
	assert.NotContains(t, surf.replaced[RegionNotification], "Something")

	b.SetStatus(SystemStatus{Phase: PhaseError, Message: "down"})
	assert.Contains(t, surf.replaced[RegionStatus], "system-status error")
	assert.Equal(t, PhaseError, b.Status().Phase)
}

func TestBinder_ThemeAndForms(t *testing.T) {
	b, st, _, surf, _ := newTestBinder(t)

	b.SetTheme("dark")
	assert.Equal(t, "dark", surf.theme)
	assert.Equal(t, "dark", b.Model().Theme)

	b.ClearAuth()
	b.ClearIssue()
	assert.Equal(t, []string{FormAuth, FormIssue}, surf.resets)

	st.SetSession(adminSession())
	b.SetIssuesPending(true)
	assert.Contains(t, surf.replaced[RegionIssueList], LoadingIssues)
	b.SetIssuesPending(false)
	assert.Contains(t, surf.replaced[RegionIssueList], EmptyIssues)
}

func TestBinder_CloseDetaches(t *testing.T) {
	b, st, _, surf, _ := newTestBinder(t)
	b.Close()
	st.SetLoading(true)
	assert.Empty(t, surf.busy)
}
