package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/auth"
	"github.com/joescharf/campus/internal/controller"
	"github.com/joescharf/campus/internal/debounce"
	"github.com/joescharf/campus/internal/gateway"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/state"
	"github.com/joescharf/campus/internal/theme"
	"github.com/joescharf/campus/internal/validate"
	"github.com/joescharf/campus/internal/view"
)

// Welcome messages shown after each sign-in.
const (
	MsgWelcomeStudent = "Welcome, Student! You can report campus issues."
	MsgWelcomeAdmin   = "Welcome, Admin! You can manage all reported issues."
)

// SessionOptions configures NewSession.
type SessionOptions struct {
	ID      string
	Surface view.Surface
	Prefs   theme.Prefs
}

// Session is one client. Its exported methods may be called from any
// goroutine except the session's own loop.
type Session struct {
	ID         string
	Notes      *notify.Center
	Controller *controller.Controller

	app    *App
	log    *zap.Logger
	loop   *Loop
	state  *state.Store
	client *auth.Client
	gw     *gateway.Gateway
	binder *view.Binder
	theme  *theme.Manager
	search *debounce.Debouncer[string]

	// Loop-confined.
	authCancel   func()
	issuesCancel func()
	issuesGen    uint64
}

// NewSession wires a session. It does nothing visible until Start.
func (a *App) NewSession(opts SessionOptions) *Session {
	s := &Session{ID: opts.ID, app: a}
	s.log = a.log.With(zap.String("session", opts.ID))
	s.Notes = notify.New(a.clock, a.cfg.NotificationTimeout)
	s.loop = NewLoop(s.log, func(r any) { s.Recover("loop", r) })
	s.state = state.New(s.log)
	s.client = a.provider.NewClient()
	s.gw = gateway.New(a.store, s.client, s.log, a.cfg.Gateway, gateway.WithClock(a.clock))

	s.theme = theme.NewManager(opts.Prefs, s.Notes, func(t theme.Theme) { s.binder.SetTheme(string(t)) }, s.log)
	surface := opts.Surface
	if surface == nil {
		surface = nopSurface{}
	}
	s.binder = view.NewBinder(view.BinderDeps{
		Store:    s.state,
		Notes:    s.Notes,
		Renderer: a.renderer,
		Surface:  surface,
		Post:     func(fn func()) { s.loop.Post(fn) },
		Clock:    a.clock,
		Logger:   s.log,
		Theme:    string(s.theme.Current()),
	})

	s.Controller = controller.New(controller.Deps{
		Gateway: s.gw,
		Store:   s.state,
		Run:     s.loop.Run,
		Notes:   s.Notes,
		Forms:   s.binder,
		Limits:  a.cfg.Limits,
		Clock:   a.clock,
		Logger:  s.log,
	})
	s.search = debounce.New(a.clock, a.cfg.SearchDebounce, func(term string) {
		s.loop.Post(func() { s.state.SetSearchTerm(term) })
	})

	s.loop.Run(s.binder.Bind)
	return s
}

// Start shows the initializing banner, waits for the backend and attaches
// the auth listener. On failure the banner and a notification report it.
func (s *Session) Start(ctx context.Context) error {
	s.loop.Run(func() {
		s.binder.SetStatus(view.SystemStatus{Phase: view.PhaseInitializing, Message: view.MsgInitializing})
	})
	if err := s.gw.Open(ctx); err != nil {
		s.log.Error("backend initialization failed", zap.Error(err))
		s.loop.Run(func() {
			s.binder.SetStatus(view.SystemStatus{Phase: view.PhaseError, Message: validate.MsgInitFailed})
			s.Notes.Error(validate.MsgInitFailed)
		})
		return fmt.Errorf("start session: %w", err)
	}
	s.loop.Run(func() {
		s.binder.SetStatus(view.SystemStatus{Phase: view.PhaseReady, Message: view.MsgReady})
		if s.authCancel == nil {
			s.authCancel = s.gw.OnAuthStateChanged(s.onAuth)
		}
	})
	return nil
}

// onAuth runs on the gateway's worker; it only hands off to the loop.
func (s *Session) onAuth(user *models.User, role models.Role, err error) {
	s.loop.Post(func() { s.applyAuth(user, role, err) })
}

func (s *Session) applyAuth(user *models.User, role models.Role, err error) {
	if err != nil {
		if errors.Is(err, gateway.ErrDeactivated) {
			s.Notes.Error(validate.MsgDeactivated)
		} else {
			s.Notes.Error(validate.MsgProfileLoadFailed)
		}
		user = nil
	}
	if user == nil {
		s.detachIssues()
		s.state.SetSession(models.Session{})
		s.state.SetIssues(nil)
		return
	}

	s.state.SetSession(models.Session{User: user, Role: role})
	if role == models.RoleAdmin {
		s.attachIssues()
	} else {
		s.detachIssues()
		s.state.SetIssues(nil)
	}

	switch role {
	case models.RoleStudent:
		s.Notes.Info(MsgWelcomeStudent)
	case models.RoleAdmin:
		s.Notes.Info(MsgWelcomeAdmin)
	}
}

// attachIssues replaces any active issues subscription. Snapshots from a
// detached subscription that were already posted are dropped by generation.
func (s *Session) attachIssues() {
	s.detachIssues()
	s.issuesGen++
	gen := s.issuesGen
	s.binder.SetIssuesPending(true)
	s.issuesCancel = s.gw.WatchIssues(0, func(issues []*models.Issue, err error) {
		s.loop.Post(func() {
			if gen != s.issuesGen || s.issuesCancel == nil {
				return
			}
			s.binder.SetIssuesPending(false)
			if err != nil {
				s.Notes.Error(validate.MsgIssuesLoadFailed)
			}
			s.state.SetIssues(issues)
		})
	})
}

func (s *Session) detachIssues() {
	if s.issuesCancel == nil {
		return
	}
	s.issuesCancel()
	s.issuesCancel = nil
	s.issuesGen++
	s.binder.SetIssuesPending(false)
}

// Search sets the search term after the debounce delay.
func (s *Session) Search(term string) { s.search.Trigger(term) }

// ClearSearch drops any pending search and clears the term now.
func (s *Session) ClearSearch() {
	s.search.Stop()
	s.loop.Post(func() { s.state.SetSearchTerm("") })
}

// SetFilter sets the status filter; an empty value shows every status.
func (s *Session) SetFilter(v string) error {
	var status models.IssueStatus
	if v != "" {
		st, err := models.ParseIssueStatus(v)
		if err != nil {
			s.Notes.Error(validate.MsgInvalidStatus)
			return err
		}
		status = st
	}
	s.loop.Run(func() { s.state.SetFilter(status) })
	return nil
}

// ToggleTheme flips the theme and returns the new one.
func (s *Session) ToggleTheme() theme.Theme {
	var t theme.Theme
	s.loop.Run(func() { t = s.theme.Toggle() })
	return t
}

// Theme returns the active theme.
func (s *Session) Theme() theme.Theme {
	var t theme.Theme
	s.loop.Run(func() { t = s.theme.Current() })
	return t
}

// Dismiss hides the notification with the given id.
func (s *Session) Dismiss(id uint64) { s.Notes.Dismiss(id) }

// Model returns the current view model.
func (s *Session) Model() view.Model {
	var m view.Model
	s.loop.Run(func() { m = s.binder.Model() })
	return m
}

// Snapshot returns a copy of the state.
func (s *Session) Snapshot() state.Snapshot {
	var snap state.Snapshot
	s.loop.Run(func() { snap = s.state.Snapshot() })
	return snap
}

// Session returns the signed-in session.
func (s *Session) Session() models.Session {
	var sess models.Session
	s.loop.Run(func() { sess = s.state.Session() })
	return sess
}

// Recover is the last-resort handler: it logs r and shows the system-error
// notification. Callers pass the value of recover().
func (s *Session) Recover(op string, r any) {
	if r == nil {
		return
	}
	s.log.Error("unhandled failure", zap.String("op", op), zap.Any("panic", r))
	s.Notes.Error(validate.MsgSystemError)
}

// Guard runs an action, turning a panic or an error the action did not
// already report into the system-error notification.
func (s *Session) Guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Recover(op, r)
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
	}()
	err = fn()
	var gwErr *gateway.Error
	if err != nil && !errors.As(err, &gwErr) {
		s.log.Error("unhandled action error", zap.String("op", op), zap.Error(err))
		s.Notes.Error(validate.MsgSystemError)
	}
	return err
}

// Close detaches every subscription and stops the loop.
func (s *Session) Close() {
	s.search.Stop()
	s.loop.Run(func() {
		s.detachIssues()
		if s.authCancel != nil {
			s.authCancel()
			s.authCancel = nil
		}
		s.binder.Close()
	})
	s.loop.Close()
}

type nopSurface struct{}

func (nopSurface) Replace(view.Region, string) {}
func (nopSurface) SetBusy(bool, string)        {}
func (nopSurface) SetTheme(string)             {}
func (nopSurface) ResetForm(string)            {}
