// Package web serves sessions to browsers: a server-rendered page, form
// posts for every action, and region updates pushed over Server-Sent Events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/app"
	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/controller"
	"github.com/joescharf/campus/internal/ui"
)

// Config holds the HTTP surface settings.
type Config struct {
	Addr         string
	SessionTTL   time.Duration
	SecureCookie bool
	Heartbeat    time.Duration
}

// DefaultConfig listens on localhost:8080 and keeps idle sessions for 30 minutes.
var DefaultConfig = Config{
	Addr:       "localhost:8080",
	SessionTTL: 30 * time.Minute,
	Heartbeat:  Heartbeat,
}

// Server is the HTTP surface.
type Server struct {
	app *app.App
	cfg Config
	log *zap.Logger
	reg *registry
}

// NewServer builds a server over a. A nil clock means the real clock.
func NewServer(a *app.App, cfg Config, logger *zap.Logger, c clock.Clock) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.Real()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultConfig.SessionTTL
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = Heartbeat
	}
	return &Server{
		app: a,
		cfg: cfg,
		log: logger,
		reg: newRegistry(a, logger, c, cfg.SessionTTL, cfg.SecureCookie),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(s.log))
	r.Use(s.Recoverer)

	r.Get("/", s.page)
	r.Get("/events", s.events)
	r.Get("/healthz", s.health)

	r.Post("/auth/register", s.register)
	r.Post("/auth/login", s.login)
	r.Post("/auth/logout", s.logout)
	r.Post("/issues", s.reportIssue)
	r.Post("/issues/{id}/status", s.changeStatus)
	r.Post("/search", s.search)
	r.Post("/filter", s.filter)
	r.Post("/theme/toggle", s.toggleTheme)
	r.Post("/notifications/{id}/dismiss", s.dismiss)

	if static, err := ui.Handler(); err == nil {
		r.Handle("/static/*", http.StripPrefix("/static", static))
	} else {
		s.log.Error("static assets unavailable", zap.Error(err))
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down and closes
// every session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reapCtx, stopReap := context.WithCancel(ctx)
	defer stopReap()
	go s.reg.run(reapCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.reg.closeAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.reg.closeAll()
	return err
}

// Close closes every session.
func (s *Server) Close() { s.reg.closeAll() }

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	e := s.reg.get(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.app.Renderer().Page(w, e.sess.Model()); err != nil {
		s.log.Error("render page", zap.Error(err))
	}
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	e := s.reg.lookup(r)
	if e == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	e.surface.serveSSE(w, r, snapshotEvents(s.app.Renderer(), e.sess.Model()), s.cfg.Heartbeat)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// action runs fn for the request's session and answers the post. Results
// reach the page through the event stream, so background posts get 204 and
// plain form posts are redirected back to the page.
func (s *Server) action(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, e *entry) error) {
	e := s.reg.get(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	_ = e.sess.Guard(op, func() error { return fn(r.Context(), e) })
	e.prefs.WriteCookies(w)
	if r.Header.Get("X-Requested-With") == "fetch" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "register", func(ctx context.Context, e *entry) error {
		return e.sess.Controller.Register(ctx, r.PostForm.Get("email"), r.PostForm.Get("password"), r.PostForm.Get("role"))
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "login", func(ctx context.Context, e *entry) error {
		return e.sess.Controller.Login(ctx, r.PostForm.Get("email"), r.PostForm.Get("password"))
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "logout", func(ctx context.Context, e *entry) error {
		return e.sess.Controller.Logout(ctx)
	})
}

func (s *Server) reportIssue(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "report", func(ctx context.Context, e *entry) error {
		return e.sess.Controller.ReportIssue(ctx, controller.IssueForm{
			Title:       r.PostForm.Get("title"),
			Description: r.PostForm.Get("description"),
			ImageURL:    r.PostForm.Get("imageUrl"),
		})
	})
}

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.action(w, r, "status", func(ctx context.Context, e *entry) error {
		return e.sess.Controller.ChangeStatus(ctx, id, r.PostForm.Get("status"))
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "search", func(_ context.Context, e *entry) error {
		if r.PostForm.Get("clear") != "" {
			e.sess.ClearSearch()
			return nil
		}
		e.sess.Search(r.PostForm.Get("q"))
		return nil
	})
}

func (s *Server) filter(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "filter", func(_ context.Context, e *entry) error {
		// An unknown status is reported to the user by SetFilter.
		_ = e.sess.SetFilter(r.PostForm.Get("status"))
		return nil
	})
}

func (s *Server) toggleTheme(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "theme", func(_ context.Context, e *entry) error {
		e.sess.ToggleTheme()
		return nil
	})
}

func (s *Server) dismiss(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad notification id", http.StatusBadRequest)
		return
	}
	s.action(w, r, "dismiss", func(_ context.Context, e *entry) error {
		e.sess.Dismiss(id)
		return nil
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
