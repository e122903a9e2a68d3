package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/app"
	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/theme"
)

// SessionCookie names the cookie that carries the session id.
const SessionCookie = "campus_session"

type entry struct {
	sess     *app.Session
	surface  *surface
	prefs    *theme.CookiePrefs
	lastSeen time.Time
}

// registry maps session cookies to live sessions.
type registry struct {
	app    *app.App
	log    *zap.Logger
	clock  clock.Clock
	ttl    time.Duration
	secure bool

	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
}

func newRegistry(a *app.App, logger *zap.Logger, c clock.Clock, ttl time.Duration, secure bool) *registry {
	return &registry{
		app:      a,
		log:      logger,
		clock:    c,
		ttl:      ttl,
		secure:   secure,
		sessions: make(map[string]*entry),
	}
}

// lookup returns the request's session without creating one.
func (g *registry) lookup(r *http.Request) *entry {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.sessions[c.Value]
	if e != nil {
		e.lastSeen = g.clock.Now()
	}
	return e
}

// get returns the request's session, creating and starting one (and setting
// the cookie) when the request has none.
func (g *registry) get(w http.ResponseWriter, r *http.Request) *entry {
	if e := g.lookup(r); e != nil {
		return e
	}

	id := uuid.NewString()
	prefs := theme.NewCookiePrefs(r, 365*24*time.Hour, theme.Key)
	surf := newSurface()
	sess := g.app.NewSession(app.SessionOptions{ID: id, Surface: surf, Prefs: prefs})
	e := &entry{sess: sess, surface: surf, prefs: prefs, lastSeen: g.clock.Now()}

	g.mu.Lock()
	g.sessions[id] = e
	g.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := sess.Start(context.Background()); err != nil {
			g.log.Warn("session start failed", zap.String("session", id), zap.Error(err))
		}
	}()
	g.log.Debug("session created", zap.String("session", id))
	return e
}

// reap closes sessions idle for longer than the TTL with no open stream.
func (g *registry) reap() int {
	now := g.clock.Now()
	var stale []*entry
	g.mu.Lock()
	for id, e := range g.sessions {
		if now.Sub(e.lastSeen) > g.ttl && e.surface.len() == 0 {
			stale = append(stale, e)
			delete(g.sessions, id)
		}
	}
	g.mu.Unlock()

	for _, e := range stale {
		e.sess.Close()
	}
	if len(stale) > 0 {
		g.log.Info("reaped idle sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// run reaps periodically until ctx is done.
func (g *registry) run(ctx context.Context) {
	interval := g.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.reap()
		}
	}
}

func (g *registry) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// closeAll waits for pending starts and closes every session.
func (g *registry) closeAll() {
	g.wg.Wait()
	g.mu.Lock()
	all := make([]*entry, 0, len(g.sessions))
	for id, e := range g.sessions {
		all = append(all, e)
		delete(g.sessions, id)
	}
	g.mu.Unlock()
	for _, e := range all {
		e.sess.Close()
	}
}
