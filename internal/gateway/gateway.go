// Package gateway is the client's only path to the backend: account
// registration and sign-in through the auth provider, issue reads and writes
// through the document store, and the two push subscriptions (auth state and
// the recent-issues collection).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/auth"
	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/retry"
	"github.com/joescharf/campus/internal/store"
)

// Config holds the gateway's tunables.
type Config struct {
	PageSize       int
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// DefaultConfig matches the client defaults: 100 issues per snapshot, three
// connection attempts starting at one second.
var DefaultConfig = Config{
	PageSize:       100,
	RetryAttempts:  3,
	RetryBaseDelay: time.Second,
}

// Gateway is per session: it shares the backend store and auth provider with
// every other session but owns its own auth client.
type Gateway struct {
	store  store.Store
	client *auth.Client
	log    *zap.Logger
	cfg    Config
	clock  clock.Clock

	ready atomic.Bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock sets the clock used to time Open's retries.
func WithClock(c clock.Clock) Option {
	return func(g *Gateway) {
		if c != nil {
			g.clock = c
		}
	}
}

func New(s store.Store, client *auth.Client, logger *zap.Logger, cfg Config, opts ...Option) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig.PageSize
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultConfig.RetryAttempts
	}
	g := &Gateway{store: s, client: client, log: logger, cfg: cfg, clock: clock.Real()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open waits for the backend to answer, retrying with backoff, and marks
// the gateway initialized.
func (g *Gateway) Open(ctx context.Context) error {
	err := retry.Do(ctx, g.cfg.RetryAttempts, g.cfg.RetryBaseDelay, func(ctx context.Context) error {
		if err := g.store.Ping(ctx); err != nil {
			g.log.Warn("backend ping failed", zap.Error(err))
			return err
		}
		return nil
	}, retry.WithClock(g.clock))
	if err != nil {
		return &Error{Kind: KindNetwork, Op: "Open", Err: err}
	}
	g.ready.Store(true)
	return nil
}

// Initialized reports whether Open has succeeded.
func (g *Gateway) Initialized() bool {
	return g.ready.Load()
}

func (g *Gateway) checkReady(op string) error {
	if !g.ready.Load() {
		return &Error{Kind: KindNotInitialized, Op: op, Err: ErrNotInitialized}
	}
	return nil
}

// CurrentUser returns the signed-in identity, or nil.
func (g *Gateway) CurrentUser() *models.User {
	return g.client.CurrentUser()
}

// Register creates the account and its profile, then signs the new user in.
// If the profile cannot be written the account is left behind but nobody is
// signed in, so the auth resolver never gives it a default student profile.
func (g *Gateway) Register(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	const op = "Registration"
	if err := g.checkReady(op); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf("unknown role %q", role)}
	}

	u, err := g.client.CreateUser(ctx, email, password, func(ctx context.Context, u *models.User) error {
		return g.store.PutProfile(ctx, &models.Profile{
			UID:      u.UID,
			Email:    u.Email,
			Role:     role,
			IsActive: true,
		})
	})
	if err != nil {
		g.log.Error("register failed", zap.Error(err))
		return u, classify(op, err)
	}
	g.log.Info("user registered", zap.String("uid", u.UID), zap.String("role", string(role)))
	return u, nil
}

// Login signs in with email and password.
func (g *Gateway) Login(ctx context.Context, email, password string) (*models.User, error) {
	const op = "Login"
	if err := g.checkReady(op); err != nil {
		return nil, err
	}
	u, err := g.client.SignIn(ctx, email, password)
	if err != nil {
		g.log.Info("login failed", zap.String("code", string(auth.CodeOf(err))))
		return nil, classify(op, err)
	}
	return u, nil
}

// Logout clears the session.
func (g *Gateway) Logout(ctx context.Context) error {
	const op = "Logout"
	if err := g.checkReady(op); err != nil {
		return err
	}
	return classify(op, g.client.SignOut(ctx))
}

// CreateIssue stores a new issue and returns the id the backend assigned.
func (g *Gateway) CreateIssue(ctx context.Context, in models.NewIssue) (string, error) {
	const op = "CreateIssue"
	if err := g.checkReady(op); err != nil {
		return "", err
	}
	status := in.Status
	if status == "" {
		status = models.IssueStatusPending
	}
	issue := &models.Issue{
		Title:         in.Title,
		Description:   in.Description,
		ImageURL:      in.ImageURL,
		Status:        status,
		ReporterID:    in.ReporterID,
		ReporterEmail: in.ReporterEmail,
	}
	if err := g.store.CreateIssue(ctx, issue); err != nil {
		g.log.Error("create issue failed", zap.Error(err))
		return "", classify(op, err)
	}
	return issue.ID, nil
}

// UpdateIssueStatus records a status change by actorID. It fails with
// KindNotFound if the issue no longer exists.
func (g *Gateway) UpdateIssueStatus(ctx context.Context, id string, status models.IssueStatus, actorID string) error {
	const op = "UpdateIssueStatus"
	if err := g.checkReady(op); err != nil {
		return err
	}
	if !status.Valid() {
		return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf("unknown status %q", status)}
	}
	if err := g.store.UpdateIssueStatus(ctx, id, status, actorID); err != nil {
		g.log.Error("update issue status failed", zap.String("issue", id), zap.Error(err))
		return classify(op, err)
	}
	return nil
}

// GetIssue reads one issue.
func (g *Gateway) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	const op = "GetIssue"
	if err := g.checkReady(op); err != nil {
		return nil, err
	}
	issue, err := g.store.GetIssue(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}
	return issue, nil
}

// AuthStateFunc receives every resolved auth transition. user is nil when
// signed out; err is set when the transition was rejected (deactivated
// profile) or the profile could not be loaded, in which case user is nil.
type AuthStateFunc func(user *models.User, role models.Role, err error)

// OnAuthStateChanged subscribes to auth transitions, resolving each signed-in
// user's profile first. An inactive profile signs the user out and reports
// ErrDeactivated; a missing profile is created with the student role.
// Before Open it returns a no-op cancel. cb must not call the returned
// cancel func synchronously.
func (g *Gateway) OnAuthStateChanged(cb AuthStateFunc) func() {
	if !g.ready.Load() {
		return func() {}
	}

	sub := newSubscription()
	var (
		mu    sync.Mutex
		queue []*models.User
		wake  = make(chan struct{}, 1)
	)

	detach := g.client.OnAuthStateChanged(func(u *models.User) {
		mu.Lock()
		queue = append(queue, u)
		mu.Unlock()
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	go func() {
		var delivered, lastNil bool
		for {
			select {
			case <-sub.done:
				return
			case <-wake:
			}
			mu.Lock()
			batch := queue
			queue = nil
			mu.Unlock()

			for _, u := range batch {
				user, role, err := g.resolve(sub.ctx, u)
				// Repeated signed-out states carry no information.
				if user == nil && err == nil && delivered && lastNil {
					continue
				}
				if !sub.deliver(func() { cb(user, role, err) }) {
					return
				}
				delivered = true
				lastNil = user == nil
			}
		}
	}()

	return func() {
		sub.cancel()
		detach()
	}
}

func (g *Gateway) resolve(ctx context.Context, u *models.User) (*models.User, models.Role, error) {
	const op = "AuthState"
	if u == nil {
		return nil, "", nil
	}

	p, err := g.store.GetProfile(ctx, u.UID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p = &models.Profile{UID: u.UID, Email: u.Email, Role: models.RoleStudent, IsActive: true}
		if err := g.store.PutProfile(ctx, p); err != nil {
			g.log.Error("create default profile failed", zap.String("uid", u.UID), zap.Error(err))
			return nil, "", classify(op, err)
		}
		g.log.Info("created default profile", zap.String("uid", u.UID))
	case err != nil:
		g.log.Error("load profile failed", zap.String("uid", u.UID), zap.Error(err))
		return nil, "", classify(op, err)
	}

	if !p.IsActive {
		g.log.Info("inactive profile signed out", zap.String("uid", u.UID))
		if err := g.client.SignOut(ctx); err != nil {
			g.log.Warn("sign out failed", zap.Error(err))
		}
		return nil, "", &Error{Kind: KindAuthorization, Code: auth.CodeUserDisabled, Op: op, Err: ErrDeactivated}
	}
	return u, p.Role, nil
}

// WatchIssues delivers the newest limit issues (newest first) now and again
// after every change to the collection. A failed read delivers an empty
// snapshot with the error. A non-positive limit uses the configured page
// size. Before Open it returns a no-op cancel. Once the returned cancel func
// returns, cb is not called again; cb must not call it synchronously.
func (g *Gateway) WatchIssues(limit int, cb func([]*models.Issue, error)) func() {
	if !g.ready.Load() {
		return func() {}
	}
	if limit <= 0 {
		limit = g.cfg.PageSize
	}

	sub := newSubscription()
	changes, detach := g.store.Changes().Subscribe()

	read := func() bool {
		issues, err := g.store.ListRecentIssues(sub.ctx, limit)
		if err != nil {
			if sub.ctx.Err() != nil {
				return false
			}
			g.log.Error("issues snapshot failed", zap.Error(err))
			return sub.deliver(func() { cb([]*models.Issue{}, classify("WatchIssues", err)) })
		}
		if issues == nil {
			issues = []*models.Issue{}
		}
		return sub.deliver(func() { cb(issues, nil) })
	}

	go func() {
		if !read() {
			return
		}
		for {
			select {
			case <-sub.done:
				return
			case _, ok := <-changes:
				if !ok || !read() {
					return
				}
			}
		}
	}()

	return func() {
		sub.cancel()
		detach()
	}
}

// subscription serializes deliveries with cancellation: cancel waits for an
// in-flight delivery and blocks every later one.
type subscription struct {
	ctx    context.Context
	stop   context.CancelFunc
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func newSubscription() *subscription {
	ctx, stop := context.WithCancel(context.Background())
	return &subscription{ctx: ctx, stop: stop, done: make(chan struct{})}
}

func (s *subscription) deliver(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		s.stop()
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
}
