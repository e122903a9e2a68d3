// Package auth is the credential provider: email/password accounts kept in
// the backend store, hashed with bcrypt, plus a per-session Client that
// tracks the signed-in user and pushes auth-state transitions.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/store"
	"github.com/joescharf/campus/internal/validate"
)

// Lockout defaults: this many failed sign-ins for one email within the
// window make further attempts fail with CodeTooManyRequests.
const (
	DefaultMaxFailures   = 5
	DefaultFailureWindow = 15 * time.Minute
)

// Provider creates accounts and verifies credentials. It is shared by all
// sessions and safe for concurrent use.
type Provider struct {
	store       store.Store
	clock       clock.Clock
	log         *zap.Logger
	cost        int
	maxFailures int
	window      time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
}

// Option configures a Provider.
type Option func(*Provider)

func WithClock(c clock.Clock) Option { return func(p *Provider) { p.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(p *Provider) { p.log = l } }

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option { return func(p *Provider) { p.cost = cost } }

// WithLockout sets the failed sign-in limit and its window.
func WithLockout(maxFailures int, window time.Duration) Option {
	return func(p *Provider) {
		p.maxFailures = maxFailures
		p.window = window
	}
}

func NewProvider(s store.Store, opts ...Option) *Provider {
	p := &Provider{
		store:       s,
		clock:       clock.Real(),
		log:         zap.NewNop(),
		cost:        bcrypt.DefaultCost,
		maxFailures: DefaultMaxFailures,
		window:      DefaultFailureWindow,
		failures:    make(map[string][]time.Time),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NormalizeEmail lowercases and trims an address; accounts are keyed by the
// normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// backendError maps a store failure that is not a lookup miss to the
// provider's network code.
func backendError(err error) *Error {
	return newError(CodeNetworkRequestFailed, "A network error has occurred", err)
}

// CreateUser creates an account for email. It does not sign anyone in.
func (p *Provider) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if !validate.Email(email) {
		return nil, newError(CodeInvalidEmail, "The email address is badly formatted", nil)
	}
	if password == "" {
		return nil, newError(CodeWeakPassword, "Password should not be empty", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		p.log.Error("bcrypt", zap.Error(err))
		return nil, newError(CodeInternal, "Could not hash password", err)
	}

	acct := &models.Account{Email: email, PasswordHash: hash}
	if err := p.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, newError(CodeEmailAlreadyInUse, "The email address is already in use by another account", err)
		}
		return nil, backendError(err)
	}
	p.log.Info("account created", zap.String("uid", acct.UID))
	return &models.User{UID: acct.UID, Email: acct.Email}, nil
}

// SignIn verifies credentials and returns the account's identity.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if !validate.Email(email) {
		return nil, newError(CodeInvalidEmail, "The email address is badly formatted", nil)
	}
	if p.lockedOut(email) {
		return nil, newError(CodeTooManyRequests, "Access to this account has been temporarily disabled due to many failed login attempts", nil)
	}

	acct, err := p.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		p.recordFailure(email)
		return nil, newError(CodeUserNotFound, "There is no user record corresponding to this identifier", err)
	}
	if err != nil {
		return nil, backendError(err)
	}

	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)) != nil {
		p.recordFailure(email)
		return nil, newError(CodeWrongPassword, "The password is invalid", nil)
	}
	if acct.Disabled {
		return nil, newError(CodeUserDisabled, "The user account has been disabled by an administrator", nil)
	}

	p.clearFailures(email)
	return &models.User{UID: acct.UID, Email: acct.Email}, nil
}

// SetDisabled enables or disables the account for email.
func (p *Provider) SetDisabled(ctx context.Context, email string, disabled bool) (*models.User, error) {
	email = NormalizeEmail(email)
	acct, err := p.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(CodeUserNotFound, "There is no user record corresponding to this identifier", err)
	}
	if err != nil {
		return nil, backendError(err)
	}
	if err := p.store.SetAccountDisabled(ctx, acct.UID, disabled); err != nil {
		return nil, backendError(err)
	}
	p.log.Info("account updated", zap.String("uid", acct.UID), zap.Bool("disabled", disabled))
	return &models.User{UID: acct.UID, Email: acct.Email}, nil
}

// Lookup returns the identity for email without checking credentials.
func (p *Provider) Lookup(ctx context.Context, email string) (*models.User, error) {
	acct, err := p.store.GetAccountByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(CodeUserNotFound, "There is no user record corresponding to this identifier", err)
	}
	if err != nil {
		return nil, backendError(err)
	}
	return &models.User{UID: acct.UID, Email: acct.Email}, nil
}

func (p *Provider) lockedOut(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prune(email)) >= p.maxFailures
}

func (p *Provider) recordFailure(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[email] = append(p.prune(email), p.clock.Now())
}

func (p *Provider) clearFailures(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, email)
}

// prune drops failures older than the window. Caller holds p.mu.
func (p *Provider) prune(email string) []time.Time {
	cutoff := p.clock.Now().Add(-p.window)
	kept := p.failures[email][:0]
	for _, t := range p.failures[email] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(p.failures, email)
		return nil
	}
	p.failures[email] = kept
	return kept
}
