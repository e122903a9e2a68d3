package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joescharf/campus/internal/models"
)

// Client is one session's view of the provider: who is signed in, and a
// push subscription for transitions. Listeners are called in registration
// order, never concurrently with each other.
type Client struct {
	p *Provider

	mu        sync.Mutex
	user      *models.User
	listeners []*authListener

	emitMu sync.Mutex
}

type authListener struct {
	fn     func(*models.User)
	active atomic.Bool
}

func (p *Provider) NewClient() *Client {
	return &Client{p: p}
}

// CurrentUser returns the signed-in user, or nil.
func (c *Client) CurrentUser() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// CreateUser creates an account, runs setup for it (if non-nil) and then
// signs the new user in. If setup fails the account still exists but nobody
// is signed in, and setup's error is returned with the new user.
func (c *Client) CreateUser(ctx context.Context, email, password string, setup func(context.Context, *models.User) error) (*models.User, error) {
	u, err := c.p.CreateUser(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		if err := setup(ctx, u); err != nil {
			return u, err
		}
	}
	c.setUser(u)
	return u, nil
}

// SignIn verifies credentials and makes the user current.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	u, err := c.p.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setUser(u)
	return u, nil
}

// SignOut clears the current user. Signing out while signed out is a no-op.
func (c *Client) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return newError(CodeNetworkRequestFailed, "Sign out was interrupted", err)
	}
	c.setUser(nil)
	return nil
}

// OnAuthStateChanged calls fn with the current user right away and again
// after every sign-in or sign-out. fn must not call back into the Client
// synchronously. The returned cancel func is idempotent; once it returns no
// new delivery to fn starts.
func (c *Client) OnAuthStateChanged(fn func(*models.User)) func() {
	l := &authListener{fn: fn}
	l.active.Store(true)

	c.emitMu.Lock()
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	current := c.user
	c.mu.Unlock()
	l.fn(copyUser(current))
	c.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, x := range c.listeners {
				if x == l {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

func (c *Client) setUser(u *models.User) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.user == nil && u == nil {
		c.mu.Unlock()
		return
	}
	c.user = copyUser(u)
	ls := make([]*authListener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()

	for _, l := range ls {
		if l.active.Load() {
			l.fn(copyUser(u))
		}
	}
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
