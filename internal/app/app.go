// Package app wires sessions: one per browser, terminal or tool client. A
// session owns its state store, event loop, gateway, notifications,
// controller, theme and view binder; the App holds what sessions share.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/auth"
	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/gateway"
	"github.com/joescharf/campus/internal/store"
	"github.com/joescharf/campus/internal/validate"
	"github.com/joescharf/campus/internal/view"
)

// Config holds the per-session tunables.
type Config struct {
	Gateway             gateway.Config
	Limits              validate.Limits
	NotificationTimeout time.Duration
	SearchDebounce      time.Duration
}

// DefaultConfig mirrors the browser client's constants.
var DefaultConfig = Config{
	Gateway:             gateway.DefaultConfig,
	Limits:              validate.DefaultLimits,
	NotificationTimeout: 5 * time.Second,
	SearchDebounce:      300 * time.Millisecond,
}

// App is shared by every session of one process.
type App struct {
	cfg      Config
	log      *zap.Logger
	store    store.Store
	provider *auth.Provider
	clock    clock.Clock
	renderer *view.Renderer
}

// New builds an App over an opened, migrated backend store.
func New(cfg Config, s store.Store, p *auth.Provider, logger *zap.Logger, c clock.Clock) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.Real()
	}
	if cfg.SearchDebounce <= 0 {
		cfg.SearchDebounce = DefaultConfig.SearchDebounce
	}
	if cfg.Limits == (validate.Limits{}) {
		cfg.Limits = validate.DefaultLimits
	}
	return &App{
		cfg:      cfg,
		log:      logger,
		store:    s,
		provider: p,
		clock:    c,
		renderer: view.MustRenderer(),
	}
}

// Renderer returns the shared template renderer.
func (a *App) Renderer() *view.Renderer { return a.renderer }

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.log }

// Ping checks the backend.
func (a *App) Ping(ctx context.Context) error { return a.store.Ping(ctx) }
