// Package theme manages the light/dark preference.
package theme

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/notify"
)

// Theme is a colour scheme.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Key is the preference key the theme is stored under.
const Key = "campusTheme"

// ToastDuration is how long the toggle confirmation stays up.
const ToastDuration = 2 * time.Second

// Parse returns the theme named v.
func Parse(v string) (Theme, bool) {
	switch Theme(v) {
	case Light, Dark:
		return Theme(v), true
	}
	return "", false
}

// Prefs persists string preferences.
type Prefs interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Manager holds the current theme. It is not safe for concurrent use; sessions
// call it from their event loop.
type Manager struct {
	prefs   Prefs
	notes   *notify.Center
	apply   func(Theme)
	log     *zap.Logger
	current Theme
}

// NewManager reads the stored theme (default light). apply is called on every
// change; it may be nil.
func NewManager(prefs Prefs, notes *notify.Center, apply func(Theme), logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{prefs: prefs, notes: notes, apply: apply, log: logger, current: Light}
	if prefs != nil {
		if v, ok := prefs.Get(Key); ok {
			if t, ok := Parse(v); ok {
				m.current = t
			}
		}
	}
	return m
}

// Current returns the active theme.
func (m *Manager) Current() Theme { return m.current }

// Toggle flips the theme, stores it and confirms with a short notification.
func (m *Manager) Toggle() Theme {
	next := Dark
	if m.current == Dark {
		next = Light
	}
	m.set(next)
	if m.notes != nil {
		m.notes.ShowTitled(notify.KindSuccess, "Theme Changed", fmt.Sprintf("Switched to %s mode", next), ToastDuration)
	}
	return next
}

// Set switches to the named theme. Unknown names are ignored.
func (m *Manager) Set(v string) bool {
	t, ok := Parse(v)
	if !ok {
		return false
	}
	m.set(t)
	return true
}

func (m *Manager) set(t Theme) {
	m.current = t
	if m.prefs != nil {
		if err := m.prefs.Set(Key, string(t)); err != nil {
			m.log.Warn("store theme preference", zap.Error(err))
		}
	}
	if m.apply != nil {
		m.apply(t)
	}
}
