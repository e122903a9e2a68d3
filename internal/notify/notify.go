// Package notify presents transient, auto-dismissing messages to the user.
// At most one notification is visible at a time; showing a new one replaces
// the previous one.
package notify

import (
	"sync"
	"time"

	"github.com/joescharf/campus/internal/clock"
)

// Kind selects the presentation style of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
)

// DefaultDuration is how long a notification stays visible unless the
// caller asks otherwise.
const DefaultDuration = 5 * time.Second

// Notification is a single visible message.
type Notification struct {
	ID      uint64
	Kind    Kind
	Message string
	Title   string
}

// Center owns the visible notification. It is safe for concurrent use;
// listeners are called without the lock held.
type Center struct {
	clock    clock.Clock
	duration time.Duration

	mu        sync.Mutex
	current   *Notification
	timer     clock.Timer
	seq       uint64
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(*Notification)
}

// New returns a Center. A nil clock means the real clock; a non-positive
// duration means DefaultDuration.
func New(c clock.Clock, duration time.Duration) *Center {
	if c == nil {
		c = clock.Real()
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Center{clock: c, duration: duration}
}

// Show replaces the visible notification. A zero duration uses the
// center's default; a negative duration keeps it until dismissed.
func (c *Center) Show(kind Kind, message string, duration time.Duration) *Notification {
	return c.show(kind, "", message, duration)
}

// ShowTitled is Show with a heading.
func (c *Center) ShowTitled(kind Kind, title, message string, duration time.Duration) *Notification {
	return c.show(kind, title, message, duration)
}

func (c *Center) show(kind Kind, title, message string, duration time.Duration) *Notification {
	if duration == 0 {
		duration = c.duration
	}
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
	n := &Notification{ID: c.seq, Kind: kind, Title: title, Message: message}
	c.current = n
	c.mu.Unlock()

	if duration > 0 {
		id := n.ID
		t := c.clock.AfterFunc(duration, func() { c.dismiss(id) })
		c.mu.Lock()
		if c.current != nil && c.current.ID == id {
			c.timer = t
		}
		c.mu.Unlock()
	}

	c.emit(n)
	return n
}

func (c *Center) Success(message string) *Notification { return c.Show(KindSuccess, message, 0) }
func (c *Center) Error(message string) *Notification   { return c.Show(KindError, message, 0) }
func (c *Center) Info(message string) *Notification    { return c.Show(KindInfo, message, 0) }
func (c *Center) Warning(message string) *Notification { return c.Show(KindWarning, message, 0) }

// Dismiss removes the visible notification if its ID is still id.
func (c *Center) Dismiss(id uint64) {
	c.dismiss(id)
}

func (c *Center) dismiss(id uint64) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != id {
		c.mu.Unlock()
		return
	}
	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.emit(nil)
}

// Current returns a copy of the visible notification, or nil.
func (c *Center) Current() *Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	n := *c.current
	return &n
}

// OnChange registers fn to be called with the visible notification (nil once
// dismissed) after every change. The returned func unregisters it.
func (c *Center) OnChange(fn func(*Notification)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Center) emit(n *Notification) {
	c.mu.Lock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()
	for _, l := range ls {
		if n == nil {
			l.fn(nil)
			continue
		}
		cp := *n
		l.fn(&cp)
	}
}
