package view

import (
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/state"
)

// Form names passed to Surface.ResetForm.
const (
	FormAuth  = "auth"
	FormIssue = "issue"
)

// Surface is where rendered regions go. Implementations must be safe for
// concurrent use.
type Surface interface {
	Replace(region Region, html string)
	SetBusy(busy bool, label string)
	SetTheme(theme string)
	ResetForm(form string)
}

// Binder re-renders the regions affected by each state event and pushes
// them to a Surface. Apart from the form resets, its methods must run on
// the goroutine that owns the state store; post schedules work there.
type Binder struct {
	store   *state.Store
	notes   *notify.Center
	render  *Renderer
	surface Surface
	post    func(func())
	clock   clock.Clock
	log     *zap.Logger

	status        SystemStatus
	theme         string
	issuesPending bool
	note          *notify.Notification
	unsubs        []func()
}

// BinderDeps wires a Binder.
type BinderDeps struct {
	Store    *state.Store
	Notes    *notify.Center
	Renderer *Renderer
	Surface  Surface
	Post     func(func())
	Clock    clock.Clock
	Logger   *zap.Logger
	Theme    string
}

func NewBinder(d BinderDeps) *Binder {
	b := &Binder{
		store:   d.Store,
		notes:   d.Notes,
		render:  d.Renderer,
		surface: d.Surface,
		post:    d.Post,
		clock:   d.Clock,
		log:     d.Logger,
		theme:   d.Theme,
		status:  SystemStatus{Phase: PhaseInitializing, Message: MsgInitializing},
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.post == nil {
		b.post = func(fn func()) { fn() }
	}
	return b
}

// Bind subscribes to the store and the notification center.
func (b *Binder) Bind() {
	b.unsubs = append(b.unsubs, b.store.Subscribe(b.onEvent))
	if b.notes != nil {
		b.note = b.notes.Current()
		b.unsubs = append(b.unsubs, b.notes.OnChange(func(n *notify.Notification) {
			b.post(func() {
				b.note = n
				b.push(RegionNotification)
			})
		}))
	}
}

// Close detaches the binder.
func (b *Binder) Close() {
	for _, u := range b.unsubs {
		u()
	}
	b.unsubs = nil
}

func (b *Binder) onEvent(ev state.Event) {
	switch ev := ev.(type) {
	case state.SessionChanged:
		b.push(RegionHeader, RegionForms, RegionIssues)
	case state.LoadingChanged:
		label := ""
		if ev.Loading {
			label = BusyLabel
		}
		b.surface.SetBusy(ev.Loading, label)
	case state.IssuesChanged:
		b.push(RegionStats, RegionIssueList)
	}
}

// Model projects the current state.
func (b *Binder) Model() Model {
	return Project(Input{
		State:         b.store.Snapshot(),
		Notification:  b.note,
		Status:        b.status,
		Theme:         b.theme,
		IssuesPending: b.issuesPending,
		Now:           b.clock.Now(),
	})
}

func (b *Binder) push(regions ...Region) {
	m := b.Model()
	for _, r := range regions {
		html, err := b.render.Region(r, m)
		if err != nil {
			b.log.Error("render region", zap.String("region", string(r)), zap.Error(err))
			continue
		}
		b.surface.Replace(r, html)
	}
}

// SetStatus updates the status banner.
func (b *Binder) SetStatus(st SystemStatus) {
	b.status = st
	b.push(RegionStatus)
}

// Status returns the banner content.
func (b *Binder) Status() SystemStatus { return b.status }

// SetTheme switches the page theme.
func (b *Binder) SetTheme(theme string) {
	b.theme = theme
	b.surface.SetTheme(theme)
	b.push(RegionHeader)
}

// SetIssuesPending toggles the "Loading issues..." placeholder.
func (b *Binder) SetIssuesPending(pending bool) {
	if b.issuesPending == pending {
		return
	}
	b.issuesPending = pending
	b.push(RegionIssueList)
}

// ClearAuth and ClearIssue reset forms after a successful action. They may
// be called from any goroutine.
func (b *Binder) ClearAuth()  { b.post(func() { b.surface.ResetForm(FormAuth) }) }
func (b *Binder) ClearIssue() { b.post(func() { b.surface.ResetForm(FormIssue) }) }
