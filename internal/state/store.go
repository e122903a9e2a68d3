// Package state holds a session's single source of truth: who is signed in,
// whether an action is in flight, and the mirrored issue collection with its
// filtered view. Every mutation notifies subscribers synchronously.
//
// A Store is not safe for concurrent use. Each session confines its store to
// one goroutine (see app.Loop).
package state

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/models"
)

// Event is delivered to subscribers after every mutation. It is one of
// SessionChanged, LoadingChanged or IssuesChanged.
type Event interface {
	event()
}

// SessionChanged follows SetSession.
type SessionChanged struct {
	Session models.Session
}

// LoadingChanged follows SetLoading.
type LoadingChanged struct {
	Loading bool
}

// IssuesChanged follows any change to the collection, filter or search
// term. Filtered is the recomputed view.
type IssuesChanged struct {
	Filtered []models.Issue
}

func (SessionChanged) event() {}
func (LoadingChanged) event() {}
func (IssuesChanged) event()  {}

// IssuePatch is a partial update; nil fields are left alone.
type IssuePatch struct {
	Title       *string
	Description *string
	ImageURL    *string
	Status      *models.IssueStatus
	UpdatedAt   *time.Time
	UpdatedBy   *string
}

func (p IssuePatch) apply(issue *models.Issue) {
	if p.Title != nil {
		issue.Title = *p.Title
	}
	if p.Description != nil {
		issue.Description = *p.Description
	}
	if p.ImageURL != nil {
		issue.ImageURL = *p.ImageURL
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
	if p.UpdatedAt != nil {
		issue.UpdatedAt = *p.UpdatedAt
	}
	if p.UpdatedBy != nil {
		issue.UpdatedBy = *p.UpdatedBy
	}
}

// Snapshot is a copy of the store's state.
type Snapshot struct {
	Session  models.Session
	Loading  bool
	Issues   []models.Issue
	Filter   models.IssueStatus
	Search   string
	Filtered []models.Issue
}

type subscriber struct {
	id      int
	fn      func(Event)
	removed bool
}

// Store is the reactive state container.
type Store struct {
	log *zap.Logger

	session  models.Session
	loading  bool
	issues   []models.Issue
	filter   models.IssueStatus
	search   string
	filtered []models.Issue

	subs   []*subscriber
	nextID int
}

// New returns an empty, signed-out store. A nil logger discards logs.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{log: logger, issues: []models.Issue{}, filtered: []models.Issue{}}
}

// Subscribe registers fn for every event, after all earlier subscribers.
// The returned func unregisters it and is safe to call more than once.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.nextID++
	sub := &subscriber{id: s.nextID, fn: fn}
	s.subs = append(s.subs, sub)
	return func() {
		if sub.removed {
			return
		}
		sub.removed = true
		for i, x := range s.subs {
			if x == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) notify(ev Event) {
	// Subscribers added during delivery wait for the next event; removed
	// ones are skipped.
	subs := make([]*subscriber, len(s.subs))
	copy(subs, s.subs)
	for _, sub := range subs {
		if sub.removed {
			continue
		}
		s.deliver(sub, ev)
	}
}

func (s *Store) deliver(sub *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("state subscriber panicked",
				zap.Int("subscriber", sub.id),
				zap.String("event", fmt.Sprintf("%T", ev)),
				zap.Any("panic", r))
		}
	}()
	sub.fn(ev)
}

// --- Mutators ---

// SetSession replaces the signed-in identity and role.
func (s *Store) SetSession(sess models.Session) {
	if sess.User != nil {
		u := *sess.User
		sess.User = &u
	}
	s.session = sess
	s.notify(SessionChanged{Session: s.sessionCopy()})
}

// SetLoading sets the in-flight flag.
func (s *Store) SetLoading(loading bool) {
	s.loading = loading
	s.notify(LoadingChanged{Loading: loading})
}

// SetIssues replaces the whole collection.
func (s *Store) SetIssues(issues []*models.Issue) {
	next := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue != nil {
			next = append(next, *issue)
		}
	}
	s.issues = next
	s.refilter()
}

// AddIssue prepends issue.
func (s *Store) AddIssue(issue models.Issue) {
	s.issues = append([]models.Issue{issue}, s.issues...)
	s.refilter()
}

// UpdateIssue merges patch into the issue with id, keeping its position.
// An unknown id is a no-op and emits nothing.
func (s *Store) UpdateIssue(id string, patch IssuePatch) bool {
	for i := range s.issues {
		if s.issues[i].ID == id {
			patch.apply(&s.issues[i])
			s.refilter()
			return true
		}
	}
	return false
}

// SetFilter restricts the view to one status; "" clears it.
func (s *Store) SetFilter(status models.IssueStatus) {
	s.filter = status
	s.refilter()
}

// SetSearchTerm restricts the view to issues whose title or description
// contains term, case-insensitively; "" clears it.
func (s *Store) SetSearchTerm(term string) {
	s.search = term
	s.refilter()
}

func (s *Store) refilter() {
	s.filtered = Filter(s.issues, s.filter, s.search)
	s.notify(IssuesChanged{Filtered: cloneIssues(s.filtered)})
}

// Filter applies the status filter and search term to issues, in order.
// Both are optional and compose with AND.
func Filter(issues []models.Issue, status models.IssueStatus, term string) []models.Issue {
	term = strings.ToLower(term)
	out := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if status != "" && issue.Status != status {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(issue.Title), term) &&
			!strings.Contains(strings.ToLower(issue.Description), term) {
			continue
		}
		out = append(out, issue)
	}
	return out
}

// --- Accessors ---

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Session:  s.sessionCopy(),
		Loading:  s.loading,
		Issues:   cloneIssues(s.issues),
		Filter:   s.filter,
		Search:   s.search,
		Filtered: cloneIssues(s.filtered),
	}
}

func (s *Store) Session() models.Session { return s.sessionCopy() }
func (s *Store) Loading() bool           { return s.loading }
func (s *Store) IsLoggedIn() bool        { return s.session.LoggedIn() }
func (s *Store) IsAdmin() bool           { return s.session.LoggedIn() && s.session.Role == models.RoleAdmin }
func (s *Store) IsStudent() bool         { return s.session.LoggedIn() && s.session.Role == models.RoleStudent }

// HasIssue reports whether id is in the collection.
func (s *Store) HasIssue(id string) bool {
	for i := range s.issues {
		if s.issues[i].ID == id {
			return true
		}
	}
	return false
}

func (s *Store) sessionCopy() models.Session {
	sess := s.session
	if sess.User != nil {
		u := *sess.User
		sess.User = &u
	}
	return sess
}

func cloneIssues(in []models.Issue) []models.Issue {
	out := make([]models.Issue, len(in))
	copy(out, in)
	return out
}
