// Package view turns a session's state into something a surface can show.
// Project is a pure function from state to a view model; Renderer turns the
// model into HTML regions; Binder keeps a Surface in sync as state changes.
package view

import (
	"fmt"
	"time"

	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/state"
)

// Phase is the backend connection state shown in the status banner.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseError        Phase = "error"
)

// SystemStatus is the banner content.
type SystemStatus struct {
	Phase   Phase
	Message string
}

const (
	MsgInitializing = "System initializing..."
	MsgReady        = "System ready! You can now register or login."
	BusyLabel       = "Loading..."
	EmptyIssues     = "No issues found."
	LoadingIssues   = "Loading issues..."
	Anonymous       = "Anonymous"
)

// Input is everything Project needs.
type Input struct {
	State        state.Snapshot
	Notification *notify.Notification
	Status       SystemStatus
	Theme        string
	// IssuesPending is set between attaching the issues subscription and
	// its first snapshot.
	IssuesPending bool
	Now           time.Time
}

// Stats are counts over the full, unfiltered collection.
type Stats struct {
	Total      int
	Pending    int
	InProgress int
	Resolved   int
}

// ComputeStats counts issues by status in one pass.
func ComputeStats(issues []models.Issue) Stats {
	var s Stats
	for i := range issues {
		s.Total++
		switch issues[i].Status {
		case models.IssueStatusPending, "":
			s.Pending++
		case models.IssueStatusInProgress:
			s.InProgress++
		case models.IssueStatusResolved:
			s.Resolved++
		}
	}
	return s
}

// StatusAction is one admin button on an issue card.
type StatusAction struct {
	Status   string
	Label    string
	Disabled bool
}

// IssueCard is one rendered issue.
type IssueCard struct {
	ID          string
	Title       string
	Description string
	ImageURL    string
	Reporter    string
	Status      string
	StatusClass string
	TimeAgo     string
	Actions     []StatusAction
}

// FilterOption is one entry of the status filter control.
type FilterOption struct {
	Value    string
	Label    string
	Selected bool
}

// Model is the complete view state.
type Model struct {
	Theme        string
	Status       SystemStatus
	Notification *notify.Notification

	LoggedIn      bool
	ShowAuth      bool
	ShowReporting bool
	ShowIssues    bool
	UserEmail     string
	UserRole      string

	Busy      bool
	BusyLabel string

	IssuesPending bool
	Empty         bool
	Issues        []IssueCard
	Stats         Stats

	Search  string
	Filters []FilterOption
}

// statusActions lists admin transitions in display order.
var statusActions = []struct {
	status models.IssueStatus
	label  string
}{
	{models.IssueStatusInProgress, "In Progress"},
	{models.IssueStatusResolved, "Resolved"},
	{models.IssueStatusPending, "Reopen"},
}

// Project maps in to a Model. It has no side effects.
func Project(in Input) Model {
	snap := in.State
	sess := snap.Session
	isAdmin := sess.LoggedIn() && sess.Role == models.RoleAdmin

	m := Model{
		Theme:         in.Theme,
		Status:        in.Status,
		Notification:  in.Notification,
		LoggedIn:      sess.LoggedIn(),
		ShowAuth:      !sess.LoggedIn(),
		ShowReporting: sess.LoggedIn(),
		ShowIssues:    isAdmin,
		Busy:          snap.Loading,
		IssuesPending: in.IssuesPending,
		Stats:         ComputeStats(snap.Issues),
		Search:        snap.Search,
	}
	if snap.Loading {
		m.BusyLabel = BusyLabel
	}
	if sess.LoggedIn() {
		m.UserEmail = sess.User.Email
		m.UserRole = sess.Role.Title()
	}

	m.Filters = append(m.Filters, FilterOption{Value: "", Label: "All Status", Selected: snap.Filter == ""})
	for _, st := range models.IssueStatuses {
		m.Filters = append(m.Filters, FilterOption{Value: string(st), Label: string(st), Selected: snap.Filter == st})
	}

	if !in.IssuesPending {
		m.Issues = make([]IssueCard, 0, len(snap.Filtered))
		for i := range snap.Filtered {
			m.Issues = append(m.Issues, card(snap.Filtered[i], isAdmin, in.Now))
		}
		m.Empty = len(m.Issues) == 0
	}
	return m
}

func card(issue models.Issue, admin bool, now time.Time) IssueCard {
	status := issue.Status
	if status == "" {
		status = models.IssueStatusPending
	}
	reporter := issue.ReporterEmail
	if reporter == "" {
		reporter = Anonymous
	}
	c := IssueCard{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		ImageURL:    issue.ImageURL,
		Reporter:    reporter,
		Status:      string(status),
		StatusClass: "status-" + status.Slug(),
		TimeAgo:     TimeAgo(issue.CreatedAt, now),
	}
	if admin {
		for _, a := range statusActions {
			c.Actions = append(c.Actions, StatusAction{
				Status:   string(a.status),
				Label:    a.label,
				Disabled: status == a.status,
			})
		}
	}
	return c
}

// TimeAgo formats the age of t relative to now. Zero times and anything
// under a minute old (including future times) read "Just now".
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "Just now"
	}
	secs := int64(now.Sub(t) / time.Second)
	switch {
	case secs < 60:
		return "Just now"
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	default:
		return fmt.Sprintf("%dd ago", secs/86400)
	}
}
