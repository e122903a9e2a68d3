package models

import (
	"fmt"
	"strings"
	"time"
)

// IssueStatus represents the triage state of a reported issue.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "Pending"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusResolved   IssueStatus = "Resolved"
)

// IssueStatuses lists every status in display order.
var IssueStatuses = []IssueStatus{IssueStatusPending, IssueStatusInProgress, IssueStatusResolved}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusPending, IssueStatusInProgress, IssueStatusResolved:
		return true
	}
	return false
}

// Slug returns a lowercase, dash-separated form used for CSS classes and tool arguments.
func (s IssueStatus) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(s)), " ", "-")
}

// ParseIssueStatus accepts the display form ("In Progress"), the slug form
// ("in-progress") or the snake form ("in_progress"), case-insensitively.
func ParseIssueStatus(v string) (IssueStatus, error) {
	norm := strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToLower(strings.TrimSpace(v)))
	for _, s := range IssueStatuses {
		if strings.ToLower(string(s)) == norm {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown issue status: %q", v)
}

// Issue is a reported campus problem.
type Issue struct {
	ID            string
	Title         string
	Description   string
	ImageURL      string // optional
	Status        IssueStatus
	ReporterID    string
	ReporterEmail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	UpdatedBy     string // uid of the last status changer, empty if never changed
}

// NewIssue is the client-supplied part of an issue; the backend assigns the
// id and timestamps.
type NewIssue struct {
	Title         string
	Description   string
	ImageURL      string
	Status        IssueStatus
	ReporterID    string
	ReporterEmail string
}
