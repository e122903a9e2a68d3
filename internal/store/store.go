package store

import (
	"context"
	"errors"

	"github.com/joescharf/campus/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("already exists")
)

// Store is the remote document store behind the gateway: the accounts the
// auth provider checks, the users collection and the issues collection.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	SetAccountDisabled(ctx context.Context, uid string, disabled bool) error

	// Profiles (users collection)
	PutProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, uid string) (*models.Profile, error)
	SetProfileActive(ctx context.Context, uid string, active bool) error

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListRecentIssues(ctx context.Context, limit int) ([]*models.Issue, error)
	UpdateIssueStatus(ctx context.Context, id string, status models.IssueStatus, actorID string) error

	// Changes signals every write to the issues collection.
	Changes() Feed

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
