package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/campus/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Change signals are published in-process, so push subscriptions only see
// writes made through the same SQLiteStore.
type SQLiteStore struct {
	db      *sql.DB
	changes *Broadcaster
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent sessions.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, changes: NewBroadcaster()}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Changes returns the in-process issue change feed.
func (s *SQLiteStore) Changes() Feed {
	return s.changes
}

// --- Accounts ---

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.UID == "" {
		a.UID = newULID()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (uid, email, password_hash, disabled, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.UID, a.Email, a.PasswordHash, boolToInt(a.Disabled), a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	return s.getAccount(ctx, "uid", uid)
}

func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getAccount(ctx, "email", email)
}

func (s *SQLiteStore) getAccount(ctx context.Context, column, value string) (*models.Account, error) {
	a := &models.Account{}
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, disabled, created_at FROM accounts WHERE `+column+` = ?`, value,
	).Scan(&a.UID, &a.Email, &a.PasswordHash, &a.Disabled, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) SetAccountDisabled(ctx context.Context, uid string, disabled bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET disabled = ? WHERE uid = ?`, boolToInt(disabled), uid)
	if err != nil {
		return fmt.Errorf("set account disabled: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("account %s: %w", uid, ErrNotFound)
	}
	return nil
}

// --- Profiles ---

// PutProfile creates or replaces the profile document for p.UID.
func (s *SQLiteStore) PutProfile(ctx context.Context, p *models.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, role, is_active, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET email=excluded.email, role=excluded.role, is_active=excluded.is_active`,
		p.UID, p.Email, string(p.Role), boolToInt(p.IsActive), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	p := &models.Profile{}
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, email, role, is_active, created_at FROM users WHERE uid = ?`, uid,
	).Scan(&p.UID, &p.Email, &role, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Role = models.Role(role)
	return p, nil
}

func (s *SQLiteStore) SetProfileActive(ctx context.Context, uid string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE uid = ?`, boolToInt(active), uid)
	if err != nil {
		return fmt.Errorf("set profile active: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("profile %s: %w", uid, ErrNotFound)
	}
	return nil
}

// --- Issues ---

const issueColumns = `id, title, description, image_url, status, reporter_id, reporter_email, created_at, updated_at, updated_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var status string
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &issue.ImageURL, &status,
		&issue.ReporterID, &issue.ReporterEmail, &issue.CreatedAt, &issue.UpdatedAt, &issue.UpdatedBy); err != nil {
		return nil, err
	}
	issue.Status = models.IssueStatus(status)
	return issue, nil
}

// CreateIssue assigns the id and server timestamps, inserts the issue and
// signals subscribers.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	if issue.Status == "" {
		issue.Status = models.IssueStatusPending
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description, issue.ImageURL, string(issue.Status),
		issue.ReporterID, issue.ReporterEmail, issue.CreatedAt, issue.UpdatedAt, issue.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	s.changes.Publish()
	return nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

// ListRecentIssues returns at most limit issues, newest first.
func (s *SQLiteStore) ListRecentIssues(ctx context.Context, limit int) ([]*models.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) UpdateIssueStatus(ctx context.Context, id string, status models.IssueStatus, actorID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status=?, updated_at=?, updated_by=? WHERE id=?`,
		string(status), time.Now().UTC(), actorID, id,
	)
	if err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	s.changes.Publish()
	return nil
}
