package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/models"
)

//go:embed migrations_pg/*.sql
var pgMigrationsFS embed.FS

// issuesChannel is the NOTIFY channel signalled on every issue write.
const issuesChannel = "campus_issues"

// PostgresStore implements Store on PostgreSQL via lib/pq. Issue writes are
// announced with pg_notify, and a pq.Listener turns notifications from any
// process sharing the database into change signals.
type PostgresStore struct {
	db      *sql.DB
	dsn     string
	log     *zap.Logger
	changes *Broadcaster

	listenOnce sync.Once
	listener   *pq.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewPostgresStore opens a connection pool for dsn. The listener is started
// lazily on the first call to Changes.
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &PostgresStore{
		db:      db,
		dsn:     dsn,
		log:     logger,
		changes: NewBroadcaster(),
		done:    make(chan struct{}),
	}, nil
}

func isPQUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Migrate applies the embedded migrations with golang-migrate. It uses its
// own connection because closing the migrator closes the driver's database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.log.Info("running migrations")

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("migration open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("migration ping: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}

	src, err := iofs.New(pgMigrationsFS, "migrations_pg")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migration init: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		s.log.Info("no new migrations, already up to date")
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the listener and closes the pool.
func (s *PostgresStore) Close() error {
	close(s.done)
	s.wg.Wait()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return s.db.Close()
}

// Changes returns a feed fed by LISTEN on the issues channel.
func (s *PostgresStore) Changes() Feed {
	s.listenOnce.Do(s.startListener)
	return s.changes
}

func (s *PostgresStore) startListener() {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.log.Warn("listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	}
	s.listener = pq.NewListener(s.dsn, 100*time.Millisecond, 10*time.Second, report)
	if err := s.listener.Listen(issuesChannel); err != nil {
		s.log.Error("listen failed", zap.String("channel", issuesChannel), zap.Error(err))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case n := <-s.listener.Notify:
				// A nil notification follows a reconnect; changes may have
				// been missed, so signal anyway.
				if n == nil {
					s.log.Debug("listener reconnected")
				}
				s.changes.Publish()
			case <-time.After(90 * time.Second):
				go func() { _ = s.listener.Ping() }()
			}
		}
	}()
}

func (s *PostgresStore) notifyIssues(ctx context.Context, id string) {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, issuesChannel, id); err != nil {
		s.log.Warn("pg_notify failed", zap.String("issue", id), zap.Error(err))
	}
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.UID == "" {
		a.UID = newULID()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (uid, email, password_hash, disabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.UID, a.Email, a.PasswordHash, a.Disabled, a.CreatedAt,
	)
	if isPQUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	return s.getAccount(ctx, "uid", uid)
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getAccount(ctx, "email", email)
}

func (s *PostgresStore) getAccount(ctx context.Context, column, value string) (*models.Account, error) {
	a := &models.Account{}
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, disabled, created_at FROM accounts WHERE `+column+` = $1`, value,
	).Scan(&a.UID, &a.Email, &a.PasswordHash, &a.Disabled, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) SetAccountDisabled(ctx context.Context, uid string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET disabled=$2 WHERE uid=$1`, uid, disabled)
	if err != nil {
		return fmt.Errorf("set account disabled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("account %s: %w", uid, ErrNotFound)
	}
	return nil
}

// --- Profiles ---

func (s *PostgresStore) PutProfile(ctx context.Context, p *models.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, role, is_active, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO UPDATE SET email=EXCLUDED.email, role=EXCLUDED.role, is_active=EXCLUDED.is_active`,
		p.UID, p.Email, string(p.Role), p.IsActive, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	p := &models.Profile{}
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, email, role, is_active, created_at FROM users WHERE uid = $1`, uid,
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

func (s *PostgresStore) SetProfileActive(ctx context.Context, uid string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active=$2 WHERE uid=$1`, uid, active)
	if err != nil {
		return fmt.Errorf("set profile active: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("profile %s: %w", uid, ErrNotFound)
	}
	return nil
}

// --- Issues ---

func (s *PostgresStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
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
		`INSERT INTO issues (`+issueColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		issue.ID, issue.Title, issue.Description, issue.ImageURL, string(issue.Status),
		issue.ReporterID, issue.ReporterEmail, issue.CreatedAt, issue.UpdatedAt, issue.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	s.notifyIssues(ctx, issue.ID)
	return nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) ListRecentIssues(ctx context.Context, limit int) ([]*models.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
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

func (s *PostgresStore) UpdateIssueStatus(ctx context.Context, id string, status models.IssueStatus, actorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status=$2, updated_at=$3, updated_by=$4 WHERE id=$1`,
		id, string(status), time.Now().UTC(), actorID,
	)
	if err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	s.notifyIssues(ctx, id)
	return nil
}
