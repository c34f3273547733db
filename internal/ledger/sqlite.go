package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS dialogue_outcomes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			due_text   TEXT NOT NULL DEFAULT '',
			due_date   TEXT NOT NULL DEFAULT '',
			priority   TEXT NOT NULL DEFAULT '',
			issue_key  TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outcomes_status ON dialogue_outcomes(status);
		CREATE INDEX IF NOT EXISTS idx_outcomes_user ON dialogue_outcomes(user_id);
	`)
	if err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dialogue_outcomes (id, user_id, channel_id, summary, due_text, due_date, priority, issue_key, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.ChannelID, e.Summary, e.DueText, e.DueDate, e.Priority, e.IssueKey,
		string(e.Status), e.Detail, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: record: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM dialogue_outcomes WHERE id = ?`, id)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ledger: get: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	where, args := filter.where()
	query := "SELECT " + columns + " FROM dialogue_outcomes" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: list scan: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.where()
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dialogue_outcomes"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

const columns = "id, user_id, channel_id, summary, due_text, due_date, priority, issue_key, status, detail, created_at"

func (f Filter) where() (string, []any) {
	clause := " WHERE 1=1"
	var args []any

	if f.Status != nil {
		clause += " AND status = ?"
		args = append(args, string(*f.Status))
	}
	if f.UserID != "" {
		clause += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Query != "" {
		clause += " AND (summary LIKE ? OR issue_key LIKE ?)"
		pattern := fmt.Sprintf("%%%s%%", f.Query)
		args = append(args, pattern, pattern)
	}
	return clause, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var e Entry
	var status, createdAt string
	err := sc.Scan(&e.ID, &e.UserID, &e.ChannelID, &e.Summary, &e.DueText, &e.DueDate,
		&e.Priority, &e.IssueKey, &status, &e.Detail, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}
