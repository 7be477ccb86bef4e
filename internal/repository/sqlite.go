package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"caller-lookup-bot/internal/domain"
)

// SQLiteStore implements the session store contract on a local SQLite file.
// Used by the development server; production runs on DynamoDB. The database
// is opened in WAL mode with a 5s busy timeout so concurrent webhook
// deliveries queue instead of failing with SQLITE_BUSY.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("repository: db path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("repository: create database directory: %w", err)
	}

	// modernc.org/sqlite only honors pragmas in _pragma=name(value) form.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("repository: initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		chat_id INTEGER PRIMARY KEY,
		status TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		login_challenge TEXT NOT NULL DEFAULT '',
		installation_id TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, chatID int64) (domain.Session, bool, error) {
	query := `
		SELECT chat_id, status, phone_number, login_challenge,
		       installation_id, country_code, updated_at
		FROM sessions WHERE chat_id = ?`

	row := s.db.QueryRowContext(ctx, query, chatID)

	var session domain.Session
	var status string
	var updatedAt int64
	err := row.Scan(
		&session.ChatID, &status, &session.PhoneNumber, &session.LoginChallenge,
		&session.InstallationID, &session.CountryCode, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: scan session row: %w", err)
	}
	if !domain.Status(status).Valid() {
		return domain.Session{}, false, fmt.Errorf("repository: unknown session status %q", status)
	}

	session.Status = domain.Status(status)
	session.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return session, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, session domain.Session) error {
	if !session.Status.Valid() {
		return fmt.Errorf("repository: Put: unknown status %q", session.Status)
	}
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sessions (chat_id, status, phone_number, login_challenge,
		                      installation_id, country_code, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			status = excluded.status,
			phone_number = excluded.phone_number,
			login_challenge = excluded.login_challenge,
			installation_id = excluded.installation_id,
			country_code = excluded.country_code,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		session.ChatID, string(session.Status), session.PhoneNumber,
		session.LoginChallenge, session.InstallationID, session.CountryCode,
		updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
