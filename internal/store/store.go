package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ordernotify/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore backs the runtime settings store, the attachment store, and
// the per-order audit trail with a single embedded database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key         TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id          TEXT PRIMARY KEY,
		order_name  TEXT NOT NULL,
		name        TEXT NOT NULL,
		mime_type   TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_order ON attachments(order_name, created_at);

	CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_name  TEXT NOT NULL,
		action      TEXT NOT NULL,
		body        TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_order ON audit_log(order_name, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Settings ---

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

func (s *SQLiteStore) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// --- Attachments ---

func (s *SQLiteStore) CreateAttachment(ctx context.Context, att domain.Attachment) (domain.Attachment, error) {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (id, order_name, name, mime_type, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		att.ID, att.OrderName, att.Name, att.MimeType, att.Content, att.CreatedAt,
	)
	if err != nil {
		return domain.Attachment{}, err
	}
	return att, nil
}

func (s *SQLiteStore) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	var att domain.Attachment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, order_name, name, mime_type, content, created_at FROM attachments WHERE id = ?`, id,
	).Scan(&att.ID, &att.OrderName, &att.Name, &att.MimeType, &att.Content, &att.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// --- Audit trail ---

func (s *SQLiteStore) Append(ctx context.Context, orderName, action, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (order_name, action, body) VALUES (?, ?, ?)`,
		orderName, action, body,
	)
	return err
}

func (s *SQLiteStore) ListAudit(ctx context.Context, orderName string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_name, action, body, created_at
		 FROM audit_log WHERE order_name = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, orderName, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var body sql.NullString
		if err := rows.Scan(&e.ID, &e.OrderName, &e.Action, &body, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Body = body.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
