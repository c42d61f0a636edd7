// Package sqlite is the default, file-backed archive store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/repository/migrations"
	_ "modernc.org/sqlite"
)

const insertSQL = `INSERT OR IGNORE INTO archived_request (
	id, request_id, method, url, host, timestamp, archived_at, headers, body
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type SQLiteRepository struct {
	DB *sql.DB
}

// Open opens (creating if needed) the database file at path.
func Open(path string) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLiteRepository{DB: db}, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func (r *SQLiteRepository) SaveRecord(ctx context.Context, entry *model.ArchiveEntry) error {
	args, err := insertArgs(entry)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, insertSQL, args...)
	return err
}

func (r *SQLiteRepository) SaveRecords(ctx context.Context, entries []*model.ArchiveEntry) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		args, err := insertArgs(entry)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", entry.ID, err)
		}
	}
	return tx.Commit()
}

func insertArgs(entry *model.ArchiveEntry) ([]interface{}, error) {
	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return nil, err
	}
	var body sql.NullString
	if entry.Body != nil {
		b, err := json.Marshal(entry.Body)
		if err != nil {
			return nil, err
		}
		body = sql.NullString{String: string(b), Valid: true}
	}
	return []interface{}{
		entry.ID, entry.RequestID, entry.Method, entry.URL, entry.Host,
		toMillis(entry.Timestamp), toMillis(entry.ArchivedAt), string(headers), body,
	}, nil
}

// Recent returns up to limit entries, newest archived first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]*model.ArchiveEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, request_id, method, url, host, timestamp, archived_at, headers, body
		FROM archived_request ORDER BY archived_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.ArchiveEntry
	for rows.Next() {
		var (
			entry          model.ArchiveEntry
			host, headers  sql.NullString
			body           sql.NullString
			ts, archivedAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.RequestID, &entry.Method, &entry.URL, &host, &ts, &archivedAt, &headers, &body); err != nil {
			return nil, err
		}
		entry.Host = host.String
		entry.Timestamp = fromMillis(ts)
		entry.ArchivedAt = fromMillis(archivedAt)
		if headers.Valid && headers.String != "" {
			if err := json.Unmarshal([]byte(headers.String), &entry.Headers); err != nil {
				return nil, fmt.Errorf("decode headers of %s: %w", entry.ID, err)
			}
		}
		if body.Valid {
			entry.Body = &model.RequestBody{}
			if err := json.Unmarshal([]byte(body.String), entry.Body); err != nil {
				return nil, fmt.Errorf("decode body of %s: %w", entry.ID, err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.DB.Close()
}

func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, migrations.SQLiteSchema); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}
