package oracle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "github.com/sijms/go-ora/v2"
	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/repository/migrations"
)

const insertSQL = `INSERT INTO archived_request (
	id, request_id, method, url, host, timestamp, archived_at, headers, body
) VALUES (:1, :2, :3, :4, :5, :6, :7, :8, :9)`

type OracleRepository struct {
	DB *sql.DB
}

func NewOracleRepository(ctx context.Context, connStr string) (*OracleRepository, error) {
	db, err := sql.Open("oracle", connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to Oracle: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to reach Oracle: %w", err)
	}
	return &OracleRepository{DB: db}, nil
}

func (r *OracleRepository) SaveRecord(ctx context.Context, entry *model.ArchiveEntry) error {
	args, err := insertArgs(entry)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, insertSQL, args...)
	return err
}

func (r *OracleRepository) SaveRecords(ctx context.Context, entries []*model.ArchiveEntry) error {
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
			return err
		}
	}
	return tx.Commit()
}

func insertArgs(entry *model.ArchiveEntry) ([]interface{}, error) {
	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return nil, err
	}
	body := ""
	if entry.Body != nil {
		b, err := json.Marshal(entry.Body)
		if err != nil {
			return nil, err
		}
		body = string(b)
	}
	return []interface{}{
		entry.ID, entry.RequestID, entry.Method, entry.URL, entry.Host,
		entry.Timestamp, entry.ArchivedAt, string(headers), body,
	}, nil
}

func (r *OracleRepository) Close() error {
	return r.DB.Close()
}

func (r *OracleRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("Starting Oracle migrations")

	for _, stmt := range migrations.OracleStatements {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), migrations.OracleAlreadyExists) {
				continue
			}
			log.Error().Err(err).Msg("Oracle migrations failed")
			return fmt.Errorf("migration error: %w", err)
		}
	}

	log.Info().Msg("Oracle migrations completed successfully")
	return nil
}
