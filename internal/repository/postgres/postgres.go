package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/repository/migrations"
)

const insertSQL = `INSERT INTO archived_request (
	id, request_id, method, url, host, timestamp, archived_at, headers, body
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connStr string) (*PostgresRepository, error) {
	pool, err := pgxpool.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

func (r *PostgresRepository) SaveRecord(ctx context.Context, entry *model.ArchiveEntry) error {
	args, err := insertArgs(entry)
	if err != nil {
		return err
	}
	_, err = r.Pool.Exec(ctx, insertSQL, args...)
	return err
}

func (r *PostgresRepository) SaveRecords(ctx context.Context, entries []*model.ArchiveEntry) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Int("count", len(entries)).Msg("Saving archived requests")

	batch := &pgx.Batch{}
	for _, entry := range entries {
		args, err := insertArgs(entry)
		if err != nil {
			logger.Error().Err(err).Str("id", entry.ID).Msg("Failed to encode archived request")
			return err
		}
		batch.Queue(insertSQL, args...)
	}

	br := r.Pool.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to save archived requests")
		return err
	}
	return nil
}

func insertArgs(entry *model.ArchiveEntry) ([]interface{}, error) {
	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return nil, err
	}
	var body []byte
	if entry.Body != nil {
		if body, err = json.Marshal(entry.Body); err != nil {
			return nil, err
		}
	}
	return []interface{}{
		entry.ID, entry.RequestID, entry.Method, entry.URL, entry.Host,
		entry.Timestamp, entry.ArchivedAt, headers, body,
	}, nil
}

func (r *PostgresRepository) Close() error {
	r.Pool.Close()
	return nil
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("Starting PostgreSQL migrations")

	if _, err := r.Pool.Exec(ctx, migrations.PostgresSchema); err != nil {
		log.Error().Err(err).Msg("PostgreSQL migrations failed")
		return fmt.Errorf("migration error: %w", err)
	}

	log.Info().Msg("PostgreSQL migrations completed successfully")
	return nil
}
