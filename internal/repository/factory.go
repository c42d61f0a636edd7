package repository

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	ora "github.com/sijms/go-ora/v2"
	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/repository/couchbase"
	"github.com/tuncerburak97/tekrar/internal/repository/mongo"
	"github.com/tuncerburak97/tekrar/internal/repository/oracle"
	"github.com/tuncerburak97/tekrar/internal/repository/postgres"
	"github.com/tuncerburak97/tekrar/internal/repository/sqlite"
)

// NewRepository connects to the archive store selected by cfg.Type and runs
// its migrations.
func NewRepository(ctx context.Context, cfg *config.DBConfig) (ArchiveRepository, error) {
	log.Info().
		Str("type", cfg.Type).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connecting to archive database")

	repo, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := repo.Migrate(log.Logger.WithContext(ctx)); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func connect(ctx context.Context, cfg *config.DBConfig) (ArchiveRepository, error) {
	switch cfg.Type {
	case "", "sqlite":
		return sqlite.Open(cfg.Path)

	case "postgres":
		return postgres.NewPostgresRepository(ctx, postgresURL(cfg))

	case "mongodb":
		return mongo.NewMongoRepository(ctx, mongoURI(cfg), cfg.Database)

	case "oracle":
		connStr := ora.BuildUrl(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, nil)
		return oracle.NewOracleRepository(ctx, connStr)

	case "couchbase":
		connStr := fmt.Sprintf("couchbase://%s:%d", cfg.Host, cfg.Port)
		return couchbase.NewCouchbaseRepository(connStr, cfg.Database, cfg.User, cfg.Password)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func postgresURL(cfg *config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.Pool.MaxConns > 0 {
		q.Set("pool_max_conns", fmt.Sprint(cfg.Pool.MaxConns))
	}
	if cfg.Pool.MinConns > 0 {
		q.Set("pool_min_conns", fmt.Sprint(cfg.Pool.MinConns))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func mongoURI(cfg *config.DBConfig) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}
