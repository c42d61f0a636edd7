package couchbase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/repository/migrations"
)

type CouchbaseRepository struct {
	Cluster *gocb.Cluster
	Bucket  *gocb.Bucket
}

func NewCouchbaseRepository(connStr, bucketName, username, password string) (*CouchbaseRepository, error) {
	cluster, err := gocb.Connect(
		connStr,
		gocb.ClusterOptions{
			Username: username,
			Password: password,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to Couchbase: %w", err)
	}

	bucket := cluster.Bucket(bucketName)
	if err := bucket.WaitUntilReady(5*time.Second, nil); err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("bucket not ready: %w", err)
	}

	return &CouchbaseRepository{
		Cluster: cluster,
		Bucket:  bucket,
	}, nil
}

func documentKey(entry *model.ArchiveEntry) string {
	return "request_" + entry.ID
}

func (r *CouchbaseRepository) SaveRecord(ctx context.Context, entry *model.ArchiveEntry) error {
	_, err := r.Bucket.DefaultCollection().Upsert(documentKey(entry), entry, &gocb.UpsertOptions{Context: ctx})
	return err
}

func (r *CouchbaseRepository) SaveRecords(ctx context.Context, entries []*model.ArchiveEntry) error {
	collection := r.Bucket.DefaultCollection()
	for _, entry := range entries {
		if _, err := collection.Upsert(documentKey(entry), entry, &gocb.UpsertOptions{Context: ctx}); err != nil {
			return err
		}
	}
	return nil
}

func (r *CouchbaseRepository) Close() error {
	return r.Cluster.Close(nil)
}

func (r *CouchbaseRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("Starting Couchbase migrations")

	for _, indexQuery := range migrations.GetCouchbaseIndexes(r.Bucket.Name()) {
		_, err := r.Cluster.Query(indexQuery, &gocb.QueryOptions{Context: ctx})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			log.Error().Err(err).Str("query", indexQuery).Msg("Failed to create Couchbase index")
			return fmt.Errorf("index creation error: %w", err)
		}
	}

	log.Info().Msg("Couchbase migrations completed successfully")
	return nil
}
