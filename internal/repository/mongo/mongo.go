package mongo

import (
	"context"
	"fmt"

	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/repository/migrations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "archived_requests"

type MongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoRepository(ctx context.Context, uri, dbName string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to reach MongoDB: %w", err)
	}

	return &MongoRepository{
		client: client,
		coll:   client.Database(dbName).Collection(collectionName),
	}, nil
}

func (r *MongoRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func (r *MongoRepository) SaveRecord(ctx context.Context, entry *model.ArchiveEntry) error {
	_, err := r.coll.InsertOne(ctx, entry)
	return err
}

func (r *MongoRepository) SaveRecords(ctx context.Context, entries []*model.ArchiveEntry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]interface{}, len(entries))
	for i, entry := range entries {
		docs[i] = entry
	}
	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

func (r *MongoRepository) Migrate(ctx context.Context) error {
	indexes := make([]mongo.IndexModel, 0, len(migrations.MongoIndexKeys))
	for _, key := range migrations.MongoIndexKeys {
		indexes = append(indexes, mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}})
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("index creation error: %w", err)
	}
	return nil
}
