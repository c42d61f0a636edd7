// Package repository stores finalized records for the write-only archive.
package repository

import (
	"context"

	"github.com/tuncerburak97/tekrar/internal/model"
)

type ArchiveRepository interface {
	SaveRecord(ctx context.Context, entry *model.ArchiveEntry) error
	SaveRecords(ctx context.Context, entries []*model.ArchiveEntry) error
	Migrate(ctx context.Context) error
	Close() error
}
