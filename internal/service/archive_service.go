// Package service runs the archive sink: finalized records are queued and
// written in batches to the configured repository.
package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/repository"
	"go.uber.org/zap"
)

const queueName = "archive"

var errQueueFull = errors.New("archive queue full")

type ArchiveService struct {
	repo          repository.ArchiveRepository
	entries       chan *model.ArchiveEntry
	workerCount   int
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	done          chan struct{}
	mu            sync.RWMutex
	closed        bool
	metrics       *metrics.MetricsCollector
	logger        *zap.Logger
	now           func() time.Time
}

func NewArchiveService(repo repository.ArchiveRepository, cfg config.ArchiveConfig, metrics *metrics.MetricsCollector, logger *zap.Logger) *ArchiveService {
	s := &ArchiveService{
		repo:          repo,
		entries:       make(chan *model.ArchiveEntry, max(cfg.BufferSize, 1)),
		workerCount:   max(cfg.Workers, 1),
		batchSize:     max(cfg.BatchSize, 1),
		flushInterval: cfg.FlushInterval,
		done:          make(chan struct{}),
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
	if s.flushInterval <= 0 {
		s.flushInterval = 100 * time.Millisecond
	}

	s.startWorkers()
	return s
}

func (s *ArchiveService) startWorkers() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.processEntries(i)
	}
	go s.monitorBuffer()
}

// Archive queues record without blocking. It reports false when the queue is
// full or the service has shut down; the record is then dropped.
func (s *ArchiveService) Archive(record model.RecordedRequest) bool {
	entry := &model.ArchiveEntry{
		ID:         uuid.New().String(),
		RequestID:  record.RequestID,
		Method:     record.Method,
		URL:        record.URL,
		Timestamp:  record.Timestamp,
		ArchivedAt: s.now().UTC(),
		Headers:    record.Headers,
		Body:       record.Body,
	}
	if u, err := url.Parse(record.URL); err == nil {
		entry.Host = u.Hostname()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.entries <- entry:
		return true
	default:
		if s.metrics != nil {
			s.metrics.LogError("archive_enqueue", errQueueFull)
		}
		s.logger.Warn("Archive queue full, dropping record",
			zap.String("request_id", record.RequestID),
			zap.String("url", record.URL),
		)
		return false
	}
}

func (s *ArchiveService) processEntries(workerID int) {
	defer s.wg.Done()

	ctx := context.Background()
	batch := make([]*model.ArchiveEntry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-s.entries:
			if !ok {
				if len(batch) > 0 {
					s.saveBatch(ctx, workerID, batch)
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				s.saveBatch(ctx, workerID, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.saveBatch(ctx, workerID, batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *ArchiveService) saveBatch(ctx context.Context, workerID int, batch []*model.ArchiveEntry) {
	start := time.Now()
	if err := s.repo.SaveRecords(ctx, batch); err != nil {
		if s.metrics != nil {
			s.metrics.LogError("batch_archive_save", err)
		}
		s.logger.Error("Failed to save archive batch",
			zap.Error(err),
			zap.Int("worker", workerID),
			zap.Int("batch_size", len(batch)),
			zap.String("operation", "save_records"),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveBatchSave(queueName, time.Since(start), len(batch))
	}
}

// Shutdown stops accepting records, flushes what is queued and closes the
// repository.
func (s *ArchiveService) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.entries)
	s.mu.Unlock()

	s.wg.Wait()
	close(s.done)
	_ = s.logger.Sync()
	return s.repo.Close()
}

func (s *ArchiveService) monitorBuffer() {
	if s.metrics == nil {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.metrics.ObserveQueueSize(queueName, float64(len(s.entries)))
		}
	}
}
