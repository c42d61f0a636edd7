package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/ledger"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
	"go.uber.org/zap"
)

type fakeRepo struct {
	mu      sync.Mutex
	batches [][]*model.ArchiveEntry
	err     error
	block   chan struct{}
	closed  bool
}

func (f *fakeRepo) SaveRecord(ctx context.Context, entry *model.ArchiveEntry) error {
	return f.SaveRecords(ctx, []*model.ArchiveEntry{entry})
}

func (f *fakeRepo) SaveRecords(ctx context.Context, entries []*model.ArchiveEntry) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]*model.ArchiveEntry(nil), entries...))
	return f.err
}

func (f *fakeRepo) Migrate(ctx context.Context) error { return nil }

func (f *fakeRepo) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRepo) saved() []*model.ArchiveEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ArchiveEntry
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func setupTestService(t *testing.T, repo *fakeRepo, cfg config.ArchiveConfig) (*ArchiveService, *metrics.MetricsCollector) {
	t.Helper()
	m := metrics.NewMetricsCollector("tekrar_test", "test", prometheus.NewRegistry())
	t.Cleanup(m.Close)
	return NewArchiveService(repo, cfg, m, zap.NewNop()), m
}

func record(id string) model.RecordedRequest {
	return model.RecordedRequest{
		RequestID: id,
		URL:       "https://api.example.com/items?id=" + id,
		Method:    "GET",
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestArchiveBatchesBySize(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{}
	svc, _ := setupTestService(t, repo, config.ArchiveConfig{Workers: 1, BufferSize: 10, BatchSize: 2, FlushInterval: time.Hour})

	for _, id := range []string{"1", "2", "3"} {
		if !svc.Archive(record(id)) {
			t.Fatalf("Archive(%s) rejected", id)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(repo.saved()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(repo.saved()); got != 2 {
		t.Fatalf("saved %d entries before shutdown, want one full batch of 2", got)
	}

	if err := svc.Shutdown(); err != nil {
		t.Fatal(err)
	}
	saved := repo.saved()
	if len(saved) != 3 {
		t.Fatalf("saved %d entries after shutdown, want 3", len(saved))
	}
	if !repo.closed {
		t.Error("repository not closed")
	}

	e := saved[0]
	if e.ID == "" || e.RequestID != "1" || e.Host != "api.example.com" || e.ArchivedAt.IsZero() {
		t.Errorf("entry = %+v", e)
	}
}

func TestArchiveFlushesOnInterval(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{}
	svc, _ := setupTestService(t, repo, config.ArchiveConfig{Workers: 1, BufferSize: 10, BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	defer svc.Shutdown()

	svc.Archive(record("1"))

	deadline := time.Now().Add(2 * time.Second)
	for len(repo.saved()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(repo.saved()) != 1 {
		t.Error("partial batch was not flushed on the interval")
	}
}

func TestArchiveDropsWhenFull(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{block: make(chan struct{})}
	svc, m := setupTestService(t, repo, config.ArchiveConfig{Workers: 1, BufferSize: 1, BatchSize: 1, FlushInterval: time.Hour})

	// The worker takes the first record and blocks in SaveRecords; the
	// second fills the buffer.
	svc.Archive(record("1"))
	deadline := time.Now().Add(2 * time.Second)
	for len(svc.entries) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !svc.Archive(record("2")) {
		t.Fatal("second record rejected")
	}
	if svc.Archive(record("3")) {
		t.Error("record accepted with a full buffer")
	}
	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("test", "archive_enqueue", errQueueFull.Error())); got != 1 {
		t.Errorf("enqueue errors = %v", got)
	}

	close(repo.block)
	if err := svc.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if svc.Archive(record("4")) {
		t.Error("record accepted after shutdown")
	}
	if got := len(repo.saved()); got != 2 {
		t.Errorf("saved %d entries, want 2", got)
	}
}

func TestArchiveSaveErrorIsCounted(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{err: errors.New("disk full")}
	svc, m := setupTestService(t, repo, config.ArchiveConfig{Workers: 1, BufferSize: 4, BatchSize: 1, FlushInterval: time.Hour})

	svc.Archive(record("1"))
	if err := svc.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("test", "batch_archive_save", "disk full")); got != 1 {
		t.Errorf("save errors = %v", got)
	}
}

func TestArchiveReceivesFinalizedRecords(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{}
	svc, _ := setupTestService(t, repo, config.ArchiveConfig{Workers: 2, BufferSize: 10, BatchSize: 10, FlushInterval: time.Hour})

	state := ledger.NewState(ledger.Options{Recording: true})
	state.OnFinalize(func(r model.RecordedRequest) { svc.Archive(r) })

	state.Start("a", record("a"))
	state.Start("b", record("b"))
	state.Conclude("a")

	if err := svc.Shutdown(); err != nil {
		t.Fatal(err)
	}
	saved := repo.saved()
	if len(saved) != 1 || saved[0].RequestID != "a" {
		t.Errorf("saved = %+v, want only the finalized record", saved)
	}
}
