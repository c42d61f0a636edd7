package metrics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector(t *testing.T) *MetricsCollector {
	t.Helper()
	m := NewMetricsCollector("tekrar_test", "test", prometheus.NewRegistry())
	t.Cleanup(m.Close)
	return m
}

func TestObserveSignalAndLedgerState(t *testing.T) {
	t.Parallel()
	m := newTestCollector(t)

	m.ObserveSignal("start", "recorded")
	m.ObserveSignal("start", "recorded")
	m.ObserveSignal("start", "ignored")
	m.SetLedgerState(3, 7)

	if got := testutil.ToFloat64(m.SignalCounter.WithLabelValues("test", "start", "recorded")); got != 2 {
		t.Errorf("recorded starts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PendingRequests); got != 3 {
		t.Errorf("pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.LedgerSize); got != 7 {
		t.Errorf("ledger = %v, want 7", got)
	}
}

func TestObserveReplay(t *testing.T) {
	t.Parallel()
	m := newTestCollector(t)

	m.ObserveReplay("success", 20*time.Millisecond)
	m.ObserveReplay("dispatch_failure", time.Millisecond)

	if got := testutil.ToFloat64(m.ReplayCounter.WithLabelValues("test", "success")); got != 1 {
		t.Errorf("successful replays = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ReplayCounter); got != 2 {
		t.Errorf("replay series = %d, want 2", got)
	}
}

func TestObserveRequestFlushesOnClose(t *testing.T) {
	t.Parallel()
	m := NewMetricsCollector("tekrar_test", "test", prometheus.NewRegistry())

	m.ObserveRequest("GET", "/items", "200", 10*time.Millisecond, 512, nil)
	m.ObserveRequest("GET", "/items", "502", 10*time.Millisecond, 0, errors.New("upstream down"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.CollectAndCount(m.RequestCounter) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	m.Close()

	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("test", "GET", "/items", "200")); got != 1 {
		t.Errorf("ok requests = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ErrorCounter); got != 1 {
		t.Errorf("error series = %d, want 1", got)
	}
}

func TestGetMetricsJSON(t *testing.T) {
	t.Parallel()
	m := newTestCollector(t)
	m.SetLedgerState(1, 2)
	m.ObserveQueueSize("archive", 4)

	raw, err := m.GetMetricsJSON()
	if err != nil {
		t.Fatalf("GetMetricsJSON: %v", err)
	}

	var resp MetricsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AppName != "test" {
		t.Errorf("app = %q, want test", resp.AppName)
	}
	if resp.Metrics["ledger_size"] != float64(2) {
		t.Errorf("ledger_size = %v, want 2", resp.Metrics["ledger_size"])
	}
	queues, ok := resp.Metrics["queue_size"].(map[string]interface{})
	if !ok || queues["app=test,queue=archive"] != float64(4) {
		t.Errorf("queue_size = %v", resp.Metrics["queue_size"])
	}
}
