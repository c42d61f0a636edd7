package metrics

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	defaultCollector *MetricsCollector
	once             sync.Once
)

// GetMetricsCollector returns the singleton collector registered with the
// default Prometheus registry.
func GetMetricsCollector(namespace, appName string) *MetricsCollector {
	once.Do(func() {
		defaultCollector = NewMetricsCollector(namespace, appName, prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

type MetricsCollector struct {
	AppName         string
	RequestDuration *prometheus.HistogramVec
	RequestCounter  *prometheus.CounterVec
	ResponseSize    *prometheus.HistogramVec
	ErrorCounter    *prometheus.CounterVec
	ActiveRequests  prometheus.Gauge
	QueueSize       *prometheus.GaugeVec
	SignalCounter   *prometheus.CounterVec
	PendingRequests prometheus.Gauge
	LedgerSize      prometheus.Gauge
	ReplayCounter   *prometheus.CounterVec
	ReplayDuration  prometheus.Histogram
	bufferChan      chan metricEvent
	done            chan struct{}
	closeOnce       sync.Once
}

type metricEvent struct {
	labels   prometheus.Labels
	duration time.Duration
	size     int64
	err      error
}

type MetricsResponse struct {
	AppName   string                 `json:"app_name"`
	Timestamp time.Time              `json:"timestamp"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// NewMetricsCollector registers every metric with reg.
func NewMetricsCollector(namespace, appName string, reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	appLabel := prometheus.Labels{"app": appName}

	m := &MetricsCollector{
		AppName: appName,
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Proxied request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"app", "method", "path", "status"},
		),

		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of proxied requests",
			},
			[]string{"app", "method", "path", "status"},
		),

		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_size_bytes",
				Help:      "Proxied response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"app", "method", "path", "status"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"app", "type", "error"},
		),

		ActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "active_requests",
				Help:        "Number of in-flight proxied requests",
				ConstLabels: appLabel,
			},
		),

		QueueSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_size",
				Help:      "Current size of the queue",
			},
			[]string{"app", "queue"},
		),

		SignalCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Lifecycle signals seen by the recorder",
			},
			[]string{"app", "signal", "result"},
		),

		PendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "pending_requests",
				Help:        "Requests awaiting their concluding signal",
				ConstLabels: appLabel,
			},
		),

		LedgerSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "ledger_size",
				Help:        "Finalized records held in memory",
				ConstLabels: appLabel,
			},
		),

		ReplayCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replays_total",
				Help:      "Replay attempts by result",
			},
			[]string{"app", "result"},
		),

		ReplayDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "replay_duration_seconds",
				Help:        "Replay duration in seconds",
				Buckets:     []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				ConstLabels: appLabel,
			},
		),

		bufferChan: make(chan metricEvent, 100),
		done:       make(chan struct{}),
	}

	m.startCollector()
	return m
}

func (m *MetricsCollector) startCollector() {
	go func() {
		batch := make([]metricEvent, 0, 100)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case event := <-m.bufferChan:
				batch = append(batch, event)
				if len(batch) >= 100 {
					m.processBatch(batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				if len(batch) > 0 {
					m.processBatch(batch)
					batch = batch[:0]
				}
			case <-m.done:
				m.processBatch(batch)
				return
			}
		}
	}()
}

func (m *MetricsCollector) processBatch(batch []metricEvent) {
	for _, event := range batch {
		if event.err != nil {
			m.LogError("proxy", event.err)
		}
		m.RequestDuration.With(event.labels).Observe(event.duration.Seconds())
		m.RequestCounter.With(event.labels).Inc()
		m.ResponseSize.With(event.labels).Observe(float64(event.size))
	}
}

// ObserveRequest queues one proxied request observation. Observations are
// dropped when the buffer is full rather than blocking the proxy.
func (m *MetricsCollector) ObserveRequest(method, path, status string, duration time.Duration, size int64, err error) {
	event := metricEvent{
		labels: prometheus.Labels{
			"app":    m.AppName,
			"method": method,
			"path":   path,
			"status": status,
		},
		duration: duration,
		size:     size,
		err:      err,
	}

	select {
	case m.bufferChan <- event:
	default:
	}
}

// Close stops the background collector after flushing queued observations.
func (m *MetricsCollector) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *MetricsCollector) IncActiveRequests() {
	m.ActiveRequests.Inc()
}

func (m *MetricsCollector) DecActiveRequests() {
	m.ActiveRequests.Dec()
}

func (m *MetricsCollector) LogError(errorType string, err error) {
	m.ErrorCounter.With(prometheus.Labels{
		"app":   m.AppName,
		"type":  errorType,
		"error": err.Error(),
	}).Inc()
}

// ObserveSignal counts one lifecycle signal. result is "recorded", "ignored"
// or "unmatched".
func (m *MetricsCollector) ObserveSignal(signal, result string) {
	m.SignalCounter.With(prometheus.Labels{
		"app":    m.AppName,
		"signal": signal,
		"result": result,
	}).Inc()
}

func (m *MetricsCollector) SetLedgerState(pending, finalized int) {
	m.PendingRequests.Set(float64(pending))
	m.LedgerSize.Set(float64(finalized))
}

func (m *MetricsCollector) ObserveReplay(result string, duration time.Duration) {
	m.ReplayCounter.With(prometheus.Labels{
		"app":    m.AppName,
		"result": result,
	}).Inc()
	m.ReplayDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) ObserveBatchSave(operation string, duration time.Duration, batchSize int) {
	labels := prometheus.Labels{
		"app":    m.AppName,
		"method": "batch",
		"path":   operation,
		"status": "200",
	}
	m.RequestDuration.With(labels).Observe(duration.Seconds())
	m.RequestCounter.With(labels).Add(float64(batchSize))
}

func (m *MetricsCollector) ObserveQueueSize(queueType string, size float64) {
	m.QueueSize.With(prometheus.Labels{
		"app":   m.AppName,
		"queue": queueType,
	}).Set(size)
}

// GetMetricsJSON returns metrics in JSON format
func (m *MetricsCollector) GetMetricsJSON() ([]byte, error) {
	metrics := MetricsResponse{
		AppName:   m.AppName,
		Timestamp: time.Now(),
		Metrics: map[string]interface{}{
			"request_duration": m.getHistogramMetrics(m.RequestDuration),
			"requests_total":   m.getCounterMetrics(m.RequestCounter),
			"response_size":    m.getHistogramMetrics(m.ResponseSize),
			"errors_total":     m.getCounterMetrics(m.ErrorCounter),
			"active_requests":  m.getGaugeValue(m.ActiveRequests),
			"queue_size":       m.getGaugeVecMetrics(m.QueueSize),
			"signals_total":    m.getCounterMetrics(m.SignalCounter),
			"pending_requests": m.getGaugeValue(m.PendingRequests),
			"ledger_size":      m.getGaugeValue(m.LedgerSize),
			"replays_total":    m.getCounterMetrics(m.ReplayCounter),
		},
	}

	return json.Marshal(metrics)
}

func (m *MetricsCollector) getHistogramMetrics(vec *prometheus.HistogramVec) map[string]float64 {
	metrics := make(map[string]float64)
	ch := make(chan prometheus.Metric, 1000)
	vec.Collect(ch)
	close(ch)

	for metric := range ch {
		dtoMetric := &dto.Metric{}
		if err := metric.Write(dtoMetric); err != nil {
			continue
		}
		hist := dtoMetric.GetHistogram()

		for _, bucket := range hist.GetBucket() {
			metrics[fmt.Sprintf("bucket_%.2f", bucket.GetUpperBound())] += float64(bucket.GetCumulativeCount())
		}
		metrics["sum"] += hist.GetSampleSum()
		metrics["count"] += float64(hist.GetSampleCount())
	}

	return metrics
}

func (m *MetricsCollector) getCounterMetrics(vec *prometheus.CounterVec) map[string]float64 {
	metrics := make(map[string]float64)
	ch := make(chan prometheus.Metric, 1000)
	vec.Collect(ch)
	close(ch)

	for metric := range ch {
		dtoMetric := &dto.Metric{}
		if err := metric.Write(dtoMetric); err != nil {
			continue
		}
		metrics[metricName(dtoMetric)] = dtoMetric.GetCounter().GetValue()
	}

	return metrics
}

func (m *MetricsCollector) getGaugeValue(gauge prometheus.Gauge) float64 {
	dtoMetric := &dto.Metric{}
	if err := gauge.Write(dtoMetric); err != nil {
		return 0
	}
	return dtoMetric.GetGauge().GetValue()
}

func (m *MetricsCollector) getGaugeVecMetrics(vec *prometheus.GaugeVec) map[string]float64 {
	metrics := make(map[string]float64)
	ch := make(chan prometheus.Metric, 1000)
	vec.Collect(ch)
	close(ch)

	for metric := range ch {
		dtoMetric := &dto.Metric{}
		if err := metric.Write(dtoMetric); err != nil {
			continue
		}
		metrics[metricName(dtoMetric)] = dtoMetric.GetGauge().GetValue()
	}

	return metrics
}

func metricName(dtoMetric *dto.Metric) string {
	var labels []string
	for _, label := range dtoMetric.GetLabel() {
		labels = append(labels, fmt.Sprintf("%s=%s", label.GetName(), label.GetValue()))
	}
	return strings.Join(labels, ",")
}
