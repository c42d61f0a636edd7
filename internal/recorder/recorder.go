package recorder

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tuncerburak97/tekrar/internal/ledger"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
)

const (
	SignalStart     = "start"
	SignalHeaders   = "headers"
	SignalConcluded = "concluded"

	resultRecorded  = "recorded"
	resultIgnored   = "ignored"
	resultFiltered  = "filtered"
	resultUnmatched = "unmatched"
)

var staticSuffixes = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".webp",
	".svg", ".ico", ".ttf", ".woff", ".woff2",
}

// Recorder turns lifecycle signals into finalized records. Signal handlers
// never fail: anything unexpected is dropped.
type Recorder struct {
	state   *ledger.State
	logger  zerolog.Logger
	metrics *metrics.MetricsCollector
	now     func() time.Time
}

func New(state *ledger.State, logger zerolog.Logger, metrics *metrics.MetricsCollector) *Recorder {
	return &Recorder{
		state:   state,
		logger:  logger.With().Str("component", "recorder").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

// Eligible reports whether a request of the given resource type and URL is
// worth recording: only script-issued requests that are not static assets.
func Eligible(resourceType, rawURL string) bool {
	if resourceType != model.ResourceXHR {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, suffix := range staticSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}

func (r *Recorder) SetRecording(on bool) {
	r.state.SetRecording(on)
	r.logger.Info().Bool("recording", on).Msg("Recording state changed")
}

func (r *Recorder) Recording() bool {
	return r.state.Recording()
}

// active reports whether signals should be processed at all. Replay traffic
// is never captured, whatever the recording flag says.
func (r *Recorder) active() bool {
	return !r.state.Replaying() && r.state.Recording()
}

func (r *Recorder) OnRequestStart(ev model.StartEvent) {
	if !r.active() || ev.RequestID == "" {
		r.observe(SignalStart, resultIgnored)
		return
	}
	if !Eligible(ev.Type, ev.URL) {
		r.observe(SignalStart, resultFiltered)
		return
	}

	record := model.RecordedRequest{
		RequestID: ev.RequestID,
		URL:       ev.URL,
		Method:    ev.Method,
		Timestamp: r.now().UTC(),
	}
	if !ev.Body.Empty() {
		record.Body = ev.Body
	}

	if evicted := r.state.Start(ev.RequestID, record); evicted != "" {
		r.logger.Warn().
			Str("request_id", evicted).
			Msg("Pending table full, evicted oldest pending request")
	}

	r.logger.Debug().
		Str("request_id", ev.RequestID).
		Str("method", ev.Method).
		Str("url", ev.URL).
		Msg("Request started")
	r.observe(SignalStart, resultRecorded)
}

func (r *Recorder) OnHeadersSent(ev model.HeadersEvent) {
	if !r.active() {
		r.observe(SignalHeaders, resultIgnored)
		return
	}
	if !r.state.AttachHeaders(ev.RequestID, ev.Headers) {
		r.observe(SignalHeaders, resultUnmatched)
		return
	}
	r.observe(SignalHeaders, resultRecorded)
}

// OnRequestConcluded handles both completion and error; a failed request is
// recorded exactly like a successful one.
func (r *Recorder) OnRequestConcluded(ev model.ConcludedEvent) {
	if !r.active() {
		r.observe(SignalConcluded, resultIgnored)
		return
	}
	if !r.state.Conclude(ev.RequestID) {
		r.observe(SignalConcluded, resultUnmatched)
		return
	}

	event := r.logger.Debug().Str("request_id", ev.RequestID)
	if ev.Failed() {
		event = event.Str("error", ev.Error)
	}
	event.Msg("Request recorded")
	r.observe(SignalConcluded, resultRecorded)
}

func (r *Recorder) All() []model.RecordedRequest {
	return r.state.All()
}

func (r *Recorder) Clear() {
	r.state.Clear()
	r.logger.Info().Msg("Recorded requests cleared")
	r.syncGauges()
}

func (r *Recorder) observe(signal, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveSignal(signal, result)
	r.syncGauges()
}

func (r *Recorder) syncGauges() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetLedgerState(r.state.Sizes())
}
