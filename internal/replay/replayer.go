// Package replay rebuilds the oldest recorded request and sends it again
// with freshly looked-up cookies.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tuncerburak97/tekrar/internal/ledger"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
)

// CookieStore returns the cookies visible for a host.
type CookieStore interface {
	Cookies(ctx context.Context, host string) ([]model.Cookie, error)
}

// Dispatcher sends a reconstructed request and returns the response status.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *model.OutboundRequest) (int, error)
}

// Transformer may rewrite a reconstructed request before it is sent.
type Transformer interface {
	TransformReplay(ctx context.Context, req *model.OutboundRequest) error
}

type Replayer struct {
	state       *ledger.State
	cookies     CookieStore
	dispatcher  Dispatcher
	transformer Transformer
	logger      zerolog.Logger
	metrics     *metrics.MetricsCollector
}

func New(state *ledger.State, cookies CookieStore, dispatcher Dispatcher, logger zerolog.Logger, metrics *metrics.MetricsCollector) *Replayer {
	return &Replayer{
		state:      state,
		cookies:    cookies,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "replayer").Logger(),
		metrics:    metrics,
	}
}

// WithTransformer installs a request rewrite hook.
func (r *Replayer) WithTransformer(t Transformer) *Replayer {
	r.transformer = t
	return r
}

// Replay resends the oldest finalized record. The record is never removed,
// so repeated calls send the same request again. While the call runs the
// recorder ignores all traffic, and only one replay may run at a time.
func (r *Replayer) Replay(ctx context.Context) (outcome model.ReplayOutcome) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveReplay(kind(outcome.Err), time.Since(start))
		}
	}()

	if !r.state.BeginReplay() {
		return failure(ErrReplayInProgress)
	}
	defer r.state.EndReplay()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("Replay panicked")
			outcome = failure(ErrDispatchFailure)
		}
	}()

	record, ok := r.state.Oldest()
	if !ok {
		return failure(ErrNoRecordsAvailable)
	}

	ctx, span := otel.Tracer("tekrar/replay").Start(ctx, "replay")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", record.Method),
		attribute.String("url.full", record.URL),
	)

	status, err := r.replay(ctx, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn().
			Err(err).
			Str("method", record.Method).
			Str("url", record.URL).
			Msg("Replay failed")
		return failure(err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	r.logger.Info().
		Str("method", record.Method).
		Str("url", record.URL).
		Int("status_code", status).
		Dur("duration", time.Since(start)).
		Msg("Replay completed")
	return model.ReplayOutcome{Success: true, Status: status}
}

func (r *Replayer) replay(ctx context.Context, record model.RecordedRequest) (int, error) {
	host, err := ParseHost(record.URL)
	if err != nil {
		return 0, err
	}

	var cookies []model.Cookie
	if r.cookies != nil {
		cookies, err = r.cookies.Cookies(ctx, host)
		if err != nil {
			r.logger.Debug().Err(err).Str("host", host).Msg("Cookie lookup failed, replaying without cookies")
			cookies = nil
		}
	}

	req, err := Build(record, cookies)
	if err != nil {
		return 0, err
	}

	if r.transformer != nil {
		if err := r.transformer.TransformReplay(ctx, req); err != nil {
			r.logger.Debug().Err(err).Msg("Replay script failed")
			return 0, fmt.Errorf("%w: transform", ErrDispatchFailure)
		}
	}

	status, err := r.dispatcher.Dispatch(ctx, req)
	if err != nil {
		// Transport detail stays in debug logs only.
		r.logger.Debug().Err(err).Str("url", record.URL).Msg("Replay dispatch error")
		return 0, ErrDispatchFailure
	}
	return status, nil
}

func failure(err error) model.ReplayOutcome {
	return model.ReplayOutcome{Success: false, Error: publicMessage(err), Err: err}
}

// publicMessage strips wrapped detail so callers only see the error kind.
func publicMessage(err error) string {
	for _, sentinel := range []error{ErrNoRecordsAvailable, ErrInvalidURL, ErrReplayInProgress, ErrDispatchFailure} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ErrDispatchFailure.Error()
}
