// Package proxy is the capture proxy: a reverse proxy whose every forwarded
// call is reported to the recorder as start, headers-sent and concluded
// signals.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
)

// Signals receives the lifecycle of each proxied call.
type Signals interface {
	OnRequestStart(model.StartEvent)
	OnHeadersSent(model.HeadersEvent)
	OnRequestConcluded(model.ConcludedEvent)
}

// CookieSink stores cookies set by upstream responses.
type CookieSink interface {
	Set(ctx context.Context, cookie model.Cookie) error
}

type ProxyHandler struct {
	transport http.RoundTripper
	target    *url.URL
	config    *config.ProxyConfig
	signals   Signals
	cookies   CookieSink
	policy    *HeaderPolicy
	logger    zerolog.Logger
	metrics   *metrics.MetricsCollector
	newID     func() string
}

// NewProxyHandler builds a handler forwarding to cfg.Target. cookies may be
// nil; harvesting also requires cfg.HarvestCookies.
func NewProxyHandler(cfg *config.ProxyConfig, signals Signals, cookies CookieSink, logger zerolog.Logger, metrics *metrics.MetricsCollector) (*ProxyHandler, error) {
	target, err := url.Parse(strings.TrimRight(cfg.Target, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid proxy target: %q is not absolute", cfg.Target)
	}

	if !cfg.HarvestCookies {
		cookies = nil
	}

	return &ProxyHandler{
		transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          cfg.Transport.MaxIdleConns,
			IdleConnTimeout:       cfg.Transport.IdleConnTimeout,
			TLSHandshakeTimeout:   cfg.Transport.TLSTimeout,
			ResponseHeaderTimeout: cfg.Transport.ResponseHeaderTimeout,
			ExpectContinueTimeout: cfg.Transport.ExpectContinueTimeout,
			MaxConnsPerHost:       cfg.Transport.MaxConnsPerHost,
		},
		target:  target,
		config:  cfg,
		signals: signals,
		cookies: cookies,
		policy:  NewHeaderPolicy(),
		logger:  logger.With().Str("component", "proxy").Logger(),
		metrics: metrics,
		newID:   func() string { return uuid.New().String() },
	}, nil
}

func (h *ProxyHandler) Handle(c *fiber.Ctx) error {
	if h.metrics != nil {
		h.metrics.IncActiveRequests()
		defer h.metrics.DecActiveRequests()
	}

	startTime := time.Now()
	requestID := h.newID()
	method := c.Method()
	path := c.Path()
	targetURL := h.target.String() + c.OriginalURL()

	ctx := c.UserContext()
	if h.config.Transport.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Transport.Timeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("tekrar/proxy").Start(ctx, "proxy "+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", targetURL),
		attribute.String("tekrar.request_id", requestID),
	)

	h.logger.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Str("target_url", targetURL).
		Msg("Proxying request")

	body := c.Request().Body()
	h.signals.OnRequestStart(model.StartEvent{
		RequestID: requestID,
		URL:       targetURL,
		Method:    method,
		Type:      ResourceType(func(key string) string { return c.Get(key) }),
		Body:      SnapshotBody(c.Get(fiber.HeaderContentType), body),
	})

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, reqBody)
	if err != nil {
		return h.fail(c, span, requestID, startTime, err, fiber.StatusBadRequest)
	}

	headers := h.policy.FilterRequest(requestHeaders(c))
	for _, hdr := range headers {
		req.Header.Add(hdr.Name, hdr.Value)
	}
	req.Header.Set(RequestIDHeader, requestID)
	h.signals.OnHeadersSent(model.HeadersEvent{RequestID: requestID, Headers: headers})

	resp, err := h.transport.RoundTrip(req)
	if err != nil {
		return h.fail(c, span, requestID, startTime, err, fiber.StatusBadGateway)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return h.fail(c, span, requestID, startTime, err, fiber.StatusBadGateway)
	}

	h.harvestCookies(ctx, resp)
	h.policy.TransformResponse(resp, requestID)
	h.signals.OnRequestConcluded(model.ConcludedEvent{RequestID: requestID})

	duration := time.Since(startTime)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	h.logger.Info().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status_code", resp.StatusCode).
		Dur("duration", duration).
		Int("response_size", len(respBody)).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("Response completed")
	if h.metrics != nil {
		h.metrics.ObserveRequest(method, path, strconv.Itoa(resp.StatusCode), duration, int64(len(respBody)), nil)
	}

	c.Status(resp.StatusCode)
	for k, values := range resp.Header {
		for _, v := range values {
			c.Response().Header.Add(k, v)
		}
	}
	return c.Send(respBody)
}

// fail concludes the capture with an error and answers the client.
func (h *ProxyHandler) fail(c *fiber.Ctx, span trace.Span, requestID string, startTime time.Time, err error, status int) error {
	h.signals.OnRequestConcluded(model.ConcludedEvent{RequestID: requestID, Error: err.Error()})

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.logger.Error().
		Err(err).
		Str("request_id", requestID).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("Failed to proxy request")
	if h.metrics != nil {
		h.metrics.ObserveRequest(c.Method(), c.Path(), strconv.Itoa(status), time.Since(startTime), 0, err)
	}
	return fiber.NewError(status, http.StatusText(status))
}

func (h *ProxyHandler) harvestCookies(ctx context.Context, resp *http.Response) {
	if h.cookies == nil {
		return
	}
	for _, ck := range resp.Cookies() {
		domain := ck.Domain
		if domain == "" {
			domain = h.target.Hostname()
		}
		if err := h.cookies.Set(ctx, model.Cookie{Name: ck.Name, Value: ck.Value, Domain: domain}); err != nil {
			h.logger.Warn().Err(err).Str("cookie", ck.Name).Msg("Failed to store upstream cookie")
		}
	}
}

// requestHeaders lists the client's headers in wire order.
func requestHeaders(c *fiber.Ctx) []model.Header {
	var headers []model.Header
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers = append(headers, model.Header{Name: string(key), Value: string(value)})
	})
	return headers
}
