// Package api is the control surface: recording switches, ledger access,
// replay, the network-event bridge and cookie sync.
package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tuncerburak97/tekrar/internal/ledger"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/ratelimit"
	"github.com/tuncerburak97/tekrar/internal/recorder"
)

// Replayer resends the oldest record.
type Replayer interface {
	Replay(ctx context.Context) model.ReplayOutcome
}

// CookieWriter replaces the cookies of one domain.
type CookieWriter interface {
	Replace(ctx context.Context, domain string, cookies []model.Cookie) error
}

// Status is the body of GET /status.
type Status struct {
	Recording bool `json:"recording"`
	Replaying bool `json:"replaying"`
	Pending   int  `json:"pending"`
	Records   int  `json:"records"`
}

type Handler struct {
	state    *ledger.State
	recorder *recorder.Recorder
	replayer Replayer
	cookies  CookieWriter
	metrics  *metrics.MetricsCollector
	logger   zerolog.Logger
}

func NewHandler(state *ledger.State, rec *recorder.Recorder, replayer Replayer, cookies CookieWriter, metrics *metrics.MetricsCollector, logger zerolog.Logger) *Handler {
	return &Handler{
		state:    state,
		recorder: rec,
		replayer: replayer,
		cookies:  cookies,
		metrics:  metrics,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Register mounts the control routes on router. limiter may be nil.
func (h *Handler) Register(router fiber.Router, limiter ratelimit.Limiter) {
	if limiter != nil {
		router.Use(ratelimit.Middleware(limiter))
	}

	router.Post("/recording/start", h.startRecording)
	router.Post("/recording/stop", h.stopRecording)
	router.Put("/recording", h.setRecording)
	router.Get("/status", h.status)

	router.Get("/requests", h.listRequests)
	router.Delete("/requests", h.clearRequests)
	router.Post("/replay", h.replay)

	router.Post("/events/start", h.onStart)
	router.Post("/events/headers", h.onHeaders)
	router.Post("/events/completed", h.onCompleted)
	router.Post("/events/errored", h.onErrored)

	router.Put("/cookies/:domain", h.replaceCookies)
	router.Get("/metrics", h.metricsJSON)
}

// RegisterPrometheus serves the Prometheus text format at GET /metrics.
func RegisterPrometheus(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func (h *Handler) startRecording(c *fiber.Ctx) error {
	h.recorder.SetRecording(true)
	return c.JSON(h.currentStatus())
}

func (h *Handler) stopRecording(c *fiber.Ctx) error {
	h.recorder.SetRecording(false)
	return c.JSON(h.currentStatus())
}

func (h *Handler) setRecording(c *fiber.Ctx) error {
	var body struct {
		Recording *bool `json:"recording"`
	}
	if err := c.BodyParser(&body); err != nil || body.Recording == nil {
		return fiber.NewError(fiber.StatusBadRequest, `body must be {"recording": true|false}`)
	}
	h.recorder.SetRecording(*body.Recording)
	return c.JSON(h.currentStatus())
}

func (h *Handler) status(c *fiber.Ctx) error {
	return c.JSON(h.currentStatus())
}

func (h *Handler) currentStatus() Status {
	pending, records := h.state.Sizes()
	return Status{
		Recording: h.state.Recording(),
		Replaying: h.state.Replaying(),
		Pending:   pending,
		Records:   records,
	}
}

func (h *Handler) listRequests(c *fiber.Ctx) error {
	records := h.recorder.All()
	if strings.EqualFold(c.Query("format"), "yaml") {
		out, err := EncodeYAML(records)
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(out)
	}
	return c.JSON(records)
}

func (h *Handler) clearRequests(c *fiber.Ctx) error {
	h.recorder.Clear()
	return c.SendStatus(fiber.StatusNoContent)
}

// replay answers 200 whatever the outcome; failures are reported in the
// body.
func (h *Handler) replay(c *fiber.Ctx) error {
	outcome := h.replayer.Replay(c.UserContext())
	return c.JSON(outcome)
}

func (h *Handler) replaceCookies(c *fiber.Ctx) error {
	if h.cookies == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "cookie store not configured")
	}
	domain := c.Params("domain")
	var cookies []model.Cookie
	if err := c.BodyParser(&cookies); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must be a JSON array of cookies")
	}
	for _, ck := range cookies {
		if ck.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "cookie name is required")
		}
	}

	if err := h.cookies.Replace(c.UserContext(), domain, cookies); err != nil {
		h.logger.Error().Err(err).Str("domain", domain).Msg("Failed to replace cookies")
		return fiber.NewError(fiber.StatusServiceUnavailable, "cookie store unavailable")
	}
	h.logger.Debug().Str("domain", domain).Int("count", len(cookies)).Msg("Cookies replaced")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) metricsJSON(c *fiber.Ctx) error {
	if h.metrics == nil {
		return c.JSON(fiber.Map{})
	}
	out, err := h.metrics.GetMetricsJSON()
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(out)
}
