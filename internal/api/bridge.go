package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tuncerburak97/tekrar/internal/model"
)

// The bridge accepts payloads shaped like the browser webRequest event
// details, so an extension can forward them unchanged. requestBody uses the
// same formData / raw[{bytes}] shape that GET /requests returns.

type startPayload struct {
	RequestID   string             `json:"requestId"`
	URL         string             `json:"url"`
	Method      string             `json:"method"`
	Type        string             `json:"type"`
	RequestBody *model.RequestBody `json:"requestBody"`
}

type headersPayload struct {
	RequestID      string         `json:"requestId"`
	RequestHeaders []model.Header `json:"requestHeaders"`
}

type concludedPayload struct {
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
}

func bodyOrNil(b *model.RequestBody) *model.RequestBody {
	if b.Empty() {
		return nil
	}
	return b
}

func parseEvent(c *fiber.Ctx, out interface{}, requestID func() string) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed event payload")
	}
	if requestID() == "" {
		return fiber.NewError(fiber.StatusBadRequest, "requestId is required")
	}
	return nil
}

func (h *Handler) onStart(c *fiber.Ctx) error {
	var p startPayload
	if err := parseEvent(c, &p, func() string { return p.RequestID }); err != nil {
		return err
	}
	h.recorder.OnRequestStart(model.StartEvent{
		RequestID: p.RequestID,
		URL:       p.URL,
		Method:    p.Method,
		Type:      p.Type,
		Body:      bodyOrNil(p.RequestBody),
	})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) onHeaders(c *fiber.Ctx) error {
	var p headersPayload
	if err := parseEvent(c, &p, func() string { return p.RequestID }); err != nil {
		return err
	}
	h.recorder.OnHeadersSent(model.HeadersEvent{RequestID: p.RequestID, Headers: p.RequestHeaders})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) onCompleted(c *fiber.Ctx) error {
	var p concludedPayload
	if err := parseEvent(c, &p, func() string { return p.RequestID }); err != nil {
		return err
	}
	h.recorder.OnRequestConcluded(model.ConcludedEvent{RequestID: p.RequestID})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) onErrored(c *fiber.Ctx) error {
	var p concludedPayload
	if err := parseEvent(c, &p, func() string { return p.RequestID }); err != nil {
		return err
	}
	if p.Error == "" {
		p.Error = "unknown error"
	}
	h.recorder.OnRequestConcluded(model.ConcludedEvent{RequestID: p.RequestID, Error: p.Error})
	return c.SendStatus(fiber.StatusNoContent)
}
