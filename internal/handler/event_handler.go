package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/seenotify/agent/internal/queue"
)

// EventHandler accepts raw event envelopes over HTTP for shims that cannot
// speak AMQP. Accepted envelopes are published onto the same events queue
// the AMQP shims use, so both paths share one pipeline.
type EventHandler struct {
	publisher queue.Publisher
}

func NewEventHandler(publisher queue.Publisher) (*EventHandler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	return &EventHandler{publisher: publisher}, nil
}

func RegisterEventRoutes(router fiber.Router, publisher queue.Publisher) error {
	h, err := NewEventHandler(publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/events", h.IngestEvent)

	return nil
}

func (h *EventHandler) IngestEvent(c *fiber.Ctx) error {
	var msg queue.EventMessage
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := msg.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if msg.CorrelationID == "" {
		msg.CorrelationID = requestCorrelationID(c)
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}

	if err := h.publisher.Publish(c.Context(), msg); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "failed to enqueue event")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":        "accepted",
		"correlationId": msg.CorrelationID,
	})
}

func requestCorrelationID(c *fiber.Ctx) string {
	return c.Get(fiber.HeaderXRequestID)
}
