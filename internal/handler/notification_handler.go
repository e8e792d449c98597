package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/seenotify/agent/internal/domain"
	"github.com/seenotify/agent/internal/normalize"
	"github.com/seenotify/agent/internal/store"
)

// NotificationStore is the store surface the HTTP handlers need.
type NotificationStore interface {
	Query(filter store.Filter) []domain.NotificationRecord
	Add(ctx context.Context, record domain.NotificationRecord) bool
	MarkRead(ctx context.Context, id string) bool
	Delete(ctx context.Context, id string) bool
	Clear(ctx context.Context)
}

type NotificationHandler struct {
	store NotificationStore
}

func NewNotificationHandler(recordStore NotificationStore) (*NotificationHandler, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	return &NotificationHandler{store: recordStore}, nil
}

func RegisterNotificationRoutes(router fiber.Router, recordStore NotificationStore) error {
	h, err := NewNotificationHandler(recordStore)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/notifications", h.ListNotifications)
	v1.Post("/notifications", h.CreateNotification)
	v1.Post("/notifications/:id/read", h.MarkNotificationRead)
	v1.Delete("/notifications/:id", h.DeleteNotification)
	v1.Delete("/notifications", h.ClearNotifications)

	return nil
}

type listNotificationsResponse struct {
	Data []domain.NotificationRecord `json:"data"`
	Meta listMeta                    `json:"meta"`
}

type listMeta struct {
	Total int `json:"total"`
}

type createNotificationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return toHTTPError(err)
	}

	records := h.store.Query(filter)
	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: records,
		Meta: listMeta{Total: len(records)},
	})
}

// CreateNotification inserts one record directly, bypassing the broker. The
// body is the same raw event shape the queue carries.
func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var event domain.RawEvent
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	record, err := normalize.Record(event)
	if err != nil {
		return toHTTPError(err)
	}
	if record == nil {
		return fiber.NewError(fiber.StatusBadRequest, "event has no content")
	}

	if !h.store.Add(c.Context(), *record) {
		return c.Status(fiber.StatusOK).JSON(createNotificationResponse{
			ID:     record.ID,
			Status: "duplicate",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(createNotificationResponse{
		ID:     record.ID,
		Status: "stored",
	})
}

func (h *NotificationHandler) MarkNotificationRead(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if !h.store.MarkRead(c.Context(), id) {
		return toHTTPError(fmt.Errorf("%w: notification %q", domain.ErrNotFound, id))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":     id,
		"isRead": true,
	})
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if !h.store.Delete(c.Context(), id) {
		return toHTTPError(fmt.Errorf("%w: notification %q", domain.ErrNotFound, id))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) ClearNotifications(c *fiber.Ctx) error {
	h.store.Clear(c.Context())
	return c.SendStatus(fiber.StatusNoContent)
}

func parseFilter(c *fiber.Ctx) (store.Filter, error) {
	filter := store.Filter{
		Package: strings.TrimSpace(c.Query("package")),
		Text:    strings.TrimSpace(c.Query("q")),
	}

	if rawCategory := strings.TrimSpace(c.Query("category")); rawCategory != "" {
		category, err := domain.ParseCategoryFromString(rawCategory)
		if err != nil {
			return store.Filter{}, err
		}
		filter.Category = category
	}

	return filter, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
