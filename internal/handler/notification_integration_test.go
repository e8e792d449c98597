package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/seenotify/agent/internal/domain"
	"github.com/seenotify/agent/internal/queue"
	"github.com/seenotify/agent/internal/store"
	"github.com/seenotify/agent/internal/transport"
	"go.uber.org/zap"
)

type memBlob struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemBlob() *memBlob {
	return &memBlob{values: map[string]string{}}
}

func (b *memBlob) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[key]
	return value, ok, nil
}

func (b *memBlob) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

type stubPublisher struct {
	mu       sync.Mutex
	messages []queue.EventMessage
	err      error
}

func (p *stubPublisher) Publish(_ context.Context, msg queue.EventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(newMemBlob(), 100, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return s
}

func newNotificationTestApp(t *testing.T, recordStore NotificationStore) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterNotificationRoutes(app, recordStore); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func seedStore(t *testing.T, recordStore *store.Store, count int) []string {
	t.Helper()

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		record := domain.NotificationRecord{
			ID:            fmt.Sprintf("com.slack:%d::1700000000000", i),
			SourceApp:     "Slack",
			SourcePackage: "com.slack",
			Sender:        "Standup",
			Title:         fmt.Sprintf("Title %d", i),
			Message:       fmt.Sprintf("Message %d", i),
			Category:      domain.CategoryWork,
			PostedAt:      time.Now().Add(time.Duration(i) * time.Minute),
		}
		record.RefreshDisplayTime()
		if !recordStore.Add(context.Background(), record) {
			t.Fatalf("failed to seed record %d", i)
		}
		ids = append(ids, record.ID)
	}
	return ids
}

func TestNotificationIntegration_ListNotifications(t *testing.T) {
	t.Parallel()

	recordStore := newTestStore(t)
	seedStore(t, recordStore, 3)

	spam := domain.NotificationRecord{
		ID:            "com.sketchy:1::1700000000000",
		SourceApp:     "Sketchy",
		SourcePackage: "com.sketchy",
		Sender:        "Unknown",
		Title:         "You won",
		Message:       "Claim your prize",
		Category:      domain.CategoryOther,
		PostedAt:      time.Now().Add(time.Hour),
	}
	spam.SetClassification(true, 0.95)
	if !recordStore.Add(context.Background(), spam) {
		t.Fatal("failed to seed spam record")
	}

	app := newNotificationTestApp(t, recordStore)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/notifications", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Total != 4 || len(parsed.Data) != 4 {
		t.Fatalf("meta = %+v, data len = %d, want total 4", parsed.Meta, len(parsed.Data))
	}
	if parsed.Data[0]["id"] != spam.ID {
		t.Fatalf("first record = %v, want newest id %s", parsed.Data[0]["id"], spam.ID)
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/notifications?category=spam", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Total != 1 || parsed.Data[0]["id"] != spam.ID {
		t.Fatalf("spam filter returned %+v", parsed)
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/notifications?package=com.slack&q=message%202", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Total != 1 {
		t.Fatalf("composed filter total = %d, want 1", parsed.Meta.Total)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications?category=bogus", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid category", resp.StatusCode)
	}
}

func TestNotificationIntegration_CreateNotification(t *testing.T) {
	t.Parallel()

	recordStore := newTestStore(t)
	app := newNotificationTestApp(t, recordStore)

	validBody := `{"packageName":"com.whatsapp","id":"42","title":"Alice","text":"Lunch?","postTime":1700000000000}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications", validBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}

	var created createNotificationResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created.ID != "com.whatsapp:42::1700000000000" || created.Status != "stored" {
		t.Fatalf("created = %+v", created)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/notifications", validBody)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 for duplicate, body=%s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created.Status != "duplicate" {
		t.Fatalf("duplicate status = %s, want duplicate", created.Status)
	}

	missingPackageBody := `{"id":"42","title":"Alice","text":"Lunch?","postTime":1700000000000}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications", missingPackageBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing package", resp.StatusCode)
	}

	contentlessBody := `{"packageName":"com.whatsapp","id":"43","postTime":1700000000000}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications", contentlessBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for contentless event", resp.StatusCode)
	}
}

func TestNotificationIntegration_MarkReadAndDelete(t *testing.T) {
	t.Parallel()

	recordStore := newTestStore(t)
	ids := seedStore(t, recordStore, 2)
	app := newNotificationTestApp(t, recordStore)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications/"+ids[0]+"/read", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	record, err := recordStore.Get(ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !record.IsRead {
		t.Fatal("expected record marked read")
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications/not-exists/read", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/notifications/"+ids[1], "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if recordStore.Len() != 1 {
		t.Fatalf("store len = %d, want 1 after delete", recordStore.Len())
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/notifications/not-exists", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/notifications", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if recordStore.Len() != 0 {
		t.Fatalf("store len = %d, want 0 after clear", recordStore.Len())
	}
}

func TestEventIntegration_IngestEvent(t *testing.T) {
	t.Parallel()

	publisher := &stubPublisher{}
	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterEventRoutes(app, publisher); err != nil {
		t.Fatalf("RegisterEventRoutes() error = %v", err)
	}

	validBody := `{"type":"posted","event":{"packageName":"com.slack","id":"17","title":"Standup","text":"Meeting in 5","postTime":1700000000000}}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/events", validBody)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}

	var accepted map[string]any
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["status"] != "accepted" {
		t.Fatalf("status = %v, want accepted", accepted["status"])
	}
	if accepted["correlationId"] == "" {
		t.Fatal("expected generated correlation id")
	}

	if len(publisher.messages) != 1 || publisher.messages[0].Kind != queue.EventPosted {
		t.Fatalf("published = %+v, want one posted message", publisher.messages)
	}

	invalidBody := `{"type":"posted"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/events", invalidBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid envelope", resp.StatusCode)
	}

	publisher.err = errors.New("broker down")
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/events", validBody)
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when broker unavailable", resp.StatusCode)
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, nil, nil)

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 200 when redis healthy", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, rdb, nil)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}

		resp, _ = performRequest(t, app, http.MethodGet, "/health", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("health status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readyz returns 503 when redis down", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		mr.Close()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, rdb, nil)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}
	})
}
