// Package backend forwards accepted notifications to the external backend.
// Forwarding is fire-and-forget: a failure is logged and counted but never
// surfaces to the ingestion path.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/seenotify/agent/internal/domain"
	"github.com/seenotify/agent/internal/observability"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

type forwardMetadata struct {
	Sender string `json:"sender"`
	IsRead bool   `json:"isRead"`
}

type forwardRequest struct {
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	App      string          `json:"app"`
	Category string          `json:"category"`
	Time     string          `json:"time"`
	Metadata forwardMetadata `json:"metadata"`
}

// Forwarder ships accepted records to the backend notification endpoint.
type Forwarder struct {
	client  *resty.Client
	baseURL string
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewForwarder(baseURL string, logger *zap.Logger) (*Forwarder, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return &Forwarder{
		client:  client,
		baseURL: trimmedURL,
		logger:  logger,
	}, nil
}

func (f *Forwarder) SetMetrics(metrics *observability.Metrics) {
	if f != nil {
		f.metrics = metrics
	}
}

// Forward posts one record to the backend. Errors are swallowed after
// logging so callers can invoke it inline without branching.
func (f *Forwarder) Forward(ctx context.Context, record domain.NotificationRecord) {
	if f == nil || f.client == nil {
		return
	}

	reqBody := forwardRequest{
		Title:    record.Title,
		Message:  record.Message,
		App:      record.SourceApp,
		Category: record.Category.String(),
		Time:     record.DisplayTime,
		Metadata: forwardMetadata{
			Sender: record.Sender,
			IsRead: record.IsRead,
		},
	}

	response, err := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(f.baseURL + "/api/notifications")

	logger := observability.WithContextLogger(f.logger, ctx)
	if err != nil {
		f.metrics.IncBackendForwardFailure()
		logger.Warn("backend forward failed",
			zap.String("notificationId", record.ID),
			zap.Error(err),
		)
		return
	}
	if response.StatusCode() < http.StatusOK || response.StatusCode() >= http.StatusMultipleChoices {
		f.metrics.IncBackendForwardFailure()
		logger.Warn("backend rejected notification",
			zap.String("notificationId", record.ID),
			zap.Int("statusCode", response.StatusCode()),
		)
		return
	}

	logger.Debug("notification forwarded",
		zap.String("notificationId", record.ID),
		zap.Int("statusCode", response.StatusCode()),
	)
}
