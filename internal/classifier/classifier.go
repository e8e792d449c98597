// Package classifier is the client for the external spam classification
// service. Classification is best-effort enrichment: every call is bounded
// by a timeout and no failure here may block or fail ingestion.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/seenotify/agent/internal/domain"
	"github.com/seenotify/agent/internal/normalize"
)

// DefaultTimeout bounds every classifier call.
const DefaultTimeout = 10 * time.Second

// Verdict is the classifier's judgment for one record.
type Verdict struct {
	IsSpam     bool
	Confidence float64
}

type classifyRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

type classifyResponse struct {
	IsSpam     bool    `json:"is_spam"`
	Confidence float64 `json:"confidence"`
}

// knownNotification is the wire shape of one previously classified record
// returned by the batch endpoint.
type knownNotification struct {
	ID          string  `json:"id"`
	App         string  `json:"app"`
	PackageName string  `json:"packageName,omitempty"`
	Sender      string  `json:"sender"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	IsSpam      bool    `json:"is_spam"`
	Confidence  float64 `json:"confidence"`
	Timestamp   string  `json:"timestamp"`
	Category    string  `json:"category"`
	IsRead      bool    `json:"is_read"`
}

// Client talks to the spam classification service.
type Client struct {
	client  *resty.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewClientWithResty(baseURL, client)
}

func NewClientWithResty(baseURL string, client *resty.Client) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("classifier base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid classifier base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(DefaultTimeout)
	}
	client.SetRetryCount(0)

	return &Client{
		client:  client,
		baseURL: trimmedURL,
	}, nil
}

// Classify submits one record for spam classification.
func (c *Client) Classify(ctx context.Context, record domain.NotificationRecord) (*Verdict, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("classifier is not initialized")
	}

	reqBody := classifyRequest{
		Title:   record.Title,
		Message: record.Message,
		Sender:  record.Sender,
	}

	var result classifyResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&result).
		Post(c.baseURL + "/classify")
	if err != nil {
		return nil, &ClassifierError{
			Message:   "classify request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if err := checkStatus(response); err != nil {
		return nil, err
	}

	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, &ClassifierError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("confidence %v out of range", result.Confidence),
		}
	}

	return &Verdict{
		IsSpam:     result.IsSpam,
		Confidence: result.Confidence,
	}, nil
}

// FetchKnownSpam pulls the batch of previously classified records from the
// backend, used to reconcile classifications discovered out-of-band.
func (c *Client) FetchKnownSpam(ctx context.Context) ([]domain.NotificationRecord, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("classifier is not initialized")
	}

	var result []knownNotification
	response, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(c.baseURL + "/notifications")
	if err != nil {
		return nil, &ClassifierError{
			Message:   "fetch known spam failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if err := checkStatus(response); err != nil {
		return nil, err
	}

	records := make([]domain.NotificationRecord, 0, len(result))
	for _, known := range result {
		records = append(records, known.toRecord())
	}
	return records, nil
}

func (k knownNotification) toRecord() domain.NotificationRecord {
	r := domain.NotificationRecord{
		ID:            k.ID,
		SourceApp:     k.App,
		SourcePackage: k.PackageName,
		Sender:        k.Sender,
		Title:         k.Title,
		Message:       k.Message,
		IsRead:        k.IsRead,
	}
	if r.Sender == "" {
		r.Sender = domain.DefaultSender
	}
	if r.Title == "" {
		r.Title = domain.DefaultTitle
	}

	// The backend reports the virtual spam category on flagged records;
	// locally the stored category stays in the storable set and the flag
	// lives on the classification fields.
	category, err := domain.ParseCategoryFromString(k.Category)
	if err != nil || !category.IsStorable() {
		if r.SourcePackage != "" {
			category = normalize.CategoryFor(r.SourcePackage)
		} else {
			category = domain.CategoryOther
		}
	}
	r.Category = category
	r.SetClassification(k.IsSpam, k.Confidence)

	if postedAt, err := time.Parse(time.RFC3339, k.Timestamp); err == nil {
		r.PostedAt = postedAt
	} else {
		r.PostedAt = time.Now()
	}
	r.RefreshDisplayTime()

	return r
}

func checkStatus(response *resty.Response) error {
	if response == nil {
		return &ClassifierError{
			Message:   "classifier returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(response.Body()))
	message := fmt.Sprintf("classifier returned status %d", statusCode)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &ClassifierError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
