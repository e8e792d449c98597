package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ClassifierError classifies spam-service call failures as
// transient/permanent.
type ClassifierError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ClassifierError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "classifier error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ClassifierError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a failed call could succeed on a later retry.
// The ingestion path never retries inline either way; reconciliation may
// backfill later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var classifierErr *ClassifierError
	if errors.As(err, &classifierErr) {
		return classifierErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
