package queue

import (
	"fmt"
	"strings"

	"github.com/seenotify/agent/internal/domain"
)

// EventKind discriminates the broker payload variants.
type EventKind string

const (
	// EventPosted carries one newly posted notification.
	EventPosted EventKind = "posted"
	// EventRemoved signals that the source dismissed a notification.
	EventRemoved EventKind = "removed"
	// EventActiveSnapshot carries the full set of currently active
	// notifications, used to reconcile after reconnects.
	EventActiveSnapshot EventKind = "active_snapshot"
)

func (k EventKind) String() string { return string(k) }

func (k EventKind) IsValid() bool {
	switch k {
	case EventPosted, EventRemoved, EventActiveSnapshot:
		return true
	}
	return false
}

// EventMessage is the broker payload for notification events.
type EventMessage struct {
	Kind          EventKind         `json:"type"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Event         *domain.RawEvent  `json:"event,omitempty"`
	Events        []domain.RawEvent `json:"events,omitempty"`
}

func (m EventMessage) Validate() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid event type %q", m.Kind)
	}

	switch m.Kind {
	case EventPosted:
		if m.Event == nil {
			return fmt.Errorf("posted event requires a payload")
		}
		if strings.TrimSpace(m.Event.PackageName) == "" {
			return fmt.Errorf("posted event requires a package name")
		}
	case EventRemoved:
		if m.Event == nil {
			return fmt.Errorf("removed event requires a payload")
		}
		if strings.TrimSpace(m.Event.PackageName) == "" || strings.TrimSpace(m.Event.NativeID) == "" {
			return fmt.Errorf("removed event requires a package name and id")
		}
	case EventActiveSnapshot:
		if m.Events == nil {
			return fmt.Errorf("snapshot event requires an events array")
		}
	}

	return nil
}
