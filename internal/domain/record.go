package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category represents the display category of a notification.
type Category string

const (
	CategoryWork   Category = "work"
	CategorySocial Category = "social"
	CategoryPromo  Category = "promo"
	CategoryOther  Category = "other"

	// CategorySpam is virtual: it is never stored on a record, only used by
	// query filters to select records the classifier flagged as spam.
	CategorySpam Category = "spam"

	// CategoryAll matches every record in a query filter.
	CategoryAll Category = "all"
)

func (c Category) String() string { return string(c) }

// IsValid reports whether c is a member of the closed category set,
// including the virtual filter-only values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryWork, CategorySocial, CategoryPromo, CategoryOther, CategorySpam, CategoryAll:
		return true
	}
	return false
}

// IsStorable reports whether c may be persisted on a record. The virtual
// spam and all categories exist only for filtering.
func (c Category) IsStorable() bool {
	switch c {
	case CategoryWork, CategorySocial, CategoryPromo, CategoryOther:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// Field defaults applied when the originating event omits a value.
const (
	DefaultSender = "Unknown"
	DefaultTitle  = "Notification"
)

// DisplayTimeLayout formats a post time as a short clock time, e.g. "3:04 PM".
const DisplayTimeLayout = "3:04 PM"

// NotificationRecord is the canonical entity for one mirrored notification.
// The JSON field names are the persisted blob format and the API contract.
type NotificationRecord struct {
	ID            string    `json:"id"`
	SourceApp     string    `json:"app"`
	SourcePackage string    `json:"packageName"`
	Sender        string    `json:"sender"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	PostedAt      time.Time `json:"postedAt"`
	DisplayTime   string    `json:"time"`
	Category      Category  `json:"category"`
	IsRead        bool      `json:"isRead"`
	IsSpam        *bool     `json:"isSpam,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
}

func (r *NotificationRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: record id is required", ErrValidation)
	}
	if strings.TrimSpace(r.SourcePackage) == "" {
		return fmt.Errorf("%w: source package is required", ErrValidation)
	}
	if !r.Category.IsStorable() {
		return fmt.Errorf("%w: invalid stored category %q", ErrValidation, r.Category)
	}
	return nil
}

// Classified reports whether the classifier has produced a verdict for r.
func (r *NotificationRecord) Classified() bool {
	return r.IsSpam != nil
}

// FlaggedSpam reports whether the classifier marked r as spam.
func (r *NotificationRecord) FlaggedSpam() bool {
	return r.IsSpam != nil && *r.IsSpam
}

// SetClassification attaches a classifier verdict to r.
func (r *NotificationRecord) SetClassification(isSpam bool, confidence float64) {
	r.IsSpam = &isSpam
	r.Confidence = &confidence
}

// RefreshDisplayTime recomputes the formatted clock time from PostedAt.
// PostedAt is the source of truth; the persisted string is never trusted.
func (r *NotificationRecord) RefreshDisplayTime() {
	r.DisplayTime = r.PostedAt.Format(DisplayTimeLayout)
}

// RawEvent is one unprocessed notification payload from the OS
// notification-listener shim. PostTime is epoch milliseconds.
type RawEvent struct {
	PackageName string `json:"packageName"`
	NativeID    string `json:"id"`
	Tag         string `json:"tag,omitempty"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text,omitempty"`
	SubText     string `json:"subText,omitempty"`
	PostTime    int64  `json:"postTime"`
}

// CompositeID derives the stable identity of the event. Re-delivery of the
// identical native event always yields the same id.
func (e RawEvent) CompositeID() string {
	return fmt.Sprintf("%s:%s:%s:%d", e.PackageName, e.NativeID, e.Tag, e.PostTime)
}

// PostedAt converts the native epoch-millisecond post time to wall clock.
func (e RawEvent) PostedAt() time.Time {
	return time.UnixMilli(e.PostTime)
}

// RemovalPrefix is the id prefix matched by a removed event, which carries
// only the package and native id, not the full composite key.
func RemovalPrefix(packageName, nativeID string) string {
	return packageName + ":" + nativeID
}
