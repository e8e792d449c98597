// Package store owns the canonical in-app notification feed: a bounded,
// deduplicated, newest-first collection with write-through persistence.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/seenotify/agent/internal/domain"
	"github.com/seenotify/agent/internal/observability"
	"github.com/seenotify/agent/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultKey is the blob key the whole collection is persisted under.
	DefaultKey = "notifications"

	defaultCapacity    = 100
	defaultDedupWindow = 60 * time.Second
)

// Filter selects records from the store. Zero-value fields do not filter.
// Fields compose by logical AND; the text filter is applied last.
type Filter struct {
	// Category filters by display category. CategoryAll and the empty
	// string match everything; the virtual CategorySpam selects records
	// the classifier flagged, regardless of their stored category.
	Category domain.Category

	// Package filters by exact source package identifier.
	Package string

	// Text is a case-insensitive substring match over title, message,
	// and sender.
	Text string
}

// Store is the single source of truth for the notification feed. All
// mutations are serialized behind one mutex and followed by a full-blob
// persist before the call returns (write-through).
type Store struct {
	blob    storage.Blob
	key     string
	cap     int
	window  time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	records []domain.NotificationRecord
}

func New(blob storage.Blob, capacity int, dedupWindow time.Duration, logger *zap.Logger) (*Store, error) {
	if blob == nil {
		return nil, fmt.Errorf("blob storage is required")
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if dedupWindow <= 0 {
		dedupWindow = defaultDedupWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		blob:   blob,
		key:    DefaultKey,
		cap:    capacity,
		window: dedupWindow,
		logger: logger,
	}, nil
}

func (s *Store) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Load restores the persisted collection, typically once at process start.
// Display times are recomputed from PostedAt; the persisted strings are
// never trusted across restarts.
func (s *Store) Load(ctx context.Context) error {
	value, found, err := s.blob.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to load notification blob: %w", err)
	}
	if !found || strings.TrimSpace(value) == "" {
		return nil
	}

	var records []domain.NotificationRecord
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return fmt.Errorf("failed to decode notification blob: %w", err)
	}

	for i := range records {
		records[i].RefreshDisplayTime()
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.metrics.SetStoreSize(len(records))
	return nil
}

// Add inserts a record unless it duplicates an existing one. A duplicate is
// either an exact id match, or the same app and message posted within the
// dedup window — the heuristic that collapses one logical notification
// arriving via both the live listener and an active-snapshot refresh.
// Returns false for duplicates.
func (s *Store) Add(ctx context.Context, record domain.NotificationRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDuplicateLocked(record) {
		s.metrics.IncDuplicateSuppressed()
		return false
	}

	s.records = append([]domain.NotificationRecord{record}, s.records...)
	s.evictLocked()
	s.persistLocked(ctx)
	return true
}

// Remove deletes every record whose id starts with packageName:nativeID.
// The OS removed event carries only those two fields, not the full
// composite key. Returns the number of records removed.
func (s *Store) Remove(ctx context.Context, packageName, nativeID string) int {
	prefix := domain.RemovalPrefix(packageName, nativeID)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if strings.HasPrefix(r.ID, prefix) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0
	}

	s.records = kept
	s.persistLocked(ctx)
	return removed
}

// MarkRead flags the record as read; no-op when the id is absent.
func (s *Store) MarkRead(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].IsRead = true
			s.persistLocked(ctx)
			return true
		}
	}
	return false
}

// Delete removes the record with the exact id.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.persistLocked(ctx)
			return true
		}
	}
	return false
}

// SetClassification applies a classifier verdict to the record if it is
// still present. A verdict resolving after the record was deleted is
// discarded. When keepLocal is true an already-classified record is left
// untouched (reconciliation must not overwrite a local verdict).
func (s *Store) SetClassification(ctx context.Context, id string, isSpam bool, confidence float64, keepLocal bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if keepLocal && s.records[i].Classified() {
			return false
		}
		s.records[i].SetClassification(isSpam, confidence)
		s.persistLocked(ctx)
		return true
	}
	return false
}

// ReplaceActiveSnapshot reconciles the store against a full listing of the
// currently visible OS notifications. Only records with unseen ids are
// appended; records already present keep their local isRead state and
// classification. Returns the number of records added.
func (s *Store) ReplaceActiveSnapshot(ctx context.Context, records []domain.NotificationRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		seen[r.ID] = struct{}{}
	}

	added := 0
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		s.records = append(s.records, r)
		added++
	}
	if added == 0 {
		return 0
	}

	s.evictLocked()
	s.persistLocked(ctx)
	return added
}

// Clear empties the store.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.persistLocked(ctx)
}

// Query returns the matching records newest-first by PostedAt. Ordering is
// enforced here rather than at insert time: insertion stays O(1) and the
// sort is cheap under the capacity cap. Query never fails; the read path
// must stay available regardless of ingestion state.
func (s *Store) Query(filter Filter) []domain.NotificationRecord {
	s.mu.Lock()
	snapshot := make([]domain.NotificationRecord, len(s.records))
	copy(snapshot, s.records)
	s.mu.Unlock()

	matched := snapshot[:0]
	for _, r := range snapshot {
		if !matchCategory(r, filter.Category) {
			continue
		}
		if filter.Package != "" && r.SourcePackage != filter.Package {
			continue
		}
		matched = append(matched, r)
	}

	if text := strings.ToLower(strings.TrimSpace(filter.Text)); text != "" {
		filtered := matched[:0]
		for _, r := range matched {
			if strings.Contains(strings.ToLower(r.Title), text) ||
				strings.Contains(strings.ToLower(r.Message), text) ||
				strings.Contains(strings.ToLower(r.Sender), text) {
				filtered = append(filtered, r)
			}
		}
		matched = filtered
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].PostedAt.After(matched[j].PostedAt)
	})

	return matched
}

// Get returns the record with the exact id.
func (s *Store) Get(id string) (*domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			r := s.records[i]
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) isDuplicateLocked(record domain.NotificationRecord) bool {
	for _, existing := range s.records {
		if existing.ID == record.ID {
			return true
		}
		if existing.SourceApp == record.SourceApp &&
			existing.Message == record.Message &&
			absDuration(existing.PostedAt.Sub(record.PostedAt)) < s.window {
			return true
		}
	}
	return false
}

func (s *Store) evictLocked() {
	for len(s.records) > s.cap {
		oldest := 0
		for i := 1; i < len(s.records); i++ {
			if s.records[i].PostedAt.Before(s.records[oldest].PostedAt) {
				oldest = i
			}
		}
		s.records = append(s.records[:oldest], s.records[oldest+1:]...)
		s.metrics.IncRecordEvicted()
	}
}

// persistLocked writes the whole collection through to durable storage.
// On failure the in-memory collection stays authoritative for the session;
// the next successful mutation rewrites the full blob.
func (s *Store) persistLocked(ctx context.Context) {
	s.metrics.SetStoreSize(len(s.records))

	payload, err := json.Marshal(s.records)
	if err != nil {
		s.metrics.IncPersistFailure()
		s.logger.Error("failed to encode notification blob", zap.Error(err))
		return
	}

	if err := s.blob.Set(ctx, s.key, string(payload)); err != nil {
		s.metrics.IncPersistFailure()
		s.logger.Error("failed to persist notification blob",
			zap.Int("records", len(s.records)),
			zap.Error(err),
		)
	}
}

func matchCategory(r domain.NotificationRecord, category domain.Category) bool {
	switch category {
	case "", domain.CategoryAll:
		return true
	case domain.CategorySpam:
		return r.FlaggedSpam()
	default:
		return r.Category == category
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
