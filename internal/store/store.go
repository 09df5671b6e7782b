// Package store owns the in-memory notification collection and its
// read/unread lifecycle. All mutation of the collection goes through this
// facade; the poller only delivers raw batches to Ingest.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/traffic-notify/internal/domain"
	"github.com/couchcryptid/traffic-notify/internal/observability"
	"github.com/couchcryptid/traffic-notify/internal/persist"
)

// Publisher fans newly introduced notifications out to downstream
// consumers. A nil Publisher disables fan-out.
type Publisher interface {
	PublishNew(ctx context.Context, items []domain.Notification) error
}

// Snapshot is the consistent view handed to subscribers after every change.
type Snapshot struct {
	Items       []domain.Notification `json:"items"`
	Unread      int                   `json:"unread"`
	LastUpdated time.Time             `json:"last_updated"`
}

// Subscriber receives a snapshot synchronously after each mutation.
type Subscriber func(Snapshot)

// NotificationStore is the single owner of the notification collection.
// Every mutating operation persists the result (best-effort) and notifies
// subscribers before returning, so a read right after a write sees the
// write.
type NotificationStore struct {
	mu          sync.Mutex
	items       []domain.Notification
	lastUpdated time.Time
	subscribers map[int]Subscriber
	nextSubID   int

	cache     persist.Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a NotificationStore backed by the given cache, hydrated from
// whatever the cache holds. Pass a nil publisher to disable Kafka fan-out.
func New(ctx context.Context, cache persist.Store, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *NotificationStore {
	s := &NotificationStore{
		subscribers: make(map[int]Subscriber),
		cache:       cache,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
	}

	items, err := cache.Load(ctx)
	if err != nil {
		// Load absorbs bad cached state itself; an error here means the
		// backend misbehaved. Start empty either way.
		logger.Warn("loading notification cache failed, starting empty", "error", err)
		items = nil
	}
	domain.SortByCreatedAt(items)
	s.items = items
	s.updateGauges()
	if len(items) > 0 {
		logger.Info("restored notifications from cache", "count", len(items))
	}
	return s
}

// Ingest normalizes a raw incident batch for the given city and merges it
// into the collection. Malformed records are dropped individually; existing
// items keep their read state; the result is persisted and newly introduced
// items are published downstream. Called by the poller once per tick.
func (s *NotificationStore) Ingest(ctx context.Context, cityScope string, raw []json.RawMessage) {
	incoming := make([]domain.Notification, 0, len(raw))
	for _, rec := range raw {
		n, ok := domain.Normalize(cityScope, rec)
		if !ok {
			s.metrics.RecordsSkipped.Inc()
			s.logger.Warn("skipping malformed incident record", "city", cityScope)
			continue
		}
		incoming = append(incoming, n)
	}
	s.metrics.RecordsNormalized.Add(float64(len(incoming)))

	s.mu.Lock()
	known := make(map[string]struct{}, len(s.items))
	for _, n := range s.items {
		known[n.ID] = struct{}{}
	}

	s.items = domain.Merge(s.items, incoming)
	s.lastUpdated = time.Now().UTC()

	var added []domain.Notification
	for _, n := range s.items {
		if _, ok := known[n.ID]; !ok {
			added = append(added, n)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if len(added) > 0 {
		s.metrics.NotificationsAdded.Add(float64(len(added)))
		s.logger.Info("new notifications", "city", cityScope, "count", len(added))
		s.publishNew(ctx, added)
	}

	s.persist(ctx, snap.Items)
	s.notify(snap)
}

// Items returns a copy of the collection, newest first.
func (s *NotificationStore) Items() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.items...)
}

// UnreadCount derives the number of unread notifications. It is never
// stored independently, so it cannot drift from the collection.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unread(s.items)
}

// LastUpdated reports when the collection last changed via Ingest, for
// staleness display during feed outages.
func (s *NotificationStore) LastUpdated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdated
}

// SnapshotNow returns the current consistent view.
func (s *NotificationStore) SnapshotNow() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// MarkAsRead marks one notification read. Unknown IDs are a no-op: the UI
// may race a delete against a mark and neither should crash the session.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id string) {
	s.mutate(ctx, func() bool {
		for i := range s.items {
			if s.items[i].ID == id {
				if s.items[i].Read {
					return false
				}
				s.items[i].Read = true
				return true
			}
		}
		return false
	})
}

// ToggleRead flips the read state of one notification. Unknown IDs are a
// no-op.
func (s *NotificationStore) ToggleRead(ctx context.Context, id string) {
	s.mutate(ctx, func() bool {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].Read = !s.items[i].Read
				return true
			}
		}
		return false
	})
}

// DeleteOne removes one notification. Unknown IDs are a no-op. This is the
// only way an item leaves the collection; polling never removes items.
func (s *NotificationStore) DeleteOne(ctx context.Context, id string) {
	s.mutate(ctx, func() bool {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items = append(s.items[:i], s.items[i+1:]...)
				return true
			}
		}
		return false
	})
}

// MarkAllAsRead marks every notification read.
func (s *NotificationStore) MarkAllAsRead(ctx context.Context) {
	s.mutate(ctx, func() bool {
		changed := false
		for i := range s.items {
			if !s.items[i].Read {
				s.items[i].Read = true
				changed = true
			}
		}
		return changed
	})
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription.
func (s *NotificationStore) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// mutate applies fn under the lock and, when it reports a change, persists
// and notifies with the resulting snapshot.
func (s *NotificationStore) mutate(ctx context.Context, fn func() bool) {
	s.mu.Lock()
	changed := fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if !changed {
		return
	}
	s.persist(ctx, snap.Items)
	s.notify(snap)
}

// persist writes the collection through the cache port. Failures are
// swallowed: in-memory state stays authoritative for the session.
func (s *NotificationStore) persist(ctx context.Context, items []domain.Notification) {
	if err := s.cache.Save(ctx, items); err != nil {
		s.metrics.PersistFailures.Inc()
		s.logger.Warn("persisting notifications failed", "error", err)
	}
}

func (s *NotificationStore) publishNew(ctx context.Context, added []domain.Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishNew(ctx, added); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("publishing new notifications failed", "error", err, "count", len(added))
	}
}

// notify delivers the snapshot to all subscribers synchronously, outside
// the collection lock so callbacks may call back into the store.
func (s *NotificationStore) notify(snap Snapshot) {
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	s.updateGauges()
}

func (s *NotificationStore) snapshotLocked() Snapshot {
	return Snapshot{
		Items:       append([]domain.Notification(nil), s.items...),
		Unread:      unread(s.items),
		LastUpdated: s.lastUpdated,
	}
}

func (s *NotificationStore) updateGauges() {
	s.mu.Lock()
	total := len(s.items)
	un := unread(s.items)
	s.mu.Unlock()
	s.metrics.NotificationsTotal.Set(float64(total))
	s.metrics.NotificationsUnread.Set(float64(un))
}

func unread(items []domain.Notification) int {
	count := 0
	for _, n := range items {
		if !n.Read {
			count++
		}
	}
	return count
}
