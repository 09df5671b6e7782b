package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/traffic-notify/internal/domain"
	"github.com/couchcryptid/traffic-notify/internal/observability"
	"github.com/couchcryptid/traffic-notify/internal/store"
)

// --- mocks ---

type memCache struct {
	mu      sync.Mutex
	items   []domain.Notification
	saves   int
	saveErr error
	loadErr error
}

func (m *memCache) Load(_ context.Context) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]domain.Notification(nil), m.items...), nil
}

func (m *memCache) Save(_ context.Context, items []domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.items = append([]domain.Notification(nil), items...)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.Notification
	err       error
}

func (p *recordingPublisher) PublishNew(_ context.Context, items []domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, items...)
	return nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, cache *memCache, pub store.Publisher) *store.NotificationStore {
	t.Helper()
	if cache == nil {
		cache = &memCache{}
	}
	return store.New(context.Background(), cache, pub, discardLogger(), observability.NewMetricsForTesting())
}

func rawBatch(records ...string) []json.RawMessage {
	batch := make([]json.RawMessage, len(records))
	for i, r := range records {
		batch[i] = json.RawMessage(r)
	}
	return batch
}

// --- tests ---

func TestStore_HydratesFromCache(t *testing.T) {
	cache := &memCache{items: []domain.Notification{
		{ID: "a", Message: "cached", CreatedAt: time.Now(), Read: true},
	}}

	s := newTestStore(t, cache, nil)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
	assert.True(t, items[0].Read)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestStore_HydrateFailureStartsEmpty(t *testing.T) {
	cache := &memCache{loadErr: errors.New("disk on fire")}

	s := newTestStore(t, cache, nil)

	assert.Empty(t, s.Items())
}

func TestStore_IngestDropsMalformed(t *testing.T) {
	s := newTestStore(t, nil, nil)

	s.Ingest(context.Background(), "amsterdam", rawBatch(
		`{"description":"Accident on the bridge","delay":950}`,
		`{}`,
	))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.CategoryAccident, items[0].Category)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStore_MarkAsRead(t *testing.T) {
	s := newTestStore(t, nil, nil)
	s.Ingest(context.Background(), "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))

	s.MarkAsRead(context.Background(), "x")

	assert.Equal(t, 0, s.UnreadCount())
	assert.True(t, s.Items()[0].Read)
}

func TestStore_MutationsOnUnknownIDAreNoOps(t *testing.T) {
	cache := &memCache{}
	s := newTestStore(t, cache, nil)
	s.Ingest(context.Background(), "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))
	savesBefore := cache.saves

	s.MarkAsRead(context.Background(), "ghost")
	s.ToggleRead(context.Background(), "ghost")
	s.DeleteOne(context.Background(), "ghost")

	assert.Equal(t, savesBefore, cache.saves, "no-ops must not persist")
	assert.Len(t, s.Items(), 1)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStore_ToggleRead(t *testing.T) {
	s := newTestStore(t, nil, nil)
	s.Ingest(context.Background(), "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))

	s.ToggleRead(context.Background(), "x")
	assert.Equal(t, 0, s.UnreadCount())

	s.ToggleRead(context.Background(), "x")
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStore_DeleteOne(t *testing.T) {
	s := newTestStore(t, nil, nil)
	s.Ingest(context.Background(), "amsterdam", rawBatch(
		`{"id":"x","description":"accident"}`,
		`{"id":"y","description":"road closed"}`,
	))

	s.DeleteOne(context.Background(), "x")

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "y", items[0].ID)
}

func TestStore_MarkAllAsRead(t *testing.T) {
	s := newTestStore(t, nil, nil)
	s.Ingest(context.Background(), "amsterdam", rawBatch(
		`{"id":"x","description":"accident"}`,
		`{"id":"y","description":"road closed"}`,
	))

	s.MarkAllAsRead(context.Background())

	assert.Equal(t, 0, s.UnreadCount())
}

func TestStore_MutationsPersistImmediately(t *testing.T) {
	cache := &memCache{}
	s := newTestStore(t, cache, nil)
	s.Ingest(context.Background(), "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))

	s.MarkAsRead(context.Background(), "x")

	require.Len(t, cache.items, 1)
	assert.True(t, cache.items[0].Read, "read state must reach the cache")
}

func TestStore_PersistFailureIsSwallowed(t *testing.T) {
	cache := &memCache{saveErr: errors.New("quota exceeded")}
	s := newTestStore(t, cache, nil)

	s.Ingest(context.Background(), "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))
	s.MarkAsRead(context.Background(), "x")

	// In-memory state stays authoritative.
	assert.Equal(t, 0, s.UnreadCount())
	assert.Len(t, s.Items(), 1)
}

func TestStore_SubscribersNotifiedSynchronously(t *testing.T) {
	s := newTestStore(t, nil, nil)

	var got []store.Snapshot
	unsubscribe := s.Subscribe(func(snap store.Snapshot) {
		got = append(got, snap)
	})

	s.Ingest(context.Background(), "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Unread)

	s.MarkAsRead(context.Background(), "x")
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[1].Unread)

	unsubscribe()
	s.ToggleRead(context.Background(), "x")
	assert.Len(t, got, 2, "unsubscribed callback must not fire")
}

func TestStore_PublishesOnlyNewItems(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestStore(t, nil, pub)
	ctx := context.Background()

	s.Ingest(ctx, "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))
	require.Len(t, pub.published, 1)

	// Same incident again: nothing new to publish.
	s.Ingest(ctx, "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))
	assert.Len(t, pub.published, 1)

	s.Ingest(ctx, "amsterdam", rawBatch(`{"id":"y","description":"road closed"}`))
	require.Len(t, pub.published, 2)
}

func TestStore_PublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := newTestStore(t, nil, pub)

	s.Ingest(context.Background(), "amsterdam", rawBatch(`{"id":"x","description":"accident"}`))

	assert.Len(t, s.Items(), 1, "publish failure must not lose the notification")
}

// TestStore_LiveFeedScenario walks the full lifecycle: a critical incident
// arrives, the user reads it, the feed rewords it, and a second incident
// follows.
func TestStore_LiveFeedScenario(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 8, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	cache := &memCache{}
	s := newTestStore(t, cache, nil)
	ctx := context.Background()

	// Tick 1: one critical accident.
	s.Ingest(ctx, "amsterdam", rawBatch(`{"id":"a","delay":950,"description":"Accident on X"}`))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.SeverityCritical, items[0].Severity)
	assert.Equal(t, domain.CategoryAccident, items[0].Category)
	assert.Equal(t, 1, s.UnreadCount())

	// User reads it.
	s.MarkAsRead(ctx, "a")
	assert.Equal(t, 0, s.UnreadCount())

	// Tick 2: same incident, now resolved-ish (delay 0).
	fakeClock.Advance(30 * time.Second)
	s.Ingest(ctx, "amsterdam", rawBatch(`{"id":"a","delay":0,"description":"cleared"}`))

	items = s.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].Read, "re-merge must preserve read state")
	assert.Equal(t, "Accident on X", items[0].Message, "re-merge must not reword a known item")

	// Tick 3: a new incident appears.
	fakeClock.Advance(30 * time.Second)
	s.Ingest(ctx, "amsterdam", rawBatch(`{"id":"b","delay":400,"description":"Jam on Y"}`))

	items = s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, "b", items[0].ID, "newest first")
	assert.Equal(t, domain.SeverityWarning, items[0].Severity)

	// The whole story survived persistence as well.
	require.Len(t, cache.items, 2)
}
