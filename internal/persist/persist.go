// Package persist stores the last-known notification collection across
// restarts. Persistence is best-effort: a missing, corrupt, or
// version-mismatched cache loads as an empty collection, never as an error
// the caller has to handle beyond logging.
package persist

import (
	"context"

	"github.com/couchcryptid/traffic-notify/internal/domain"
)

// SchemaVersion is bumped on any incompatible change to the persisted
// shape. Caches written under a different version are discarded on load.
const SchemaVersion = 1

// CacheKey names the single blob under which the collection is stored.
const CacheKey = "traffic_notifications"

// Store is the narrow persistence port the notification store writes
// through. Implementations must treat unreadable state as empty on Load.
type Store interface {
	Load(ctx context.Context) ([]domain.Notification, error)
	Save(ctx context.Context, items []domain.Notification) error
}

// envelope wraps the persisted items with the schema version so future
// incompatible changes can be detected and the cache dropped safely.
type envelope struct {
	Version int                   `json:"version"`
	SavedAt string                `json:"saved_at"`
	Items   []domain.Notification `json:"items"`
}
