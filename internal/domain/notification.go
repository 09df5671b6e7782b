package domain

import "time"

// Severity classifies how urgent a notification is, derived from the
// reported delay magnitude. See [severityForDelay] for the thresholds.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
)

// Category identifies the kind of traffic event a notification describes.
type Category string

const (
	CategoryAccident    Category = "accident"
	CategoryRoadClosure Category = "road_closure"
	CategoryConstruct   Category = "construction"
	CategoryCongestion  Category = "congestion"
	CategoryResolved    Category = "resolved"
	CategorySystem      Category = "system"
)

// Coordinates is a WGS-84 point location.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Notification is the canonical, fully-typed representation of a traffic
// incident surfaced to users. Immutable after creation except for Read,
// which is only changed through the store's read-state operations.
type Notification struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Message     string       `json:"message"`
	Severity    Severity     `json:"severity"`
	Category    Category     `json:"category"`
	City        string       `json:"city"`
	Location    string       `json:"location,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	Read        bool         `json:"read"`
}

// titleForCategory maps a category to its display title.
func titleForCategory(c Category) string {
	switch c {
	case CategoryAccident:
		return "Accident Reported"
	case CategoryRoadClosure:
		return "Road Closure"
	case CategoryConstruct:
		return "Construction Zone"
	case CategoryCongestion:
		return "Heavy Congestion"
	case CategoryResolved:
		return "Incident Resolved"
	default:
		return "Traffic Notice"
	}
}
