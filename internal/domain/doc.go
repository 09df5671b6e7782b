// Package domain models traffic incident notifications.
//
// # Data Source
//
// Incident records come from a city-scoped traffic feed polled over HTTP.
// The feed has grown organically and serves records in two layouts that must
// both be accepted:
//
//	Flat:    {"id": "...", "description": "...", "type": 1, "delay": 640,
//	          "location": {"coordinates": [lng, lat]},
//	          "lastReportTime": "...", "road_numbers": ["A10"]}
//	Nested:  {"properties": {"description": "...", "iconCategory": 6,
//	          "magnitudeOfDelay": 640, "startTime": "...",
//	          "roadNumbers": ["A10"]},
//	          "geometry": {"coordinates": [[lng, lat], ...]}}
//
// For every field the first present, non-null path wins. Numbers may arrive
// as JSON numbers or numeric strings. Coordinates always use [lng, lat]
// order in arrays; geometry may carry a full line, in which case the first
// point is taken.
//
// # Category Derivation
//
// The numeric icon category codes map as follows:
//
//	1 accident | 6 congestion | 8 road closure | 9 construction
//
// Records without a recognized code fall back to case-insensitive keyword
// inference over the description (accident, closure/closed,
// construction/roadwork, congestion/traffic). Anything else is "system".
//
// # Severity Contract
//
// Severity is a function of the reported delay in seconds:
//
//	delay >= 900          critical
//	300 <= delay < 900    warning
//	delay < 300 or absent info
//
// These thresholds are a contract with the UI surfaces that color-code
// notifications. Changing them is a product decision, not a refactor.
//
// # ID Generation
//
// The source's own id is used when present. Otherwise an ID is derived as a
// deterministic SHA-256 hash of category|description, so repeated polls of
// an unchanged record normalize to the same ID. Deduplication across
// overlapping polls depends on this determinism. See [Merge] for how
// already-seen IDs keep their user-applied read state.
package domain
