package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Icon category codes used by the upstream feed. Codes outside this table
// fall back to keyword inference over the description.
const (
	iconCodeAccident     = 1
	iconCodeCongestion   = 6
	iconCodeRoadClosed   = 8
	iconCodeConstruction = 9
)

// Severity thresholds in reported delay seconds. These values are a
// contract with the UI, not a tuning knob: critical at 15 minutes of
// delay and above, warning from 5 minutes up.
const (
	criticalDelaySeconds = 900
	warningDelaySeconds  = 300
)

// Normalize maps one raw incident record to a canonical Notification scoped
// to the given city. The raw record may use either the flat field layout or
// the nested properties/geometry layout; the first present, non-null path
// wins for every field. Records too malformed to yield a description are
// skipped: ok is false and the caller drops the record without failing the
// rest of the batch.
func Normalize(city string, raw json.RawMessage) (Notification, bool) {
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Notification{}, false
	}

	props, _ := rec["properties"].(map[string]any)

	description := firstString(
		stringField(rec, "description"),
		stringField(props, "description"),
	)
	if strings.TrimSpace(description) == "" {
		return Notification{}, false
	}

	category := deriveCategory(rec, props, description)
	delay := firstNumber(
		numberField(rec, "delay"),
		numberField(props, "delay"),
		numberField(props, "magnitudeOfDelay"),
	)

	n := Notification{
		ID:          deriveID(rec, category, description),
		Title:       titleForCategory(category),
		Message:     description,
		Severity:    severityForDelay(delay),
		Category:    category,
		City:        city,
		Location:    deriveLocation(rec, props),
		Coordinates: deriveCoordinates(rec, props),
		CreatedAt:   deriveCreatedAt(rec, props),
	}
	return n, true
}

// severityForDelay maps a delay in seconds to a severity level:
// delay >= 900 is critical, 300 <= delay < 900 is warning, and anything
// below 300 (including absent or zero delay) is info.
func severityForDelay(delaySeconds float64) Severity {
	switch {
	case delaySeconds >= criticalDelaySeconds:
		return SeverityCritical
	case delaySeconds >= warningDelaySeconds:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// deriveCategory resolves the event category from the numeric type code when
// it matches the known icon table, otherwise by keyword inference over the
// description, otherwise CategorySystem.
func deriveCategory(rec, props map[string]any, description string) Category {
	code, ok := numberFieldOK(rec, "type")
	if !ok {
		code, ok = numberFieldOK(props, "iconCategory")
	}
	if ok {
		switch int(code) {
		case iconCodeAccident:
			return CategoryAccident
		case iconCodeRoadClosed:
			return CategoryRoadClosure
		case iconCodeConstruction:
			return CategoryConstruct
		case iconCodeCongestion:
			return CategoryCongestion
		}
	}
	return inferCategory(description)
}

// inferCategory performs a case-insensitive keyword search over the
// description text.
func inferCategory(description string) Category {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "accident"):
		return CategoryAccident
	case strings.Contains(d, "closure"), strings.Contains(d, "closed"):
		return CategoryRoadClosure
	case strings.Contains(d, "construction"), strings.Contains(d, "roadwork"):
		return CategoryConstruct
	case strings.Contains(d, "congestion"), strings.Contains(d, "traffic"):
		return CategoryCongestion
	}
	return CategorySystem
}

// deriveID prefers the record's own identifier. Without one it derives a
// deterministic hash from the category and description, so repeated polls
// of an unchanged record always map to the same notification. A random ID
// here would defeat deduplication across polls.
func deriveID(rec map[string]any, category Category, description string) string {
	if id := stringField(rec, "id"); id != "" {
		return id
	}
	input := fmt.Sprintf("%s|%s", category, description)
	hash := sha256.Sum256([]byte(input))
	return string(category) + "-" + hex.EncodeToString(hash[:8])
}

// deriveLocation joins the road identifiers into a display label, e.g.
// ["A10","S101"] -> "A10, S101". Empty when the record carries none.
func deriveLocation(rec, props map[string]any) string {
	roads := firstStringSlice(
		stringSliceField(rec, "road_numbers"),
		stringSliceField(props, "roadNumbers"),
	)
	return strings.Join(roads, ", ")
}

// deriveCoordinates extracts a point from location.coordinates or
// geometry.coordinates ([lng, lat] order, possibly the first point of a
// line), or from separate lat/lng fields. Returns nil when absent so the
// serialized notification omits the field instead of zeroing it.
func deriveCoordinates(rec, props map[string]any) *Coordinates {
	for _, parent := range []map[string]any{rec, props} {
		for _, key := range []string{"location", "geometry"} {
			obj, _ := parent[key].(map[string]any)
			if obj == nil {
				continue
			}
			if pt := pointFromArray(obj["coordinates"]); pt != nil {
				return pt
			}
		}
	}

	lat, latOK := numberFieldOK(rec, "lat")
	if !latOK {
		lat, latOK = numberFieldOK(rec, "latitude")
	}
	lng, lngOK := numberFieldOK(rec, "lng")
	if !lngOK {
		lng, lngOK = numberFieldOK(rec, "longitude")
	}
	if latOK && lngOK {
		return &Coordinates{Lat: lat, Lng: lng}
	}
	return nil
}

// pointFromArray interprets v as a [lng, lat] pair, or as a line array
// whose first element is such a pair.
func pointFromArray(v any) *Coordinates {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	if nested, ok := arr[0].([]any); ok {
		return pointFromArray(nested)
	}
	if len(arr) < 2 {
		return nil
	}
	lng, lngOK := toNumber(arr[0])
	lat, latOK := toNumber(arr[1])
	if !lngOK || !latOK {
		return nil
	}
	return &Coordinates{Lat: lat, Lng: lng}
}

// deriveCreatedAt uses the first parseable timestamp among the known fields,
// falling back to the current time when the record carries none.
func deriveCreatedAt(rec, props map[string]any) time.Time {
	candidates := []string{
		stringField(rec, "lastReportTime"),
		stringField(props, "lastReportTime"),
		stringField(rec, "start_time"),
		stringField(props, "startTime"),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, c); err == nil {
			return t
		}
	}
	return clock.Now()
}

// --- loose-field extraction helpers ---

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func numberField(m map[string]any, key string) float64 {
	v, _ := numberFieldOK(m, key)
	return v
}

func numberFieldOK(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	return toNumber(m[key])
}

// toNumber accepts JSON numbers and numeric strings; feeds are not
// consistent about which one they send.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func firstNumber(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstStringSlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

func stringSliceField(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
