package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCity = "amsterdam"

func TestNormalize_FlatRecord(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "inc-42",
		"description": "Accident on A10 near exit S105",
		"type": 1,
		"delay": 950,
		"location": {"coordinates": [4.8952, 52.3702]},
		"lastReportTime": "2026-03-14T08:30:00Z",
		"road_numbers": ["A10", "S105"]
	}`)

	n, ok := Normalize(testCity, raw)
	require.True(t, ok)

	assert.Equal(t, "inc-42", n.ID)
	assert.Equal(t, CategoryAccident, n.Category)
	assert.Equal(t, "Accident Reported", n.Title)
	assert.Equal(t, "Accident on A10 near exit S105", n.Message)
	assert.Equal(t, SeverityCritical, n.Severity)
	assert.Equal(t, testCity, n.City)
	assert.Equal(t, "A10, S105", n.Location)
	require.NotNil(t, n.Coordinates)
	assert.Equal(t, 52.3702, n.Coordinates.Lat)
	assert.Equal(t, 4.8952, n.Coordinates.Lng)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC), n.CreatedAt)
	assert.False(t, n.Read)
}

func TestNormalize_NestedRecord(t *testing.T) {
	raw := json.RawMessage(`{
		"properties": {
			"description": "Roadworks between junction 3 and 4",
			"iconCategory": 9,
			"magnitudeOfDelay": 400,
			"startTime": "2026-03-14T07:00:00Z",
			"roadNumbers": ["N201"]
		},
		"geometry": {"coordinates": [[4.70, 52.30], [4.71, 52.31]]}
	}`)

	n, ok := Normalize(testCity, raw)
	require.True(t, ok)

	assert.Equal(t, CategoryConstruct, n.Category)
	assert.Equal(t, SeverityWarning, n.Severity)
	assert.Equal(t, "N201", n.Location)
	require.NotNil(t, n.Coordinates)
	assert.Equal(t, 52.30, n.Coordinates.Lat)
	assert.Equal(t, 4.70, n.Coordinates.Lng)
	assert.Equal(t, time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC), n.CreatedAt)
}

func TestNormalize_SeverityThresholds(t *testing.T) {
	tests := []struct {
		delay    int
		expected Severity
	}{
		{0, SeverityInfo},
		{299, SeverityInfo},
		{300, SeverityWarning},
		{899, SeverityWarning},
		{900, SeverityCritical},
		{5000, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("delay=%d", tt.delay), func(t *testing.T) {
			raw := json.RawMessage(fmt.Sprintf(`{"description":"slow traffic","delay":%d}`, tt.delay))
			n, ok := Normalize(testCity, raw)
			require.True(t, ok)
			assert.Equal(t, tt.expected, n.Severity)
		})
	}
}

func TestNormalize_CategoryInference(t *testing.T) {
	tests := []struct {
		name        string
		description string
		expected    Category
	}{
		{"accident keyword", "Multi-vehicle accident reported", CategoryAccident},
		{"closure keyword", "Full closure of the tunnel", CategoryRoadClosure},
		{"closed keyword", "Road closed in both directions", CategoryRoadClosure},
		{"construction keyword", "Construction until Friday", CategoryConstruct},
		{"roadwork keyword", "Overnight roadwork on ring road", CategoryConstruct},
		{"congestion keyword", "Severe congestion near the port", CategoryCongestion},
		{"traffic keyword", "Slow traffic after the bridge", CategoryCongestion},
		{"case insensitive", "ACCIDENT cleared lane 2", CategoryAccident},
		{"no match", "Signal maintenance window", CategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(map[string]any{"description": tt.description})
			require.NoError(t, err)
			n, ok := Normalize(testCity, raw)
			require.True(t, ok)
			assert.Equal(t, tt.expected, n.Category)
		})
	}
}

func TestNormalize_IconCodeBeatsKeywords(t *testing.T) {
	// Description says accident, but the feed's icon code says congestion.
	raw := json.RawMessage(`{"description":"accident ahead","properties":null,"type":6}`)
	n, ok := Normalize(testCity, raw)
	require.True(t, ok)
	assert.Equal(t, CategoryCongestion, n.Category)
}

func TestNormalize_UnknownIconCodeFallsBack(t *testing.T) {
	raw := json.RawMessage(`{"description":"road closed at the dam","type":14}`)
	n, ok := Normalize(testCity, raw)
	require.True(t, ok)
	assert.Equal(t, CategoryRoadClosure, n.Category)
}

func TestNormalize_DeterministicFallbackID(t *testing.T) {
	raw := json.RawMessage(`{"description":"congestion on the ring","delay":350}`)

	n1, ok := Normalize(testCity, raw)
	require.True(t, ok)
	n2, ok := Normalize(testCity, raw)
	require.True(t, ok)

	assert.Equal(t, n1.ID, n2.ID)
	assert.True(t, len(n1.ID) > len(string(CategoryCongestion)))
	assert.Contains(t, n1.ID, string(CategoryCongestion)+"-")
}

func TestNormalize_CoordinatesOmittedWhenAbsent(t *testing.T) {
	raw := json.RawMessage(`{"description":"traffic jam downtown"}`)
	n, ok := Normalize(testCity, raw)
	require.True(t, ok)
	assert.Nil(t, n.Coordinates)

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "coordinates")
}

func TestNormalize_SeparateLatLngFields(t *testing.T) {
	raw := json.RawMessage(`{"description":"accident at crossing","lat":52.1,"lng":4.9}`)
	n, ok := Normalize(testCity, raw)
	require.True(t, ok)
	require.NotNil(t, n.Coordinates)
	assert.Equal(t, 52.1, n.Coordinates.Lat)
	assert.Equal(t, 4.9, n.Coordinates.Lng)
}

func TestNormalize_NumericStrings(t *testing.T) {
	// Some feed deployments stringify numbers.
	raw := json.RawMessage(`{"description":"jam on the bypass","delay":"901","type":"6"}`)
	n, ok := Normalize(testCity, raw)
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, n.Severity)
	assert.Equal(t, CategoryCongestion, n.Category)
}

func TestNormalize_CreatedAtFallsBackToClock(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	raw := json.RawMessage(`{"description":"no timestamp on this one"}`)
	n, ok := Normalize(testCity, raw)
	require.True(t, ok)
	assert.Equal(t, fakeClock.Now(), n.CreatedAt)
}

func TestNormalize_UnparseableTimestampFallsBack(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	raw := json.RawMessage(`{"description":"bad time","lastReportTime":"14/03/2026 08:30"}`)
	n, ok := Normalize(testCity, raw)
	require.True(t, ok)
	assert.Equal(t, fakeClock.Now(), n.CreatedAt)
}

func TestNormalize_SkipsMalformedRecords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `not-json{{{`},
		{"empty object", `{}`},
		{"null description", `{"description":null,"delay":500}`},
		{"whitespace description", `{"description":"   "}`},
		{"array instead of object", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Normalize(testCity, json.RawMessage(tt.raw))
			assert.False(t, ok)
		})
	}
}

func TestNormalize_MixedShapeFixture(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "incidents.json"))
	require.NoError(t, err)

	var batch []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &batch))
	require.Len(t, batch, 5)

	var kept []Notification
	for _, raw := range batch {
		if n, ok := Normalize(testCity, raw); ok {
			kept = append(kept, n)
		}
	}

	// The description-less record is dropped.
	require.Len(t, kept, 4)

	byID := make(map[string]Notification, len(kept))
	for _, n := range kept {
		byID[n.ID] = n
	}

	acc := byID["fixture-acc-1"]
	assert.Equal(t, CategoryAccident, acc.Category)
	assert.Equal(t, SeverityCritical, acc.Severity)
	assert.Equal(t, "A10, S109", acc.Location)
	require.NotNil(t, acc.Coordinates)
	assert.Equal(t, 52.3702, acc.Coordinates.Lat)

	con := byID["fixture-con-1"]
	assert.Equal(t, CategoryConstruct, con.Category)
	assert.Equal(t, SeverityWarning, con.Severity)
	require.NotNil(t, con.Coordinates)
	assert.Equal(t, 52.3676, con.Coordinates.Lat, "first point of the line")

	jam := byID["fixture-jam-1"]
	assert.Equal(t, CategoryCongestion, jam.Category)
	assert.Equal(t, SeverityWarning, jam.Severity, "numeric string delay")

	// The closure record has no id: deterministic hash id, keyword category.
	var closure Notification
	for _, n := range kept {
		if n.Category == CategoryRoadClosure {
			closure = n
		}
	}
	assert.True(t, strings.HasPrefix(closure.ID, "road_closure-"))
	require.NotNil(t, closure.Coordinates)
	assert.Equal(t, 4.8852, closure.Coordinates.Lng)
}

func TestNormalize_OneGoodOneGarbage(t *testing.T) {
	batch := []json.RawMessage{
		json.RawMessage(`{"description":"Accident on the bridge","delay":950}`),
		json.RawMessage(`{}`),
	}

	var kept []Notification
	for _, raw := range batch {
		if n, ok := Normalize(testCity, raw); ok {
			kept = append(kept, n)
		}
	}

	require.Len(t, kept, 1)
	assert.Equal(t, CategoryAccident, kept[0].Category)
}
