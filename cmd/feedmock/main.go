// Command feedmock serves a fake traffic incident feed for local
// development. It speaks both payload layouts the real feeds use: the flat
// record shape and the nested properties/geometry shape, wrapped in an
// {"incidents": [...]} envelope by default or returned as a bare array with
// ?format=array.
//
// A fresh incident is introduced every churn interval so a polling service
// sees new notifications appear over time.
//
// Usage:
//
//	go run ./cmd/feedmock -addr :9090 -churn 45s
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", ":9090", "listen address")
	churn := flag.Duration("churn", 45*time.Second, "interval at which a new incident appears")
	apiKey := flag.String("api-key", "", "require this api_key query parameter when set")
	flag.Parse()

	f := &feed{start: time.Now(), churn: *churn, apiKey: *apiKey}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /incidents", f.handleIncidents)

	log.Printf("feedmock listening on %s (churn %s)", *addr, *churn)
	return http.ListenAndServe(*addr, mux)
}

type feed struct {
	start  time.Time
	churn  time.Duration
	apiKey string
}

func (f *feed) handleIncidents(w http.ResponseWriter, r *http.Request) {
	if f.apiKey != "" && r.URL.Query().Get("api_key") != f.apiKey {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, `{"message":"invalid key"}`)
		return
	}

	city := r.URL.Query().Get("city")
	if city == "" {
		city = "amsterdam"
	}
	incidents := f.incidentsFor(city)

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if r.URL.Query().Get("format") == "array" {
		_ = enc.Encode(incidents)
		return
	}
	_ = enc.Encode(map[string]any{
		"incidents": incidents,
		"generated": time.Now().UTC().Format(time.RFC3339),
	})
}

// incidentsFor returns the static base set for a city plus one extra
// incident per elapsed churn interval, capped so the set stays readable.
func (f *feed) incidentsFor(city string) []any {
	now := time.Now().UTC()
	incidents := baseIncidents(city, now)

	generations := int(time.Since(f.start) / f.churn)
	if generations > 8 {
		generations = 8
	}
	for i := 1; i <= generations; i++ {
		incidents = append(incidents, map[string]any{
			"id":             fmt.Sprintf("%s-churn-%d", city, i),
			"type":           6,
			"description":    fmt.Sprintf("Slow traffic after incident %d on the ring road", i),
			"delay":          120 * i,
			"road_numbers":   []string{"A10"},
			"lastReportTime": f.start.Add(time.Duration(i) * f.churn).UTC().Format(time.RFC3339),
		})
	}
	return incidents
}

// baseIncidents covers the interesting normalizer paths: both layouts, icon
// codes and keyword-only categories, all three severities, line geometry,
// separate lat/lng fields, and a record without an upstream id.
func baseIncidents(city string, now time.Time) []any {
	return []any{
		// Flat layout, accident by icon code, critical delay.
		map[string]any{
			"id":           city + "-acc-1",
			"type":         1,
			"description":  "Multi-vehicle accident blocking two lanes",
			"delay":        1260,
			"road_numbers": []string{"A10", "S109"},
			"location": map[string]any{
				"coordinates": []float64{4.8952, 52.3702},
			},
			"lastReportTime": now.Add(-25 * time.Minute).Format(time.RFC3339),
		},
		// Nested layout, construction by icon code, warning delay, line geometry.
		map[string]any{
			"id": city + "-con-1",
			"properties": map[string]any{
				"iconCategory":   9,
				"description":    "Resurfacing works, one lane available",
				"delay":          420,
				"roadNumbers":    []string{"S100"},
				"lastReportTime": now.Add(-2 * time.Hour).Format(time.RFC3339),
			},
			"geometry": map[string]any{
				"coordinates": [][]float64{
					{4.9041, 52.3676},
					{4.9100, 52.3660},
				},
			},
		},
		// No id and no type code: category from keywords, deterministic hash id.
		map[string]any{
			"description": "Road closed for a public event",
			"delay":       0,
			"lat":         52.3599,
			"lng":         4.8852,
			"start_time":  now.Add(-45 * time.Minute).Format(time.RFC3339),
		},
		// Numeric strings, as some feeds send them.
		map[string]any{
			"id":             city + "-jam-1",
			"type":           "6",
			"description":    "Dense traffic approaching the tunnel",
			"delay":          "330",
			"lastReportTime": now.Add(-10 * time.Minute).Format(time.RFC3339),
		},
	}
}
