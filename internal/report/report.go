// Package report turns raw provider payloads into display-ready summaries.
// Functions here are pure: no state, no side effects.
package report

import (
	"encoding/json"
	"fmt"
)

// Risk classifies an analysis outcome.
type Risk string

const (
	RiskHigh   Risk = "high"
	RiskMedium Risk = "medium"
	RiskLow    Risk = "low"
)

// Stats holds normalized detection counts. Missing counts default to zero.
type Stats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
}

// Risk classifies overall risk: high when anything is flagged malicious,
// medium when only suspicious flags exist, low otherwise.
func (s Stats) Risk() Risk {
	switch {
	case s.Malicious > 0:
		return RiskHigh
	case s.Suspicious > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Summary renders the counts as a one-line display string.
func (s Stats) Summary() string {
	return fmt.Sprintf("malicious: %d, suspicious: %d, harmless: %d, undetected: %d",
		s.Malicious, s.Suspicious, s.Harmless, s.Undetected)
}

// Summarize extracts detection counts from a provider analysis payload.
// Providers have shipped the counts at several locations, so lookup paths are
// tried in fixed precedence order:
//
//  1. attributes.stats
//  2. attributes.results.stats
//  3. attributes (counts inline)
//
// A nil or unparseable payload yields zero counts.
func Summarize(payload json.RawMessage) Stats {
	if len(payload) == 0 {
		return Stats{}
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Stats{}
	}
	attributes, _ := doc["attributes"].(map[string]any)
	if attributes == nil {
		return Stats{}
	}
	paths := []map[string]any{
		childMap(attributes, "stats"),
		childMap(childMap(attributes, "results"), "stats"),
		attributes,
	}
	for _, candidate := range paths {
		if candidate == nil {
			continue
		}
		if stats, ok := statsFrom(candidate); ok {
			return stats
		}
	}
	return Stats{}
}

func childMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return nil
	}
	child, _ := parent[key].(map[string]any)
	return child
}

// statsFrom reads counts out of a candidate object. At least one recognized
// count field must be present for the candidate to be accepted.
func statsFrom(candidate map[string]any) (Stats, bool) {
	var stats Stats
	found := false
	read := func(key string, dst *int) {
		value, ok := candidate[key].(float64)
		if !ok {
			return
		}
		*dst = int(value)
		found = true
	}
	read("malicious", &stats.Malicious)
	read("suspicious", &stats.Suspicious)
	read("harmless", &stats.Harmless)
	read("undetected", &stats.Undetected)
	return stats, found
}
