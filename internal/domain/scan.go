package domain

import (
	"encoding/json"
	"time"
)

// History entry kinds.
const (
	HistoryKindURL   = "url"
	HistoryKindEmail = "email"
)

// HistoryCap bounds each user's scan history.
const HistoryCap = 50

// ScanRecord captures one URL analysis.
type ScanRecord struct {
	URL        string          `json:"url"`
	VirusTotal json.RawMessage `json:"virusTotal"`
	URLScan    json.RawMessage `json:"urlscan,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	UserID     string          `json:"userId"`
}

// URLFinding is the per-candidate outcome inside an email analysis. Exactly one
// of VirusTotal or Error is set.
type URLFinding struct {
	URL        string          `json:"url"`
	VirusTotal json.RawMessage `json:"virusTotal,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// EmailAnalysisRecord captures one email-text analysis.
type EmailAnalysisRecord struct {
	EmailText     string       `json:"emailText"`
	ExtractedURLs []string     `json:"extractedUrls"`
	Analyses      []URLFinding `json:"analyses"`
	Timestamp     time.Time    `json:"timestamp"`
	UserID        string       `json:"userId"`
}

// HistoryEntry is a stored scan or email analysis, newest first in a user's
// history list.
type HistoryEntry struct {
	Kind      string
	Payload   json.RawMessage
	CreatedAt time.Time
}
