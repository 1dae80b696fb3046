package scan

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"log/slog"

	"github.com/phishscope/phishscope/internal/domain"
	"github.com/phishscope/phishscope/internal/extract"
	"github.com/phishscope/phishscope/internal/report"
	"github.com/phishscope/phishscope/internal/repository"
	"github.com/phishscope/phishscope/internal/ws"
)

// Analyzer submits one URL to an external reputation service and returns the
// raw analysis payload. A nil payload with a nil error means the provider
// accepted the URL but returned no analysis.
type Analyzer interface {
	AnalyzeURL(ctx context.Context, url string) (json.RawMessage, error)
}

const emailPreviewLimit = 200

// Service orchestrates reputation lookups and records them in user history.
type Service struct {
	history   repository.HistoryRepository
	primary   Analyzer
	secondary Analyzer
	hub       *ws.Hub
	logger    *slog.Logger
}

// New constructs a Service. The secondary analyzer and hub may be nil; the
// secondary provider only enriches the single-URL path.
func New(history repository.HistoryRepository, primary, secondary Analyzer, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{history: history, primary: primary, secondary: secondary, hub: hub, logger: logger}
}

// AnalyzeURL runs one reputation lookup and persists the result. A primary
// provider failure aborts the request; a secondary provider failure only loses
// the secondary payload.
func (s Service) AnalyzeURL(ctx context.Context, userID, target string) (*domain.ScanRecord, error) {
	primary, err := s.primary.AnalyzeURL(ctx, target)
	if err != nil {
		return nil, err
	}
	record := &domain.ScanRecord{
		URL:        target,
		VirusTotal: primary,
		Timestamp:  time.Now().UTC(),
		UserID:     userID,
	}
	if s.secondary != nil {
		secondary, err := s.secondary.AnalyzeURL(ctx, target)
		if err != nil {
			s.logger.Warn("secondary analysis failed", "url", target, "error", err)
		} else {
			record.URLScan = secondary
		}
	}

	stats := report.Summarize(record.VirusTotal)
	if err := s.record(ctx, userID, domain.HistoryKindURL, record); err != nil {
		return nil, err
	}
	s.logger.Info("url analyzed", "user_id", userID, "url", target, "risk", stats.Risk())
	s.publish(userID, map[string]any{
		"type":      "scan.completed",
		"kind":      domain.HistoryKindURL,
		"url":       target,
		"risk":      stats.Risk(),
		"stats":     stats,
		"timestamp": record.Timestamp,
	})
	return record, nil
}

// AnalyzeEmail extracts candidate URLs from text and looks each one up in
// extraction order, one provider call at a time. A failing candidate becomes an
// error entry and never blocks the remaining candidates.
func (s Service) AnalyzeEmail(ctx context.Context, userID, emailText string) (*domain.EmailAnalysisRecord, error) {
	candidates := extract.URLs(emailText)
	analyses := make([]domain.URLFinding, 0, len(candidates))
	worst := report.RiskLow
	for _, candidate := range candidates {
		normalized := candidate
		if !strings.HasPrefix(strings.ToLower(candidate), "http") {
			normalized = "http://" + candidate
		}
		payload, err := s.primary.AnalyzeURL(ctx, normalized)
		if err != nil {
			s.logger.Warn("candidate analysis failed", "url", candidate, "error", err)
			analyses = append(analyses, domain.URLFinding{URL: candidate, Error: err.Error()})
			continue
		}
		analyses = append(analyses, domain.URLFinding{URL: normalized, VirusTotal: payload})
		worst = worse(worst, report.Summarize(payload).Risk())
	}

	record := &domain.EmailAnalysisRecord{
		EmailText:     truncate(emailText, emailPreviewLimit),
		ExtractedURLs: candidates,
		Analyses:      analyses,
		Timestamp:     time.Now().UTC(),
		UserID:        userID,
	}
	if err := s.record(ctx, userID, domain.HistoryKindEmail, record); err != nil {
		return nil, err
	}
	s.logger.Info("email analyzed", "user_id", userID, "candidates", len(candidates), "risk", worst)
	s.publish(userID, map[string]any{
		"type":      "scan.completed",
		"kind":      domain.HistoryKindEmail,
		"urls":      candidates,
		"risk":      worst,
		"timestamp": record.Timestamp,
	})
	return record, nil
}

// History returns the user's stored records, newest first.
func (s Service) History(ctx context.Context, userID string) ([]json.RawMessage, error) {
	entries, err := s.history.ListHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	scans := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		scans = append(scans, entry.Payload)
	}
	return scans, nil
}

func (s Service) record(ctx context.Context, userID, kind string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.history.AppendHistory(ctx, userID, domain.HistoryEntry{
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

func (s Service) publish(userID string, event map[string]any) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.hub.Broadcast(userID, payload)
}

func worse(a, b report.Risk) report.Risk {
	rank := map[report.Risk]int{report.RiskLow: 0, report.RiskMedium: 1, report.RiskHigh: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
