// Package extract pulls candidate URLs out of free-form text. Results are
// advisory inputs to a reputation lookup, so a full URL parser is deliberately
// not used; marginal false positives are acceptable.
package extract

import "regexp"

// MaxCandidates bounds how many URLs are taken from a single text.
const MaxCandidates = 5

// A candidate runs from an http(s):// or www. prefix up to whitespace or one
// of < > ) ].
var urlPattern = regexp.MustCompile(`(?i)(https?://[^\s<>)\]]+)|(www\.[^\s<>)\]]+)`)

// URLs returns the candidate URLs found in text: first-seen order, deduplicated
// by exact string match, at most MaxCandidates. Deterministic for a given input.
func URLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, MaxCandidates)
	for _, match := range matches {
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		urls = append(urls, match)
		if len(urls) == MaxCandidates {
			break
		}
	}
	return urls
}
