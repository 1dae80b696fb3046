// Package reputation wraps third-party URL scanning services behind a small
// client abstraction so callers and tests never depend on the live APIs.
package reputation

import "fmt"

// ProviderError carries the status and body a provider returned on failure,
// forwarded verbatim for diagnostics.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s request failed with status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s request failed (%d): %s", e.Provider, e.Status, e.Body)
}
