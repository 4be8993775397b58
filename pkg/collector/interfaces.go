// Package collector delivers completed answer sets to the outside
// world. Collectors are fire-and-forget from the engine's point of
// view: a delivery failure is logged and never blocks the respondent's
// completion message.
package collector

import "context"

// Collector receives the full answer map of a finished session,
// exactly once per session.
type Collector interface {
	// Submit delivers the answers and returns a submission id
	Submit(ctx context.Context, formID string, answers map[string]string) (string, error)
}
