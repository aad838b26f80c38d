// Package dedup drops replayed SDK events at the collector. Each event's
// fingerprint is checked against a sliding-window bloom filter; events seen
// within the window are dropped and everything else passes through.
package dedup

import "context"

// Deduplicator checks event fingerprints. Implementations must be safe for
// concurrent use.
type Deduplicator interface {
	// IsDuplicate reports whether fingerprint was seen for appID within the
	// window and records it otherwise. Empty fingerprints are never
	// duplicates.
	IsDuplicate(ctx context.Context, appID, fingerprint string) bool

	// Start begins background filter rotation until ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context)

	// Stop halts rotation and waits for it to finish.
	Stop()
}
