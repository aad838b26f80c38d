// Package domain contains the sliding-window bloom filter that remembers
// event fingerprints. Two filters (current and previous) rotate every half
// window, so a fingerprint stays visible for between one half and one full
// window after it was last added.
package domain

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// FingerprintFilter remembers fingerprints for a bounded time window.
type FingerprintFilter struct {
	mu       sync.Mutex
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	added    uint64
	rotated  uint64

	window   time.Duration
	capacity uint
	fpRate   float64
}

// Stats is a point-in-time view of the filter.
type Stats struct {
	// Added is the number of fingerprints added since the last rotation.
	Added uint64
	// Rotations counts completed rotations.
	Rotations uint64
	// EstimatedKeys is the bloom filter's own estimate of distinct keys in
	// the current half window.
	EstimatedKeys uint32
}

// NewFingerprintFilter creates a filter sized for capacity fingerprints per
// window at the given false positive rate.
func NewFingerprintFilter(window time.Duration, capacity uint, fpRate float64) *FingerprintFilter {
	return &FingerprintFilter{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		window:   window,
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// Seen reports whether fingerprint was already recorded in the window and
// records it otherwise. A fingerprint found only in the previous filter is
// copied forward so active replays keep being caught.
func (f *FingerprintFilter) Seen(fingerprint string) bool {
	data := fingerprintBytes(fingerprint)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current.Test(data) {
		return true
	}
	if f.previous.Test(data) {
		f.current.Add(data)
		return true
	}

	f.current.Add(data)
	f.added++
	return false
}

// Rotate retires the previous filter, demotes the current one and starts a
// fresh current filter. It returns the number of fingerprints added during
// the half window that just ended.
func (f *FingerprintFilter) Rotate() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.added
	f.previous = f.current
	f.current = bloom.NewWithEstimates(f.capacity, f.fpRate)
	f.added = 0
	f.rotated++
	return n
}

// Stats returns a snapshot of the filter counters.
func (f *FingerprintFilter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Stats{
		Added:         f.added,
		Rotations:     f.rotated,
		EstimatedKeys: f.current.ApproximatedSize(),
	}
}

// Window returns the configured dedup window.
func (f *FingerprintFilter) Window() time.Duration {
	return f.window
}

// fingerprintBytes decodes hex fingerprints to their raw digest so the filter
// hashes 32 bytes instead of 64. Anything else is used verbatim.
func fingerprintBytes(fingerprint string) []byte {
	if b, err := hex.DecodeString(fingerprint); err == nil && len(b) > 0 {
		return b
	}
	return []byte(fingerprint)
}
