package dedup

import (
	"context"

	"github.com/moveoone/moveo/internal/events"
)

// FilterEnvelopes returns the envelopes whose fingerprints were not seen
// within the window, in their original order, and the number dropped.
func (m *Module) FilterEnvelopes(ctx context.Context, envs []events.Envelope) (kept []events.Envelope, dropped int) {
	if len(envs) == 0 {
		return envs, 0
	}

	kept = make([]events.Envelope, 0, len(envs))
	for _, env := range envs {
		if m.svc.IsDuplicate(ctx, env.AppID, env.Fingerprint) {
			dropped++
			continue
		}
		kept = append(kept, env)
	}

	return kept, dropped
}
