// Package speech provides text-to-speech backends for narration.
package speech

import (
	"context"
	"sync"

	"github.com/osa030/slidecast/internal/app/narration"
	"github.com/osa030/slidecast/internal/app/voice"
)

// Backend is a speech backend usable by the narration driver.
type Backend interface {
	narration.Speaker
	voice.Source

	// Name returns the backend type (used in config).
	Name() string
}

// inflight tracks the cancel func of the utterance being spoken.
type inflight struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// begin derives a cancellable context for one utterance.
func (f *inflight) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.seq++
	seq := f.seq
	f.cancel = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if f.seq == seq {
			f.cancel = nil
		}
		f.mu.Unlock()
		cancel()
	}
}

// stop cancels the current utterance, if any.
func (f *inflight) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
