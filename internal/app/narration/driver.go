// Package narration speaks slide text chunk by chunk through a Speaker.
package narration

import (
	"context"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/voice"
)

// Utterance is one chunk of text to be spoken.
type Utterance struct {
	Text  string
	Voice *voice.Voice // nil means the backend default voice
	Rate  float64
	Pitch float64
}

// Speaker is a speech backend. Speak blocks until the utterance has been
// spoken, ctx is done or Cancel is called. At most one utterance is in
// flight at a time.
type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
	Cancel()
}

// VoiceSpeaker is a Speaker that can list its voices.
type VoiceSpeaker interface {
	Speaker
	voice.Source
}

// Timing holds the pauses inserted around utterances.
type Timing struct {
	ReadingPause time.Duration // Time given to a slide with no text
	SentenceGap  time.Duration // Pause after a spoken chunk
	ErrorGap     time.Duration // Pause after a failed chunk
	EmptyGap     time.Duration // Pause for a blank chunk
}

// DefaultTiming returns the standard pauses.
func DefaultTiming() Timing {
	return Timing{
		ReadingPause: 3000 * time.Millisecond,
		SentenceGap:  220 * time.Millisecond,
		ErrorGap:     250 * time.Millisecond,
		EmptyGap:     250 * time.Millisecond,
	}
}

// Params are the voice settings read before each chunk.
type Params struct {
	Voice *voice.Voice
	Rate  float64
	Pitch float64
}

// ChunkResult describes one finished chunk.
type ChunkResult struct {
	Index    int
	Text     string
	Err      error
	Duration time.Duration
}

// Driver speaks text sequentially.
type Driver struct {
	speaker Speaker
	timing  Timing

	// OnChunk, when set, is called after each chunk is spoken or fails.
	OnChunk func(ChunkResult)
}

// NewDriver creates a Driver. speaker must not be nil.
func NewDriver(speaker Speaker, timing Timing) *Driver {
	return &Driver{speaker: speaker, timing: timing}
}

// Narrate speaks text and returns when every chunk has been handled.
// params is consulted before each chunk so rate and voice changes apply to
// the next utterance. Speech errors are logged and do not stop narration.
// The only error returned is ctx's.
func (d *Driver) Narrate(ctx context.Context, text string, params func() Params) error {
	if strings.TrimSpace(text) == "" {
		return Sleep(ctx, d.timing.ReadingPause)
	}

	for i, raw := range Split(text) {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk := strings.TrimSpace(raw)
		if chunk == "" {
			if err := Sleep(ctx, d.timing.EmptyGap); err != nil {
				return err
			}
			continue
		}

		p := params()
		started := time.Now()
		err := d.speaker.Speak(ctx, Utterance{Text: chunk, Voice: p.Voice, Rate: p.Rate, Pitch: p.Pitch})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.OnChunk != nil {
			d.OnChunk(ChunkResult{Index: i, Text: chunk, Err: err, Duration: time.Since(started)})
		}

		gap := d.timing.SentenceGap
		if err != nil {
			zlog.Warn().Err(err).Msgf("narration: chunk %d failed", i)
			gap = d.timing.ErrorGap
		}
		if err := Sleep(ctx, gap); err != nil {
			return err
		}
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
