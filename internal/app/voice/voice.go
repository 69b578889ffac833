// Package voice models speech voices and the policy used to pick one.
package voice

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Voice is a voice reported by a speech backend.
type Voice struct {
	ID   string `json:"id" mapstructure:"id"`     // Backend identifier passed back when speaking
	Name string `json:"name" mapstructure:"name"` // Display name
	Lang string `json:"lang" mapstructure:"lang"` // BCP 47 style language tag, e.g. "en-US"
}

// DefaultPreferred is the preference order among US English voices.
var DefaultPreferred = []string{
	"Google US English",
	"Alloy",
	"Samantha",
	"Daniel",
	"Alex",
	"Microsoft Zira Desktop",
	"Microsoft David Desktop",
}

var (
	usLangPattern = regexp.MustCompile(`(?i)en(-|_)?us`)
	usNamePattern = regexp.MustCompile(`(?i)american`)
)

// IsUSEnglish reports whether v is a US English voice.
func IsUSEnglish(v Voice) bool {
	return usLangPattern.MatchString(v.Lang) || usNamePattern.MatchString(v.Name)
}

// IsEnglish reports whether v speaks any English variant.
func IsEnglish(v Voice) bool {
	return strings.HasPrefix(strings.ToLower(v.Lang), "en")
}

// Select picks a voice from voices.
// A requested name present in the list wins. Otherwise US English voices are
// preferred (in preferred order, then list order), then any English voice,
// then the first voice. It returns false when voices is empty.
func Select(voices []Voice, preferred []string, requested string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}

	if requested != "" {
		if v, ok := Find(voices, requested); ok {
			return v, true
		}
	}

	var us []Voice
	for _, v := range voices {
		if IsUSEnglish(v) {
			us = append(us, v)
		}
	}
	if len(us) > 0 {
		for _, name := range preferred {
			for _, v := range us {
				if v.Name == name {
					return v, true
				}
			}
		}
		return us[0], true
	}

	for _, v := range voices {
		if IsEnglish(v) {
			return v, true
		}
	}

	return voices[0], true
}

// Find looks a voice up by name or ID, case-insensitively.
func Find(voices []Voice, name string) (Voice, bool) {
	for _, v := range voices {
		if strings.EqualFold(v.Name, name) || strings.EqualFold(v.ID, name) {
			return v, true
		}
	}
	return Voice{}, false
}

// Ordered returns voices sorted for display: the voice Select would pick
// first, followed by the remaining voices in their original order.
func Ordered(voices []Voice, preferred []string) []Voice {
	if len(voices) == 0 {
		return nil
	}
	chosen, _ := Select(voices, preferred, "")
	out := make([]Voice, 0, len(voices))
	out = append(out, chosen)
	skipped := false
	for _, v := range voices {
		if !skipped && v == chosen {
			skipped = true
			continue
		}
		out = append(out, v)
	}
	return out
}

// Source lists the voices a backend offers.
type Source interface {
	Voices(ctx context.Context) ([]Voice, error)
}

// ChangeNotifier is implemented by sources that signal when their voice
// list changes.
type ChangeNotifier interface {
	VoicesChanged() <-chan struct{}
}

// DefaultLoadTimeout bounds Load when no positive timeout is given.
const DefaultLoadTimeout = 3 * time.Second

// Load polls src until it reports at least one voice or timeout elapses.
// A timeout yields an empty list and no error; callers fall back to the
// backend default voice. A non-positive timeout means DefaultLoadTimeout.
func Load(ctx context.Context, src Source, timeout, interval time.Duration) ([]Voice, error) {
	if src == nil {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var changed <-chan struct{}
	if n, ok := src.(ChangeNotifier); ok {
		changed = n.VoicesChanged()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		voices, err := src.Voices(ctx)
		if err == nil && len(voices) > 0 {
			return voices, nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				zlog.Warn().Err(lastErr).Msg("voice: voice list unavailable, using backend default")
			} else {
				zlog.Debug().Msgf("voice: no voices after %s", timeout)
			}
			if parent := context.Cause(ctx); parent != nil && !errors.Is(parent, context.DeadlineExceeded) {
				return nil, errors.Wrap(parent, "voice loading canceled")
			}
			return nil, nil
		case <-changed:
		case <-ticker.C:
		}
	}
}
