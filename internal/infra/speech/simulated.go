package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/narration"
	"github.com/osa030/slidecast/internal/app/voice"
)

// SimulatedConfig configures a SimulatedSpeaker.
type SimulatedConfig struct {
	WordsPerMinute int      `yaml:"words_per_minute" mapstructure:"words_per_minute" default:"180" validate:"gte=30,lte=5000"`
	Voices         []string `yaml:"voices" mapstructure:"voices"`
}

// SimulatedSpeaker produces no audio. Each utterance takes as long as
// reading its words aloud at the configured pace would.
type SimulatedSpeaker struct {
	config SimulatedConfig
	voices []voice.Voice

	speakMu  sync.Mutex
	inflight inflight
}

// NewSimulatedSpeaker creates a SimulatedSpeaker from settings.
func NewSimulatedSpeaker(settings map[string]any) (*SimulatedSpeaker, error) {
	var config SimulatedConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	voices := []voice.Voice{{ID: "simulated-us", Name: "Simulated US English", Lang: "en-US"}}
	if len(config.Voices) > 0 {
		voices = voices[:0]
		for _, name := range config.Voices {
			voices = append(voices, voice.Voice{ID: name, Name: name, Lang: "en-US"})
		}
	}

	return &SimulatedSpeaker{config: config, voices: voices}, nil
}

// Name returns the backend type.
func (s *SimulatedSpeaker) Name() string {
	return "simulated"
}

// Speak waits for the simulated speaking time.
func (s *SimulatedSpeaker) Speak(ctx context.Context, u narration.Utterance) error {
	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	ctx, done := s.inflight.begin(ctx)
	defer done()

	d := s.Duration(u)
	zlog.Debug().Msgf("speech: simulated utterance (%s): %s", d, u.Text)
	return narration.Sleep(ctx, d)
}

// Duration returns how long u takes to speak.
func (s *SimulatedSpeaker) Duration(u narration.Utterance) time.Duration {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(u.Text))
	minutes := float64(words) / (float64(s.config.WordsPerMinute) * rate)
	return time.Duration(minutes * float64(time.Minute))
}

// Cancel interrupts the current utterance.
func (s *SimulatedSpeaker) Cancel() {
	s.inflight.stop()
}

// Voices returns the configured voices.
func (s *SimulatedSpeaker) Voices(context.Context) ([]voice.Voice, error) {
	return s.voices, nil
}
