package speech

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/infra/config"
)

// New creates a single backend. It returns nil for type "none".
func New(bc config.BackendConfig) (Backend, error) {
	switch bc.Type {
	case PresetEspeak, PresetSay:
		s, err := NewCommandSpeaker(bc.Type, bc.Settings)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "simulated":
		s, err := NewSimulatedSpeaker(bc.Settings)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return nil, nil
	default:
		return nil, errors.Newf("unsupported speech backend type: %s", bc.Type)
	}
}

// NewFromConfig returns the first usable backend from the configured list.
// Command backends whose program is not installed are skipped. A nil
// Backend means narration is unavailable and only Manual mode can run.
func NewFromConfig(cfg config.SpeechConfig) (Backend, error) {
	for i, bc := range cfg.Backends {
		zlog.Debug().Msgf("creating speech backend: index=%d type=%s settings=%+v", i+1, bc.Type, bc.Settings)

		if bc.Type == "none" {
			zlog.Info().Msg("speech disabled by configuration")
			return nil, nil
		}

		backend, err := New(bc)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create speech backend (index %d, type %s)", i, bc.Type)
		}

		if cs, ok := backend.(*CommandSpeaker); ok && !cs.Available() {
			zlog.Debug().Msgf("speech backend unavailable, trying next: type=%s command=%s", bc.Type, cs.Command())
			continue
		}

		zlog.Info().Msgf("using speech backend: index=%d type=%s display_name=%s", i+1, bc.Type, bc.DisplayName)
		return backend, nil
	}

	zlog.Warn().Msg("no speech backend available, narration disabled")
	return nil, nil
}
