package speech

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/narration"
	"github.com/osa030/slidecast/internal/app/voice"
)

// Command presets.
const (
	PresetEspeak = "espeak"
	PresetSay    = "say"
)

// CommandConfig configures a CommandSpeaker.
type CommandConfig struct {
	// Binary name or path; empty means the preset default.
	Command string `yaml:"command" mapstructure:"command"`
	// Words per minute at rate 1.0.
	BaseWPM int `yaml:"base_wpm" mapstructure:"base_wpm" default:"175" validate:"gte=80,lte=500"`
}

// runner executes a command with stdin and returns its stdout.
type runner func(ctx context.Context, name string, args []string, stdin string) ([]byte, error)

// CommandSpeaker speaks through an external TTS program (espeak-ng or
// macOS say). Text is passed on stdin.
type CommandSpeaker struct {
	preset  string
	command string
	config  CommandConfig
	run     runner

	speakMu  sync.Mutex
	inflight inflight
}

// NewCommandSpeaker creates a CommandSpeaker for preset from settings.
func NewCommandSpeaker(preset string, settings map[string]any) (*CommandSpeaker, error) {
	var config CommandConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("command speaker config: preset=%s %+v", preset, config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	command := config.Command
	switch preset {
	case PresetEspeak:
		if command == "" {
			command = "espeak-ng"
		}
	case PresetSay:
		if command == "" {
			command = "say"
		}
	default:
		return nil, errors.Newf("unsupported command preset: %s", preset)
	}

	return &CommandSpeaker{
		preset:  preset,
		command: command,
		config:  config,
		run:     execRunner,
	}, nil
}

// Name returns the preset name.
func (s *CommandSpeaker) Name() string {
	return s.preset
}

// Command returns the program invoked for speech.
func (s *CommandSpeaker) Command() string {
	return s.command
}

// Available reports whether the program can be found.
func (s *CommandSpeaker) Available() bool {
	_, err := exec.LookPath(s.command)
	return err == nil
}

// Speak runs the program for one utterance and waits for it to exit.
func (s *CommandSpeaker) Speak(ctx context.Context, u narration.Utterance) error {
	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	ctx, done := s.inflight.begin(ctx)
	defer done()

	args := s.speakArgs(u)
	if _, err := s.run(ctx, s.command, args, u.Text); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrapf(err, "%s failed", s.command)
	}
	return nil
}

// Cancel interrupts the current utterance.
func (s *CommandSpeaker) Cancel() {
	s.inflight.stop()
}

// Voices lists the voices reported by the program.
func (s *CommandSpeaker) Voices(ctx context.Context) ([]voice.Voice, error) {
	var args []string
	switch s.preset {
	case PresetEspeak:
		args = []string{"--voices"}
	case PresetSay:
		args = []string{"-v", "?"}
	}

	out, err := s.run(ctx, s.command, args, "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s voices", s.command)
	}

	if s.preset == PresetSay {
		return parseSayVoices(out), nil
	}
	return parseEspeakVoices(out), nil
}

func (s *CommandSpeaker) speakArgs(u narration.Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	wpm := strconv.Itoa(int(math.Round(float64(s.config.BaseWPM) * rate)))

	var args []string
	switch s.preset {
	case PresetEspeak:
		if u.Voice != nil && u.Voice.ID != "" {
			args = append(args, "-v", u.Voice.ID)
		}
		args = append(args, "-s", wpm)
		if u.Pitch > 0 {
			// espeak pitch is 0-99 with 50 as the default
			p := int(math.Round(u.Pitch * 50))
			p = max(0, min(99, p))
			args = append(args, "-p", strconv.Itoa(p))
		}
		args = append(args, "--stdin")
	case PresetSay:
		if u.Voice != nil && u.Voice.ID != "" {
			args = append(args, "-v", u.Voice.ID)
		}
		args = append(args, "-r", wpm, "-f", "-")
	}
	return args
}

// parseEspeakVoices parses `espeak-ng --voices` output:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US     (en 8)
func parseEspeakVoices(out []byte) []voice.Voice {
	var voices []voice.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		voices = append(voices, voice.Voice{
			ID:   fields[1],
			Name: strings.ReplaceAll(fields[3], "_", " "),
			Lang: fields[1],
		})
	}
	return voices
}

// parseSayVoices parses `say -v ?` output:
//
//	Alex                en_US    # Most people recognize me by my voice.
//	Bad News            en_US    # The light you see at the end of the tunnel...
func parseSayVoices(out []byte) []voice.Voice {
	var voices []voice.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.Join(fields[:len(fields)-1], " ")
		voices = append(voices, voice.Voice{
			ID:   name,
			Name: name,
			Lang: fields[len(fields)-1],
		})
	}
	return voices
}

func execRunner(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, errors.Wrap(err, msg)
		}
		return out, err
	}
	return out, nil
}
