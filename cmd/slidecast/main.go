// Package main provides the slidecast command line entry point.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/export"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/app/segment"
	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/config"
	"github.com/osa030/slidecast/internal/infra/logger"
	"github.com/osa030/slidecast/internal/infra/speech"
)

var (
	app        = kingpin.New("slidecast", "Markdown slide decks with text-to-speech narration")
	configPath = app.Flag("config", "Path to config file").Default("slidecast.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	noColor    = app.Flag("no-color", "Disable colored output").Bool()
	backend    = app.Flag("backend", "Speech backend override (espeak, say, simulated, none)").Enum("espeak", "say", "simulated", "none")

	// build command
	buildCmd     = app.Command("build", "Segment Markdown into slide JSON")
	buildInput   = buildCmd.Arg("input", "Markdown file").Required().ExistingFile()
	buildOutput  = buildCmd.Flag("output", "Output file (default: stdout)").Short('o').String()
	buildBaseURL = buildCmd.Flag("base-url", "Resolve relative image sources against this URL").String()

	// export command
	exportCmd     = app.Command("export", "Export a standalone player")
	exportInput   = exportCmd.Arg("input", "Markdown or slide JSON file").Required().ExistingFile()
	exportOutput  = exportCmd.Flag("output", "Output file (default depends on format)").Short('o').String()
	exportFormat  = exportCmd.Flag("format", "Output format").Enum(export.FormatHTML, export.FormatZip)
	exportBaseURL = exportCmd.Flag("base-url", "Resolve relative image sources against this URL").String()
	exportTitle   = exportCmd.Flag("title", "Document title").String()

	// present command
	presentCmd   = app.Command("present", "Present a deck in the terminal")
	presentInput = presentCmd.Arg("input", "Markdown or slide JSON file").Required().ExistingFile()
	presentMode  = presentCmd.Flag("mode", "Playback mode").Enum("auto", "manual")

	// serve command
	serveCmd       = app.Command("serve", "Serve decks over HTTP and host a live presentation")
	serveAddr      = serveCmd.Flag("addr", "Listen address").String()
	serveDeck      = serveCmd.Flag("deck", "Deck presented live (Markdown or slide JSON)").ExistingFile()
	serveAutostart = serveCmd.Flag("autostart", "Start the live presentation immediately").Bool()

	// voices command
	voicesCmd = app.Command("voices", "List voices offered by the speech backend")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output:  "stderr",
		Level:   "info",
		NoColor: *noColor,
	}
	if command == presentCmd.FullCommand() {
		// Keep the terminal for slides
		loggerConfig.Level = "warn"
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	zlog.Debug().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *backend != "" {
		cfg.Speech.Backends = []config.BackendConfig{{Type: *backend}}
	}

	switch command {
	case buildCmd.FullCommand():
		err = runBuild(cfg)
	case exportCmd.FullCommand():
		err = runExport(cfg)
	case presentCmd.FullCommand():
		err = runPresent(cfg)
	case serveCmd.FullCommand():
		err = runServe(cfg)
	case voicesCmd.FullCommand():
		err = runVoices(cfg)
	default:
		err = runRemote(cfg, command)
	}
	if err != nil {
		zlog.Error().Msgf("%s: %v", command, err)
		_ = closer.Close()
		os.Exit(1)
	}
}

func newSegmenter(cfg *config.Config) *segment.Segmenter {
	return segment.New(segment.Options{
		Extensions: cfg.Markdown.Extensions,
		HardWraps:  cfg.Markdown.HardWraps,
		SafeMode:   cfg.Markdown.SafeMode,
	})
}

func loadDeck(cfg *config.Config, path string) (*slide.Deck, error) {
	deck, err := newSegmenter(cfg).LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := deck.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return deck, nil
}

func playbackConfig(cfg *config.Config) playback.Config {
	pc := playback.DefaultConfig()
	pc.Timing.ReadingPause = cfg.Narration.ReadingPause()
	pc.Timing.SentenceGap = cfg.Narration.SentenceGap()
	pc.Timing.ErrorGap = cfg.Narration.ErrorGap()
	pc.Timing.EmptyGap = cfg.Narration.EmptyGap()
	pc.Rate = cfg.Speech.Rate
	pc.Pitch = cfg.Speech.Pitch
	pc.Voice = cfg.Speech.Voice
	if len(cfg.Speech.PreferredVoices) > 0 {
		pc.PreferredVoices = cfg.Speech.PreferredVoices
	}
	pc.VoiceLoadTimeout = cfg.Speech.VoiceLoadTimeout()
	return pc
}

func exportOptions(cfg *config.Config) export.Options {
	return export.Options{
		Title:    cfg.Export.Title,
		BaseURL:  cfg.Export.BaseURL,
		Mode:     cfg.Presenter.Mode,
		Playback: playbackConfig(cfg),
	}
}

// newSpeaker returns the configured speech backend, or nil when narration
// is unavailable.
func newSpeaker(cfg *config.Config) (speech.Backend, error) {
	return speech.NewFromConfig(cfg.Speech)
}

// outputWriter opens path for writing, or stdout when path is empty.
func outputWriter(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
