// Package export renders decks as standalone browser players.
package export

import (
	"archive/zip"
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/htmlutil"
)

// Export formats.
const (
	FormatHTML = "html"
	FormatZip  = "zip"
)

// Bundle member names.
const (
	BundleIndex  = "index.html"
	BundleSlides = "slides.json"
	BundleStyle  = "style.css"
)

//go:embed assets
var assets embed.FS

var playerTemplate = template.Must(
	template.New("player.html.tmpl").ParseFS(assets, "assets/player.html.tmpl"),
)

// Options controls how a deck is exported.
type Options struct {
	Title    string          // Document title (deck title when empty)
	BaseURL  string          // Base for relative image sources (none when empty)
	Mode     string          // Mode suggested on the start screen
	Playback playback.Config // Narration defaults baked into the player
}

// DefaultOptions returns options carrying the standard narration settings.
func DefaultOptions() Options {
	return Options{Playback: playback.DefaultConfig()}
}

// WithMeta returns a copy of o with the deck front matter applied on top.
func (o Options) WithMeta(m slide.Meta) Options {
	if m.Title != "" {
		o.Title = m.Title
	}
	if m.BaseURL != "" {
		o.BaseURL = m.BaseURL
	}
	if m.Mode != "" {
		o.Mode = m.Mode
	}
	if m.Voice != "" {
		o.Playback.Voice = m.Voice
	}
	if m.Rate > 0 {
		o.Playback.Rate = m.Rate
	}
	if m.Pitch > 0 {
		o.Playback.Pitch = m.Pitch
	}
	return o
}

// playerConfig is the JSON settings block read by player.js.
type playerConfig struct {
	Title              string   `json:"title"`
	Mode               string   `json:"mode,omitempty"`
	Rate               float64  `json:"rate"`
	Pitch              float64  `json:"pitch"`
	Voice              string   `json:"voice,omitempty"`
	PreferredVoices    []string `json:"preferred_voices"`
	ReadingPauseMs     int64    `json:"reading_pause_ms"`
	SentenceGapMs      int64    `json:"sentence_gap_ms"`
	ErrorGapMs         int64    `json:"error_gap_ms"`
	EmptyGapMs         int64    `json:"empty_gap_ms"`
	VoiceLoadTimeoutMs int64    `json:"voice_load_timeout_ms"`
	MinRate            float64  `json:"min_rate"`
	MaxRate            float64  `json:"max_rate"`
	MinPitch           float64  `json:"min_pitch"`
	MaxPitch           float64  `json:"max_pitch"`
	SpeedStep          float64  `json:"speed_step"`
	SlidesURL          string   `json:"slides_url,omitempty"`
}

func (o Options) playerConfig(title, slidesURL string) playerConfig {
	pc := o.Playback
	rate, pitch := pc.Rate, pc.Pitch
	if rate <= 0 {
		rate = playback.DefaultRate
	}
	if pitch <= 0 {
		pitch = playback.DefaultPitch
	}
	preferred := pc.PreferredVoices
	if preferred == nil {
		preferred = []string{}
	}
	return playerConfig{
		Title:              title,
		Mode:               o.Mode,
		Rate:               clamp(rate, playback.MinRate, playback.MaxRate),
		Pitch:              clamp(pitch, playback.MinPitch, playback.MaxPitch),
		Voice:              pc.Voice,
		PreferredVoices:    preferred,
		ReadingPauseMs:     pc.Timing.ReadingPause.Milliseconds(),
		SentenceGapMs:      pc.Timing.SentenceGap.Milliseconds(),
		ErrorGapMs:         pc.Timing.ErrorGap.Milliseconds(),
		EmptyGapMs:         pc.Timing.EmptyGap.Milliseconds(),
		VoiceLoadTimeoutMs: pc.VoiceLoadTimeout.Milliseconds(),
		MinRate:            playback.MinRate,
		MaxRate:            playback.MaxRate,
		MinPitch:           playback.MinPitch,
		MaxPitch:           playback.MaxPitch,
		SpeedStep:          playback.SpeedStep,
		SlidesURL:          slidesURL,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Round(math.Min(hi, math.Max(lo, v))*100) / 100
}

// PrepareSlides returns copies of slides with relative image sources
// resolved against baseURL. An empty baseURL returns slides unchanged.
func PrepareSlides(slides []slide.Slide, baseURL string) ([]slide.Slide, error) {
	if baseURL == "" {
		return slides, nil
	}
	out := make([]slide.Slide, len(slides))
	for i, s := range slides {
		rewritten, err := htmlutil.RewriteImageSources(s.HTML, baseURL)
		if err != nil {
			return nil, errors.Wrapf(err, "slide %d", i+1)
		}
		out[i] = slide.Slide{HTML: rewritten, Markdown: s.Markdown}
	}
	return out, nil
}

type templateData struct {
	Title     string
	Bundle    bool
	StyleHref string
	CSS       template.CSS
	Script    template.JS
	Config    template.JS
	Slides    template.JS
}

func (o Options) prepare(deck *slide.Deck) (string, []slide.Slide, error) {
	if err := deck.Validate(); err != nil {
		return "", nil, err
	}
	title := o.Title
	if title == "" {
		title = deck.Title()
	}
	slides, err := PrepareSlides(deck.Slides, o.BaseURL)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to rewrite image sources")
	}
	return title, slides, nil
}

func (o Options) render(w io.Writer, title string, slides []slide.Slide, bundle bool) error {
	css, err := assets.ReadFile("assets/player.css")
	if err != nil {
		return errors.Wrap(err, "failed to read player stylesheet")
	}
	script, err := assets.ReadFile("assets/player.js")
	if err != nil {
		return errors.Wrap(err, "failed to read player script")
	}

	slidesURL := ""
	if bundle {
		slidesURL = BundleSlides
	}
	cfg, err := json.Marshal(o.playerConfig(title, slidesURL))
	if err != nil {
		return errors.Wrap(err, "failed to encode player config")
	}

	data := templateData{
		Title:     title,
		Bundle:    bundle,
		StyleHref: BundleStyle,
		CSS:       template.CSS(css),
		Script:    template.JS(script),
		Config:    template.JS(htmlutil.EscapeScriptJSON(cfg)),
	}
	if !bundle {
		raw, err := slide.MarshalSlides(slides)
		if err != nil {
			return err
		}
		data.Slides = template.JS(htmlutil.EscapeScriptJSON(raw))
	}

	if err := playerTemplate.Execute(w, data); err != nil {
		return errors.Wrap(err, "failed to render player")
	}
	return nil
}

// WriteHTML writes a single-file player with the slides embedded.
func WriteHTML(w io.Writer, deck *slide.Deck, opts Options) error {
	title, slides, err := opts.prepare(deck)
	if err != nil {
		return err
	}
	return opts.render(w, title, slides, false)
}

// WriteBundle writes a zip archive holding index.html, slides.json and
// style.css. The index fetches slides.json, so it must be served over HTTP.
func WriteBundle(w io.Writer, deck *slide.Deck, opts Options) error {
	title, slides, err := opts.prepare(deck)
	if err != nil {
		return err
	}

	var index bytes.Buffer
	if err := opts.render(&index, title, slides, true); err != nil {
		return err
	}
	slidesJSON, err := slide.MarshalSlides(slides)
	if err != nil {
		return err
	}
	css, err := assets.ReadFile("assets/player.css")
	if err != nil {
		return errors.Wrap(err, "failed to read player stylesheet")
	}

	zw := zip.NewWriter(w)
	for _, f := range []struct {
		name string
		data []byte
	}{
		{BundleIndex, index.Bytes()},
		{BundleSlides, slidesJSON},
		{BundleStyle, css},
	} {
		fw, err := zw.Create(f.name)
		if err != nil {
			return errors.Wrapf(err, "failed to add %s", f.name)
		}
		if _, err := fw.Write(f.data); err != nil {
			return errors.Wrapf(err, "failed to write %s", f.name)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "failed to finish bundle")
	}
	zlog.Debug().Msgf("export: bundled %d slides", len(slides))
	return nil
}

// Write exports deck in the given format ("html" or "zip").
func Write(w io.Writer, deck *slide.Deck, opts Options, format string) error {
	switch format {
	case FormatHTML, "":
		return WriteHTML(w, deck, opts)
	case FormatZip:
		return WriteBundle(w, deck, opts)
	default:
		return errors.Newf("unsupported export format: %s", format)
	}
}

// Filename returns the conventional output file name for format.
func Filename(format string) string {
	if format == FormatZip {
		return "slideshow-presentation.zip"
	}
	return "presentation.html"
}
