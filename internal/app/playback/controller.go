package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/narration"
	"github.com/osa030/slidecast/internal/app/voice"
	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/htmlutil"
)

// Errors
var (
	ErrNotIdle              = errors.New("presentation already started")
	ErrNotRunning           = errors.New("presentation not running")
	ErrComplete             = errors.New("presentation complete")
	ErrNotAuto              = errors.New("not in auto mode")
	ErrAtFirstSlide         = errors.New("already at first slide")
	ErrNarrationUnavailable = errors.New("narration unavailable")
	ErrClosed               = errors.New("controller closed")
)

// Rate and pitch limits.
const (
	MinRate      = 0.6
	MaxRate      = 1.3
	DefaultRate  = 0.95
	MinPitch     = 0.6
	MaxPitch     = 1.5
	DefaultPitch = 1.0
	SpeedStep    = 0.05 // AdjustSpeed delta used by the faster/slower keys
)

// CompleteMessage is shown once the last slide has been passed.
const CompleteMessage = "End of Presentation"

// Config holds controller configuration.
type Config struct {
	Timing           narration.Timing // Pauses used by the narration driver
	Rate             float64          // Initial rate (0 means DefaultRate)
	Pitch            float64          // Initial pitch (0 means DefaultPitch)
	Voice            string           // Requested voice name
	PreferredVoices  []string         // Preference order among US English voices
	VoiceLoadTimeout time.Duration    // Upper bound on waiting for the voice list
	EventBuffer      int              // Event channel capacity (0 means 32)
}

// DefaultConfig returns the standard controller configuration.
func DefaultConfig() Config {
	return Config{
		Timing:           narration.DefaultTiming(),
		Rate:             DefaultRate,
		Pitch:            DefaultPitch,
		PreferredVoices:  voice.DefaultPreferred,
		VoiceLoadTimeout: voice.DefaultLoadTimeout,
		EventBuffer:      32,
	}
}

// Controller drives a deck through the player state machine.
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.RWMutex

	deck  *slide.Deck
	texts []string // Plain text per slide

	state State
	mode  Mode
	index int

	rate           float64
	pitch          float64
	requestedVoice string
	voices         []voice.Voice
	voicesLoaded   bool
	selected       *voice.Voice

	// Narration
	speaker         narration.Speaker // nil when no speech backend is available
	generation      uint64            // Incremented whenever in-flight narration is invalidated
	narrationCancel context.CancelFunc
	narrationDone   chan struct{}
	wg              sync.WaitGroup

	config Config

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller for deck. speaker may be nil, in which
// case only Manual mode can be started. Rate, pitch and voice set in the
// deck's front matter take precedence over config.
func NewController(deck *slide.Deck, speaker narration.Speaker, config Config) *Controller {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 32
	}
	if config.PreferredVoices == nil {
		config.PreferredVoices = voice.DefaultPreferred
	}

	rate, pitch, requested := config.Rate, config.Pitch, config.Voice
	if deck != nil {
		if deck.Meta.Rate > 0 {
			rate = deck.Meta.Rate
		}
		if deck.Meta.Pitch > 0 {
			pitch = deck.Meta.Pitch
		}
		if deck.Meta.Voice != "" {
			requested = deck.Meta.Voice
		}
	}
	if rate == 0 {
		rate = DefaultRate
	}
	if pitch == 0 {
		pitch = DefaultPitch
	}

	texts := make([]string, deck.Len())
	for i := range texts {
		s, _ := deck.At(i)
		texts[i] = htmlutil.ExtractText(s.HTML)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deck:           deck,
		texts:          texts,
		state:          StateIdle,
		mode:           ModeManual,
		rate:           clamp(rate, MinRate, MaxRate),
		pitch:          clamp(pitch, MinPitch, MaxPitch),
		requestedVoice: requested,
		speaker:        speaker,
		config:         config,
		eventCh:        make(chan Event, config.EventBuffer),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Deck returns the deck being presented.
func (c *Controller) Deck() *slide.Deck {
	return c.deck
}

// NarrationAvailable reports whether Auto mode can be started.
func (c *Controller) NarrationAvailable() bool {
	return c.speaker != nil
}

// Start begins the presentation at slide 0.
func (c *Controller) Start(mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	switch c.state {
	case StateIdle:
	case StateComplete:
		return ErrComplete
	default:
		return ErrNotIdle
	}
	if err := c.deck.Validate(); err != nil {
		return err
	}
	if mode == ModeAuto && c.speaker == nil {
		return ErrNarrationUnavailable
	}

	c.state = StateRunning
	c.mode = mode
	c.index = 0

	zlog.Debug().Msgf("playback: started: mode=%s slides=%d", mode, c.deck.Len())

	c.sendEventLocked(Event{Type: EventStateChanged, State: c.snapshotLocked()})
	c.showLocked()
	return nil
}

// Next advances to the next slide, or completes the presentation when
// called on the last slide.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActiveLocked(); err != nil {
		return err
	}
	c.advanceLocked()
	return nil
}

// Prev goes back one slide.
func (c *Controller) Prev() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActiveLocked(); err != nil {
		return err
	}
	if c.index == 0 {
		return ErrAtFirstSlide
	}

	c.cancelNarrationLocked()
	c.index--
	c.showLocked()
	return nil
}

// TogglePause pauses or resumes narration. Resuming restarts the current
// slide from its first sentence.
func (c *Controller) TogglePause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActiveLocked(); err != nil {
		return err
	}
	if c.mode != ModeAuto {
		return ErrNotAuto
	}

	if c.state == StatePaused {
		c.state = StateRunning
		c.sendEventLocked(Event{Type: EventStateChanged, State: c.snapshotLocked()})
		c.startNarrationLocked()
		return nil
	}

	c.cancelNarrationLocked()
	c.state = StatePaused
	c.sendEventLocked(Event{Type: EventStateChanged, State: c.snapshotLocked()})
	return nil
}

// AdjustSpeed changes the rate by delta and returns the new rate. It only
// affects utterances started afterwards.
func (c *Controller) AdjustSpeed(delta float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActiveLocked(); err != nil {
		return c.rate, err
	}
	if c.mode != ModeAuto {
		return c.rate, ErrNotAuto
	}

	c.setRateLocked(c.rate + delta)
	return c.rate, nil
}

// SetRate sets the rate, clamped to [MinRate, MaxRate].
func (c *Controller) SetRate(rate float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setRateLocked(rate)
	return c.rate
}

// SetPitch sets the pitch, clamped to [MinPitch, MaxPitch].
func (c *Controller) SetPitch(pitch float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pitch = clamp(pitch, MinPitch, MaxPitch)
	c.sendEventLocked(Event{Type: EventRateChanged, State: c.snapshotLocked()})
	return c.pitch
}

// SetVoice requests a voice by name. The name is honored when the backend
// offers it; otherwise the selection policy applies.
func (c *Controller) SetVoice(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestedVoice = name
	c.selected = nil
	c.sendEventLocked(Event{Type: EventRateChanged, State: c.snapshotLocked()})
}

// Voices returns the voices loaded from the speech backend so far.
func (c *Controller) Voices() []voice.Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]voice.Voice, len(c.voices))
	copy(result, c.voices)
	return result
}

// Stop returns a running presentation to Idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActiveLocked(); err != nil {
		return err
	}

	c.cancelNarrationLocked()
	c.state = StateIdle
	c.index = 0

	zlog.Debug().Msg("playback: stopped")

	c.sendEventLocked(Event{Type: EventStateChanged, State: c.snapshotLocked()})
	return nil
}

// State returns a snapshot of the player.
func (c *Controller) State() PlaybackState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Close stops narration and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelNarrationLocked()
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	close(c.eventCh)
}

// requireActiveLocked checks that the presentation is running or paused.
// Must be called with lock held.
func (c *Controller) requireActiveLocked() error {
	if c.closed {
		return ErrClosed
	}
	switch c.state {
	case StateRunning, StatePaused:
		return nil
	case StateComplete:
		return ErrComplete
	default:
		return ErrNotRunning
	}
}

// advanceLocked moves to the next slide or completes.
// Must be called with lock held.
func (c *Controller) advanceLocked() {
	c.cancelNarrationLocked()

	if c.index >= c.deck.Len()-1 {
		c.state = StateComplete
		zlog.Debug().Msgf("playback: complete after %d slides", c.deck.Len())
		c.sendEventLocked(Event{
			Type:    EventComplete,
			State:   c.snapshotLocked(),
			Message: CompleteMessage,
		})
		return
	}

	c.index++
	c.showLocked()
}

// showLocked emits the current slide and, in Auto mode when not paused,
// starts narrating it.
// Must be called with lock held.
func (c *Controller) showLocked() {
	s, _ := c.deck.At(c.index)
	c.sendEventLocked(Event{
		Type:  EventSlideChanged,
		State: c.snapshotLocked(),
		Slide: s,
	})

	if c.mode == ModeAuto && c.state == StateRunning {
		c.startNarrationLocked()
	}
}

// startNarrationLocked narrates the current slide in a new goroutine. The
// goroutine waits for the previous narration to exit so that at most one
// utterance is in flight.
// Must be called with lock held.
func (c *Controller) startNarrationLocked() {
	c.cancelNarrationLocked()

	gen := c.generation
	index := c.index
	text := c.texts[index]

	ctx, cancel := context.WithCancel(c.ctx)
	prev := c.narrationDone
	done := make(chan struct{})
	c.narrationCancel = cancel
	c.narrationDone = done

	driver := narration.NewDriver(c.speaker, c.config.Timing)
	driver.OnChunk = func(r narration.ChunkResult) {
		c.onChunk(gen, r)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)

		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}

		c.ensureVoices(ctx)

		if err := driver.Narrate(ctx, text, c.params); err != nil {
			zlog.Debug().Msgf("playback: narration of slide %d stopped: %v", index, err)
			return
		}
		c.onNarrationDone(gen)
	}()
}

// cancelNarrationLocked stops in-flight narration and invalidates its
// completion.
// Must be called with lock held.
func (c *Controller) cancelNarrationLocked() {
	c.generation++
	if c.narrationCancel != nil {
		c.narrationCancel()
		c.narrationCancel = nil
	}
	if c.speaker != nil {
		c.speaker.Cancel()
	}
}

// onNarrationDone autoadvances when the finished narration still belongs
// to the current slide.
func (c *Controller) onNarrationDone(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation || c.state != StateRunning || c.mode != ModeAuto {
		zlog.Debug().Msgf("playback: ignoring stale narration completion (gen=%d current=%d)", gen, c.generation)
		return
	}
	c.advanceLocked()
}

func (c *Controller) onChunk(gen uint64, r narration.ChunkResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.sendEventLocked(Event{
		Type:     EventChunkSpoken,
		State:    c.snapshotLocked(),
		Caption:  r.Text,
		Err:      r.Err,
		Duration: r.Duration,
	})
}

// ensureVoices loads the backend voice list once, bounded by the
// configured timeout.
func (c *Controller) ensureVoices(ctx context.Context) {
	c.mu.RLock()
	loaded := c.voicesLoaded
	c.mu.RUnlock()
	if loaded {
		return
	}

	src, ok := c.speaker.(voice.Source)
	if !ok {
		c.mu.Lock()
		c.voicesLoaded = true
		c.mu.Unlock()
		return
	}

	voices, err := voice.Load(ctx, src, c.config.VoiceLoadTimeout, 0)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.voices = voices
	c.voicesLoaded = true
	c.selected = nil
	zlog.Debug().Msgf("playback: loaded %d voices", len(voices))
}

// params returns the voice settings for the next utterance.
func (c *Controller) params() narration.Params {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == nil && len(c.voices) > 0 {
		if v, ok := voice.Select(c.voices, c.config.PreferredVoices, c.requestedVoice); ok {
			c.selected = &v
		}
	}
	return narration.Params{Voice: c.selected, Rate: c.rate, Pitch: c.pitch}
}

func (c *Controller) setRateLocked(rate float64) {
	c.rate = clamp(rate, MinRate, MaxRate)
	c.sendEventLocked(Event{Type: EventRateChanged, State: c.snapshotLocked()})
}

// snapshotLocked builds a PlaybackState.
// Must be called with lock held.
func (c *Controller) snapshotLocked() PlaybackState {
	name := c.requestedVoice
	if c.selected != nil {
		name = c.selected.Name
	}
	return PlaybackState{
		State:        c.state.String(),
		Mode:         c.mode.String(),
		CurrentIndex: c.index,
		Total:        c.deck.Len(),
		Running:      c.state == StateRunning || c.state == StatePaused,
		Paused:       c.state == StatePaused,
		Rate:         c.rate,
		Pitch:        c.pitch,
		Voice:        name,
		Title:        c.deck.Title(),
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		zlog.Debug().Msgf("playback: event channel full, dropping %s", e.Type)
	}
}

// clamp limits v to [lo, hi] and rounds it to two decimals.
func clamp(v, lo, hi float64) float64 {
	v = math.Round(v*100) / 100
	return math.Min(hi, math.Max(lo, v))
}
