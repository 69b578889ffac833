// Package live runs a server-side presentation that viewers follow.
package live

import (
	"context"
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/slidecast/internal/app/narration"
	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/metrics"
)

// Session binds a Controller to the notification manager.
type Session struct {
	id string

	controller   *playback.Controller
	notification *notification.Manager
	metrics      *metrics.Collectors

	mu      sync.RWMutex
	current slide.Slide // Last displayed slide
	message string      // Completion message once complete

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewSession creates a live session for deck. speaker may be nil.
// notifier and m may be shared with other components; m may be nil.
func NewSession(
	deck *slide.Deck,
	speaker narration.Speaker,
	cfg playback.Config,
	notifier *notification.Manager,
	m *metrics.Collectors,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if notifier == nil {
		notifier = notification.NewManager(0)
	}
	return &Session{
		id:           uuid.New().String(),
		controller:   playback.NewController(deck, speaker, cfg),
		notification: notifier,
		metrics:      m,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Controller returns the session's player.
func (s *Session) Controller() *playback.Controller {
	return s.controller
}

// Run starts forwarding playback events to subscribers. It returns
// immediately; Done is closed when forwarding stops.
func (s *Session) Run() {
	s.startOnce.Do(func() {
		zlog.Info().Msgf("live session started: id=%s slides=%d", s.id, s.controller.Deck().Len())
		go func() {
			defer close(s.done)
			s.playbackLoop()
		}()
	})
}

// Done returns a channel closed when the session stops forwarding events.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe registers stream and sends it a snapshot of the current state.
func (s *Session) Subscribe(stream notification.Stream) (string, error) {
	id := s.notification.Subscribe(stream)
	s.metrics.SetViewers(s.notification.SubscriberCount())

	if err := s.notification.Send(id, s.Snapshot()); err != nil {
		s.Unsubscribe(id)
		return "", err
	}
	zlog.Debug().Msgf("live: viewer subscribed: id=%s", id)
	return id, nil
}

// Unsubscribe removes a viewer.
func (s *Session) Unsubscribe(id string) {
	s.notification.Unsubscribe(id)
	s.metrics.SetViewers(s.notification.SubscriberCount())
}

// ViewerCount returns the number of subscribed viewers.
func (s *Session) ViewerCount() int {
	return s.notification.SubscriberCount()
}

// Snapshot describes the current state including the displayed slide.
func (s *Session) Snapshot() *notification.Notification {
	st := s.controller.State()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := newNotification("snapshot", st)
	n.HTML = s.current.HTML
	n.Markdown = s.current.Markdown
	n.Message = s.message
	return n
}

// Close stops the controller and the event loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.controller.Close()
		s.cancel()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
		s.notification.Close()
		s.metrics.SetViewers(0)
		zlog.Info().Msgf("live session closed: id=%s", s.id)
	})
}

// playbackLoop handles playback events.
func (s *Session) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("live: playback loop panicked: %v", r)
		}
	}()

	events := s.controller.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent records metrics and broadcasts the event.
func (s *Session) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("live: playback event: type=%s index=%d", event.Type, event.State.CurrentIndex)

	n := newNotification(event.Type.String(), event.State)

	switch event.Type {
	case playback.EventSlideChanged:
		s.mu.Lock()
		s.current = event.Slide
		s.message = ""
		s.mu.Unlock()
		s.metrics.SlideShown(event.State.Mode)
		n.HTML = event.Slide.HTML
		n.Markdown = event.Slide.Markdown

	case playback.EventChunkSpoken:
		s.metrics.ChunkSpoken(event.Err, event.Duration)
		n.Caption = event.Caption

	case playback.EventComplete:
		s.mu.Lock()
		s.message = event.Message
		s.mu.Unlock()
		s.metrics.PresentationCompleted()
		n.Message = event.Message
		zlog.Info().Msgf("live session complete: id=%s", s.id)

	case playback.EventStateChanged:
		if event.State.State == playback.StateIdle.String() {
			s.mu.Lock()
			s.current = slide.Slide{}
			s.mu.Unlock()
		}
	}

	if failures := s.notification.Broadcast(n); failures > 0 {
		s.metrics.BroadcastFailures(failures)
		s.metrics.SetViewers(s.notification.SubscriberCount())
	}
}

func newNotification(kind string, st playback.PlaybackState) *notification.Notification {
	return &notification.Notification{
		Type:   kind,
		Index:  st.CurrentIndex,
		Total:  st.Total,
		State:  st.State,
		Mode:   st.Mode,
		Paused: st.Paused,
		Rate:   st.Rate,
		Title:  st.Title,
	}
}
