package playback

import (
	"time"

	"github.com/osa030/slidecast/internal/domain/slide"
)

// EventType represents a playback event type.
type EventType int

const (
	EventStateChanged EventType = iota // Started, paused, resumed or stopped
	EventSlideChanged                  // A slide is displayed
	EventRateChanged                   // Rate, pitch or voice changed
	EventChunkSpoken                   // A narration chunk finished (or failed)
	EventComplete                      // Presentation finished
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventSlideChanged:
		return "slide_changed"
	case EventRateChanged:
		return "rate_changed"
	case EventChunkSpoken:
		return "chunk_spoken"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	State    PlaybackState
	Slide    slide.Slide   // Current slide (zero for some events)
	Caption  string        // Chunk text for EventChunkSpoken
	Message  string        // Completion message for EventComplete
	Err      error         // Speech error for EventChunkSpoken
	Duration time.Duration // Speaking time for EventChunkSpoken
}
