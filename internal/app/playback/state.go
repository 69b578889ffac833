// Package playback implements the presentation player state machine.
package playback

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// State represents the player state.
type State int

const (
	StateIdle     State = iota // Not started (or stopped)
	StateRunning               // Presenting
	StatePaused                // Presenting in Auto mode with narration paused
	StateComplete              // Past the last slide; terminal
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Mode selects how slides advance.
type Mode int

const (
	ModeManual Mode = iota // User advances slides, no narration
	ModeAuto               // Slides are narrated and advance when narration completes
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseMode parses "auto" or "manual" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return ModeAuto, nil
	case "manual":
		return ModeManual, nil
	default:
		return ModeManual, errors.Newf("unknown mode %q", s)
	}
}

// PlaybackState is a snapshot of the player.
type PlaybackState struct {
	State        string  `json:"state" mapstructure:"state"`
	Mode         string  `json:"mode" mapstructure:"mode"`
	CurrentIndex int     `json:"current_index" mapstructure:"current_index"`
	Total        int     `json:"total" mapstructure:"total"`
	Running      bool    `json:"running" mapstructure:"running"`
	Paused       bool    `json:"paused" mapstructure:"paused"`
	Rate         float64 `json:"rate" mapstructure:"rate"`
	Pitch        float64 `json:"pitch" mapstructure:"pitch"`
	Voice        string  `json:"voice" mapstructure:"voice"`
	Title        string  `json:"title" mapstructure:"title"`
}
