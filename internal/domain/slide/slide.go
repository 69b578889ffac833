// Package slide provides the Slide and Deck domain entities.
package slide

import "github.com/cockroachdb/errors"

// DefaultTitle is used when a deck has no title of its own.
const DefaultTitle = "Presentation"

// ErrEmptyDeck is returned when a deck without slides is used for playback or export.
var ErrEmptyDeck = errors.New("deck has no slides")

// Slide is one rendered segment of a presentation.
type Slide struct {
	HTML     string `json:"html"` // Rendered HTML fragment
	Markdown string `json:"-"`    // Markdown source the fragment was rendered from (may be empty)
}

// Meta holds deck-level settings read from YAML front matter.
type Meta struct {
	Title   string  `yaml:"title" json:"title,omitempty"`
	BaseURL string  `yaml:"base_url" json:"base_url,omitempty"`
	Voice   string  `yaml:"voice" json:"voice,omitempty"`
	Rate    float64 `yaml:"rate" json:"rate,omitempty"`
	Pitch   float64 `yaml:"pitch" json:"pitch,omitempty"`
	Mode    string  `yaml:"mode" json:"mode,omitempty"`
}

// Deck is an ordered, immutable sequence of slides.
type Deck struct {
	ID     string  // Store identifier (empty until published)
	Meta   Meta    // Front matter settings
	Slides []Slide // Slides in presentation order
}

// Len returns the number of slides.
func (d *Deck) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Slides)
}

// At returns the slide at index i.
func (d *Deck) At(i int) (Slide, bool) {
	if d == nil || i < 0 || i >= len(d.Slides) {
		return Slide{}, false
	}
	return d.Slides[i], true
}

// Title returns the deck title, falling back to DefaultTitle.
func (d *Deck) Title() string {
	if d == nil || d.Meta.Title == "" {
		return DefaultTitle
	}
	return d.Meta.Title
}

// Validate checks that the deck can be played.
func (d *Deck) Validate() error {
	if d.Len() == 0 {
		return ErrEmptyDeck
	}
	return nil
}

// WithSlides returns a copy of the deck holding the given slides.
func (d *Deck) WithSlides(slides []Slide) *Deck {
	return &Deck{
		ID:     d.ID,
		Meta:   d.Meta,
		Slides: slides,
	}
}
