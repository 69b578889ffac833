package slide

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeck_Accessors(t *testing.T) {
	deck := &Deck{
		Meta: Meta{Title: "Intro"},
		Slides: []Slide{
			{HTML: "<h1>One</h1>"},
			{HTML: "<h2>Two</h2>"},
		},
	}

	assert.Equal(t, 2, deck.Len())
	assert.Equal(t, "Intro", deck.Title())
	assert.NoError(t, deck.Validate())

	s, ok := deck.At(1)
	assert.True(t, ok)
	assert.Equal(t, "<h2>Two</h2>", s.HTML)

	_, ok = deck.At(2)
	assert.False(t, ok)
	_, ok = deck.At(-1)
	assert.False(t, ok)
}

func TestDeck_Empty(t *testing.T) {
	var nilDeck *Deck
	assert.Equal(t, 0, nilDeck.Len())
	assert.Equal(t, DefaultTitle, nilDeck.Title())
	assert.True(t, errors.Is(nilDeck.Validate(), ErrEmptyDeck))
	assert.True(t, errors.Is((&Deck{}).Validate(), ErrEmptyDeck))
}

func TestMarshalSlides(t *testing.T) {
	data, err := MarshalSlides([]Slide{{HTML: `<p>a & b</p>`, Markdown: "a & b"}})
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"html\": \"<p>a & b</p>\"\n  }\n]", string(data))
}

func TestUnmarshalSlides(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Slide
		wantErr bool
	}{
		{
			name:  "valid",
			input: `[{"html":"<h1>A</h1>"},{"html":"<p>B</p>","extra":1}]`,
			want:  []Slide{{HTML: "<h1>A</h1>"}, {HTML: "<p>B</p>"}},
		},
		{name: "not json", input: `<html>`, wantErr: true},
		{name: "object instead of array", input: `{"html":"x"}`, wantErr: true},
		{name: "empty array", input: `[]`, wantErr: true},
		{name: "missing html", input: `[{"text":"x"}]`, wantErr: true},
		{name: "html not a string", input: `[{"html":3}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalSlides([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSlides))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
