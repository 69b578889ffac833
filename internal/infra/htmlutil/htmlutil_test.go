package htmlutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		expected string
	}{
		{name: "heading and paragraph", fragment: "<h1>Title</h1>\n<p>Hello <em>world</em>.</p>", expected: "Title\nHello world."},
		{name: "image only", fragment: `<p><img src="a.png" alt="pic"></p>`, expected: ""},
		{name: "comments skipped", fragment: "<p>a<!-- hidden -->b</p>", expected: "ab"},
		{name: "entities decoded", fragment: "<p>Fish &amp; chips</p>", expected: "Fish & chips"},
		{name: "empty", fragment: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractText(tt.fragment))
		})
	}
}

func TestRewriteImageSources(t *testing.T) {
	t.Run("relative src resolved against base", func(t *testing.T) {
		out, err := RewriteImageSources(`<img src="pics/a.png">`, "https://x.test/docs/")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://x.test/docs/pics/a.png"}, ImageSources(out))
	})

	t.Run("absolute and protocol-relative untouched", func(t *testing.T) {
		in := `<p><img src="https://already/abs.png"><img src="//cdn.test/b.png"><img src="data:image/png;base64,AA=="></p>`
		out, err := RewriteImageSources(in, "https://x.test/docs/")
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("mixed sources", func(t *testing.T) {
		in := `<p><img src="https://already/abs.png"><img src="../up.png"></p>`
		out, err := RewriteImageSources(in, "https://x.test/docs/deck/")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://already/abs.png", "https://x.test/docs/up.png"}, ImageSources(out))
	})

	t.Run("empty base is a no-op", func(t *testing.T) {
		out, err := RewriteImageSources(`<img src="a.png">`, "  ")
		require.NoError(t, err)
		assert.Equal(t, `<img src="a.png">`, out)
	})

	t.Run("relative base rejected", func(t *testing.T) {
		_, err := RewriteImageSources(`<img src="a.png">`, "docs/")
		assert.Error(t, err)
	})
}

func TestIsAbsoluteSource(t *testing.T) {
	assert.True(t, IsAbsoluteSource("http://a/b.png"))
	assert.True(t, IsAbsoluteSource("https://a/b.png"))
	assert.True(t, IsAbsoluteSource("//a/b.png"))
	assert.False(t, IsAbsoluteSource("b.png"))
	assert.False(t, IsAbsoluteSource("/b.png"))
}

func TestEscapeScriptJSON(t *testing.T) {
	raw, err := json.Marshal([]map[string]string{{"html": "<script>x</script><!-- c -->"}})
	require.NoError(t, err)

	// encoding/json escapes '<' by default; use the unescaped form the exporter writes.
	unescaped := []byte(`[{"html":"<script>x</script><!-- c -->"}]`)
	escaped := EscapeScriptJSON(unescaped)
	assert.NotContains(t, string(escaped), "</")
	assert.NotContains(t, string(escaped), "<!--")

	var back []map[string]string
	require.NoError(t, json.Unmarshal(escaped, &back))
	var orig []map[string]string
	require.NoError(t, json.Unmarshal(raw, &orig))
	assert.Equal(t, orig, back)
}
