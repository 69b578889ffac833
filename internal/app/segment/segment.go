// Package segment turns Markdown documents into slide decks.
package segment

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/osa030/slidecast/internal/domain/slide"
)

// Options configures Markdown rendering.
type Options struct {
	Extensions []string // goldmark extensions by name; empty means gfm, linkify, tasklist
	HardWraps  bool     // Render soft line breaks as <br>
	SafeMode   bool     // Drop raw HTML instead of passing it through
}

// Segmenter renders Markdown and splits it into slides at top-level headings.
// It is stateless and safe for concurrent use.
type Segmenter struct {
	md goldmark.Markdown
}

// New creates a Segmenter.
func New(opts Options) *Segmenter {
	return &Segmenter{md: newEngine(opts)}
}

var extensionRegistry = map[string]goldmark.Extender{
	"gfm":           extension.GFM,
	"table":         extension.Table,
	"strikethrough": extension.Strikethrough,
	"linkify":       extension.Linkify,
	"tasklist":      extension.TaskList,
	"definition":    extension.DefinitionList,
	"typographer":   extension.Typographer,
}

func newEngine(opts Options) goldmark.Markdown {
	var exts []goldmark.Extender
	if len(opts.Extensions) == 0 {
		exts = []goldmark.Extender{extension.GFM, extension.Linkify, extension.TaskList}
	}
	seen := map[string]bool{}
	for _, name := range opts.Extensions {
		key := strings.ToLower(strings.TrimSpace(name))
		ext, ok := extensionRegistry[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		exts = append(exts, ext)
	}

	var rendererOptions []renderer.Option
	if opts.HardWraps {
		rendererOptions = append(rendererOptions, html.WithHardWraps())
	}
	if !opts.SafeMode {
		rendererOptions = append(rendererOptions, html.WithUnsafe())
	}

	return goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(rendererOptions...),
	)
}

// Segment parses source into a deck. Front matter, when present, fills
// the deck Meta. A new slide starts at each top-level heading once content
// has accumulated; anything before the first heading is slide 0.
func (s *Segmenter) Segment(source []byte) (*slide.Deck, error) {
	var meta slide.Meta
	body, err := frontmatter.Parse(bytes.NewReader(source), &meta)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse front matter")
	}

	doc := s.md.Parser().Parse(text.NewReader(body))
	r := s.md.Renderer()

	var (
		slides    []slide.Slide
		current   bytes.Buffer
		segStart  int
		lastStop  int
		firstHead string
	)

	flush := func(end int) {
		fragment := strings.TrimSpace(current.String())
		current.Reset()
		if fragment == "" {
			return
		}
		if end < segStart {
			end = segStart
		}
		slides = append(slides, slide.Slide{
			HTML:     fragment,
			Markdown: strings.TrimSpace(string(body[segStart:end])),
		})
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok {
			start := headingStart(body, heading, lastStop)
			if strings.TrimSpace(current.String()) != "" {
				flush(start)
				segStart = start
			}
			if firstHead == "" {
				firstHead = string(heading.Text(body))
			}
		}
		if err := r.Render(&current, body, n); err != nil {
			return nil, errors.Wrap(err, "failed to render markdown")
		}
		if stop := blockStop(n); stop > lastStop {
			lastStop = stop
		}
	}
	flush(len(body))

	if meta.Title == "" {
		meta.Title = strings.TrimSpace(firstHead)
	}

	zlog.Debug().Msgf("segment: rendered %d slides (title=%q)", len(slides), meta.Title)

	return &slide.Deck{Meta: meta, Slides: slides}, nil
}

// headingStart returns the offset of the beginning of the line holding the
// heading. Headings without text fall back to the end of the previous block.
func headingStart(source []byte, h *ast.Heading, fallback int) int {
	lines := h.Lines()
	if lines == nil || lines.Len() == 0 {
		for fallback < len(source) && source[fallback] != '\n' {
			fallback++
		}
		if fallback < len(source) {
			fallback++
		}
		return fallback
	}
	start := lines.At(0).Start
	for start > 0 && source[start-1] != '\n' {
		start--
	}
	return start
}

// blockStop returns the largest source offset covered by n's block descendants.
func blockStop(n ast.Node) int {
	stop := 0
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		if lines := c.Lines(); lines != nil && lines.Len() > 0 {
			if s := lines.At(lines.Len() - 1).Stop; s > stop {
				stop = s
			}
		}
		return ast.WalkContinue, nil
	})
	return stop
}

// LoadFile reads a deck from disk. Files ending in .json are read as slide
// JSON; anything else is treated as Markdown.
func (s *Segmenter) LoadFile(path string) (*slide.Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		slides, err := slide.UnmarshalSlides(data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", path)
		}
		return &slide.Deck{Slides: slides}, nil
	}

	deck, err := s.Segment(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to segment %s", path)
	}
	return deck, nil
}
