// Package htmlutil provides helpers for working with slide HTML fragments.
package htmlutil

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment parses an HTML fragment in a <body> context.
func ParseFragment(fragment string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html fragment")
	}
	return nodes, nil
}

// RenderFragment renders nodes back to HTML.
func RenderFragment(nodes []*html.Node) (string, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", errors.Wrap(err, "failed to render html fragment")
		}
	}
	return buf.String(), nil
}

// ExtractText returns the concatenated text content of a fragment.
// Whitespace is kept as-is.
func ExtractText(fragment string) string {
	nodes, err := ParseFragment(fragment)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, n := range nodes {
		collectText(&sb, n)
	}
	return sb.String()
}

func collectText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(sb, c)
	}
}

// IsAbsoluteSource reports whether src needs no base URL: it has a scheme
// or is protocol-relative.
func IsAbsoluteSource(src string) bool {
	if strings.HasPrefix(src, "//") {
		return true
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return u.IsAbs()
}

// RewriteImageSources resolves relative <img src> values against baseURL.
// An empty baseURL returns the fragment unchanged.
func RewriteImageSources(fragment, baseURL string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return fragment, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	if !base.IsAbs() {
		return "", errors.Newf("base url %q must be absolute", baseURL)
	}

	nodes, err := ParseFragment(fragment)
	if err != nil {
		return "", err
	}

	changed := false
	for _, n := range nodes {
		walkElements(n, atom.Img, func(img *html.Node) {
			for i, attr := range img.Attr {
				if attr.Namespace != "" || attr.Key != "src" {
					continue
				}
				src := strings.TrimSpace(attr.Val)
				if src == "" || IsAbsoluteSource(src) {
					continue
				}
				ref, err := url.Parse(src)
				if err != nil {
					continue
				}
				img.Attr[i].Val = base.ResolveReference(ref).String()
				changed = true
			}
		})
	}

	if !changed {
		return fragment, nil
	}
	return RenderFragment(nodes)
}

// ImageSources returns the src attribute of every <img> in the fragment.
func ImageSources(fragment string) []string {
	nodes, err := ParseFragment(fragment)
	if err != nil {
		return nil
	}
	var srcs []string
	for _, n := range nodes {
		walkElements(n, atom.Img, func(img *html.Node) {
			for _, attr := range img.Attr {
				if attr.Key == "src" {
					srcs = append(srcs, attr.Val)
				}
			}
		})
	}
	return srcs
}

func walkElements(n *html.Node, a atom.Atom, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.DataAtom == a {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, a, fn)
	}
}

// EscapeScriptJSON makes JSON safe to embed inside a <script> element.
// Every "</" becomes "<\/" and "<!--" becomes "\u003c!--"; both remain valid JSON.
func EscapeScriptJSON(data []byte) []byte {
	out := bytes.ReplaceAll(data, []byte("<!--"), []byte(`\u003c!--`))
	return bytes.ReplaceAll(out, []byte("</"), []byte(`<\/`))
}
