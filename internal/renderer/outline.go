package renderer

import (
	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Heading is one entry of a document outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Outline parses rendered markdown and extracts its heading structure.
// Viewers use the outline for navigation without re-parsing the document.
func Outline(markdown []byte) []Heading {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(markdown))

	var headings []Heading
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if h, ok := n.(*gmast.Heading); ok {
			headings = append(headings, Heading{
				Level: h.Level,
				Text:  string(nodeText(h, markdown)),
			})
		}
		return gmast.WalkContinue, nil
	})
	return headings
}

func nodeText(n gmast.Node, source []byte) []byte {
	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*gmast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
			continue
		}
		out = append(out, nodeText(c, source)...)
	}
	return out
}
