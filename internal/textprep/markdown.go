package textprep

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// StripMarkdown extracts speakable text from markdown. Code blocks and raw
// HTML are dropped, link and image text is kept without the URL, and every
// heading, paragraph and list item ends a sentence.
func StripMarkdown(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var w walker
	w.walk(doc, source)
	return strings.Join(strings.Fields(string(w.buf)), " ")
}

type walker struct {
	buf []byte
}

func (w *walker) walk(node ast.Node, source []byte) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		w.buf = append(w.buf, n.Segment.Value(source)...)
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.buf = append(w.buf, ' ')
		}
		return

	case *ast.AutoLink:
		w.buf = append(w.buf, n.Label(source)...)
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem:
		w.children(node, source)
		w.endSentence()
		return

	case *ast.ThematicBreak:
		w.endSentence()
		return
	}

	w.children(node, source)
}

func (w *walker) children(node ast.Node, source []byte) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.walk(c, source)
	}
}

// endSentence terminates the text written so far with a period unless it
// already ends in punctuation.
func (w *walker) endSentence() {
	trimmed := strings.TrimRightFunc(string(w.buf), unicode.IsSpace)
	if trimmed == "" {
		return
	}
	w.buf = []byte(trimmed)
	if last, _ := utf8.DecodeLastRuneInString(trimmed); !strings.ContainsRune(".!?:", last) {
		w.buf = append(w.buf, '.')
	}
	w.buf = append(w.buf, ' ')
}
