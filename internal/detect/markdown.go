package detect

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

var markdown = goldmark.New()

// PlainText renders markdown to the text a reader would see. Code blocks
// and raw HTML are dropped, block elements end with a newline.
func PlainText(src string) string {
	reader := text.NewReader([]byte(src))
	doc := markdown.Parser().Parse(reader)

	var buf strings.Builder
	walkNode(doc, reader.Source(), &buf)
	return norm.NFC.String(strings.TrimSpace(buf.String()))
}

// walkNode recursively walks the AST and extracts text content.
func walkNode(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte('\n')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.AutoLink:
		buf.Write(n.Label(source))
		return

	case *ast.Image:
		// Alt text is not spoken
		return

	case *ast.ThematicBreak:
		buf.WriteByte('\n')
		return
	}

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walkNode(c, source, buf)
	}

	if node.Type() == ast.TypeBlock && node.Kind() != ast.KindDocument {
		endBlock(buf)
	}
}

// endBlock terminates the current line once.
func endBlock(buf *strings.Builder) {
	s := buf.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		buf.WriteByte('\n')
	}
}
