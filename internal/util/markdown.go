package util

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var mdParser = goldmark.New().Parser()

// MarkdownToText renders chapter markdown as plain text: emphasis, links and
// headings lose their markup, fenced code and raw HTML are dropped, indented
// blocks are kept as prose, and every block ends with a newline so sentence
// splitting still sees block boundaries.
func MarkdownToText(src string) string {
	source := []byte(src)
	doc := mdParser.Parse(text.NewReader(source))
	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		case ast.KindCodeBlock:
			// plain chapters often indent paragraphs by four spaces
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(bytes.TrimRight(seg.Value(source), "\r\n"))
					buf.WriteByte(' ')
				}
				return ast.WalkContinue, nil
			}
			buf.WriteByte('\n')
			return ast.WalkContinue, nil
		case ast.KindText:
			if entering {
				t := n.(*ast.Text)
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
			return ast.WalkContinue, nil
		case ast.KindString:
			if entering {
				buf.Write(n.(*ast.String).Value)
			}
			return ast.WalkContinue, nil
		}
		if !entering && n.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})
	return SanitizeText(buf.String())
}
