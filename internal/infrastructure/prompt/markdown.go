package prompt

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// renderMarkdownPlain walks a goldmark AST and flattens it to plain text,
// suitable for embedding host-profile notes and knowledge-store snippets
// (both authored as Markdown) into the system prompt without HTML or
// formatting markers surviving into the model's context.
func renderMarkdownPlain(src []byte) string {
	if len(src) == 0 {
		return ""
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	r := &plainTextRenderer{src: src}
	var buf bytes.Buffer
	r.renderChildren(&buf, doc)

	return strings.TrimSpace(buf.String())
}

// plainTextRenderer strips Markdown structure down to readable plain text:
// headings keep their text but lose the `#` markers, lists become `- `
// bullets, code spans/blocks keep their literal content, links keep only
// their text.
type plainTextRenderer struct {
	src []byte
}

func (r *plainTextRenderer) renderChildren(w *bytes.Buffer, node ast.Node) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		r.renderNode(w, child)
	}
}

func (r *plainTextRenderer) renderNode(w *bytes.Buffer, node ast.Node) {
	switch n := node.(type) {
	case *ast.Paragraph:
		r.renderChildren(w, n)
		w.WriteString("\n\n")

	case *ast.Heading:
		r.renderChildren(w, n)
		w.WriteString("\n\n")

	case *ast.ThematicBreak:
		w.WriteString("---\n\n")

	case *ast.Blockquote:
		r.renderChildren(w, n)

	case *ast.FencedCodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			w.Write(lines.At(i).Value(r.src))
		}
		w.WriteString("\n")

	case *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			w.Write(lines.At(i).Value(r.src))
		}
		w.WriteString("\n")

	case *ast.List:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			w.WriteString("- ")
			var item bytes.Buffer
			r.renderChildren(&item, child)
			w.WriteString(strings.TrimSpace(item.String()))
			w.WriteString("\n")
		}
		w.WriteString("\n")

	case *ast.ListItem:
		r.renderChildren(w, n)

	case *ast.Text:
		w.Write(n.Segment.Value(r.src))
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.WriteString("\n")
		}

	case *ast.String:
		w.Write(n.Value)

	case *ast.CodeSpan:
		r.renderChildren(w, n)

	case *ast.Emphasis:
		r.renderChildren(w, n)

	case *ast.Link:
		r.renderChildren(w, n)

	case *ast.AutoLink:
		w.Write(n.URL(r.src))

	case *ast.Image:
		// no inline image rendering in a text prompt; keep the alt text only

	default:
		r.renderChildren(w, node)
	}
}
