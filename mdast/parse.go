package mdast

import (
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// Parse parses a Markdown string into a plain-data AST rooted at a
// "root" node. The parser is gomarkdown with the common extension set
// (tables, fenced code, strikethrough, autolinks).
func Parse(md string) *Node {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(md))
	root := convert(doc)
	if root == nil {
		root = &Node{Type: "root"}
	}
	return root
}

// convert maps one gomarkdown node (and its subtree) to the plain node
// shape. Unknown node kinds are dropped.
func convert(gn ast.Node) *Node {
	switch v := gn.(type) {
	case *ast.Document:
		return parent("root", nil, gn)

	case *ast.Paragraph:
		return parent("paragraph", nil, gn)

	case *ast.Heading:
		n := parent("heading", nil, gn)
		n.SetAttr("depth", v.Level)
		return n

	case *ast.BlockQuote:
		return parent("blockquote", nil, gn)

	case *ast.List:
		n := parent("list", nil, gn)
		ordered := v.ListFlags&ast.ListTypeOrdered != 0
		n.SetAttr("ordered", ordered)
		if ordered && v.Start > 0 {
			n.SetAttr("start", v.Start)
		}
		return n

	case *ast.ListItem:
		return parent("listItem", nil, gn)

	case *ast.HorizontalRule:
		return &Node{Type: "thematicBreak"}

	case *ast.CodeBlock:
		n := &Node{Type: "code"}
		n.SetAttr("value", trimTrailingNewline(string(v.Literal)))
		if len(v.Info) > 0 {
			n.SetAttr("lang", string(v.Info))
		}
		return n

	case *ast.HTMLBlock:
		n := &Node{Type: "html"}
		n.SetAttr("value", trimTrailingNewline(string(v.Literal)))
		return n

	case *ast.Text:
		if len(v.Literal) == 0 {
			return nil
		}
		// gomarkdown keeps soft line breaks inside the text literal;
		// they are normalized to a space, as for Softbreak below.
		n := &Node{Type: "text"}
		n.SetAttr("value", strings.ReplaceAll(string(v.Literal), "\n", " "))
		return n

	case *ast.Softbreak:
		// A soft line break inside a paragraph; normalized to a space so
		// that reflowed paragraphs fingerprint identically.
		n := &Node{Type: "text"}
		n.SetAttr("value", " ")
		return n

	case *ast.Hardbreak:
		return &Node{Type: "break"}

	case *ast.Emph:
		return parent("emphasis", nil, gn)

	case *ast.Strong:
		return parent("strong", nil, gn)

	case *ast.Del:
		return parent("delete", nil, gn)

	case *ast.Link:
		n := parent("link", nil, gn)
		n.SetAttr("url", string(v.Destination))
		if len(v.Title) > 0 {
			n.SetAttr("title", string(v.Title))
		}
		return n

	case *ast.Image:
		n := parent("image", nil, gn)
		n.SetAttr("url", string(v.Destination))
		if len(v.Title) > 0 {
			n.SetAttr("title", string(v.Title))
		}
		return n

	case *ast.Code:
		n := &Node{Type: "inlineCode"}
		n.SetAttr("value", string(v.Literal))
		return n

	case *ast.HTMLSpan:
		n := &Node{Type: "html"}
		n.SetAttr("value", string(v.Literal))
		return n

	case *ast.Table:
		return parent("table", nil, gn)

	case *ast.TableHeader:
		return parent("tableHeader", nil, gn)

	case *ast.TableBody:
		return parent("tableBody", nil, gn)

	case *ast.TableRow:
		return parent("tableRow", nil, gn)

	case *ast.TableCell:
		n := parent("tableCell", nil, gn)
		if v.IsHeader {
			n.SetAttr("header", true)
		}
		if align := alignString(v.Align); align != "" {
			n.SetAttr("align", align)
		}
		return n

	default:
		return nil
	}
}

// parent converts a container node, merging adjacent text children so
// that softbreak normalization cannot split what one replica sees as a
// single text leaf.
func parent(typ string, attrs map[string]interface{}, gn ast.Node) *Node {
	n := &Node{Type: typ, Attrs: attrs, Children: []*Node{}}
	for _, gc := range gn.GetChildren() {
		c := convert(gc)
		if c == nil {
			continue
		}
		if c.Type == "text" && len(n.Children) > 0 {
			last := n.Children[len(n.Children)-1]
			if last.Type == "text" {
				last.SetAttr("value", last.AttrString("value")+c.AttrString("value"))
				continue
			}
		}
		n.Children = append(n.Children, c)
	}
	return n
}

func alignString(flags ast.CellAlignFlags) string {
	switch flags {
	case ast.TableAlignmentLeft:
		return "left"
	case ast.TableAlignmentRight:
		return "right"
	case ast.TableAlignmentCenter:
		return "center"
	}
	return ""
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}
