package mdast

import (
	"strconv"
	"strings"
)

// Stringify renders a node back to Markdown in a fixed normal form:
// ATX headings, "-" bullets, fenced code blocks, "---" breaks, one
// blank line between blocks, a single trailing newline. The normal
// form is a fixed point of Parse followed by Stringify, which is what
// makes byte-for-byte convergence of replicas testable.
func Stringify(n *Node) string {
	if n == nil {
		return ""
	}
	if n.Type == "root" {
		body := renderBlocks(n.Children)
		if body == "" {
			return ""
		}
		return body + "\n"
	}
	return renderStandalone(n)
}

// renderStandalone renders a single non-root node, block or inline.
func renderStandalone(n *Node) string {
	if isBlockType(n.Type) {
		return renderBlock(n)
	}
	return renderInline(n)
}

func isBlockType(typ string) bool {
	switch typ {
	case "paragraph", "heading", "blockquote", "list", "listItem",
		"code", "html", "thematicBreak", "table":
		return true
	}
	return false
}

func renderBlocks(blocks []*Node) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if s := renderBlock(b); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderBlock(n *Node) string {
	switch n.Type {
	case "heading":
		depth := n.AttrInt("depth")
		if depth < 1 {
			depth = 1
		}
		if depth > 6 {
			depth = 6
		}
		return strings.Repeat("#", depth) + " " + renderInlines(n.Children)

	case "paragraph":
		return renderInlines(n.Children)

	case "blockquote":
		return prefixLines(renderBlocks(n.Children), "> ")

	case "list":
		return renderList(n)

	case "listItem":
		return renderBlocks(n.Children)

	case "code":
		lang := n.AttrString("lang")
		value := n.AttrString("value")
		return "```" + lang + "\n" + value + "\n```"

	case "html":
		return n.AttrString("value")

	case "thematicBreak":
		return "---"

	case "table":
		return renderTable(n)

	default:
		// An inline node in block position: wrap as its own line.
		return renderInline(n)
	}
}

func renderList(n *Node) string {
	ordered := n.AttrBool("ordered")
	number := n.AttrInt("start")
	if number < 1 {
		number = 1
	}

	items := make([]string, 0, len(n.Children))
	for _, item := range n.Children {
		var marker string
		if ordered {
			marker = strconv.Itoa(number) + ". "
			number++
		} else {
			marker = "- "
		}

		body := renderBlocks(item.Children)
		indent := strings.Repeat(" ", len(marker))
		lines := strings.Split(body, "\n")
		for i := 1; i < len(lines); i++ {
			if lines[i] != "" {
				lines[i] = indent + lines[i]
			}
		}
		items = append(items, marker+strings.Join(lines, "\n"))
	}
	return strings.Join(items, "\n")
}

func renderTable(n *Node) string {
	var rows []*Node
	var aligns []string
	for _, section := range n.Children {
		switch section.Type {
		case "tableHeader", "tableBody":
			for _, row := range section.Children {
				rows = append(rows, row)
				if aligns == nil {
					for _, cell := range row.Children {
						aligns = append(aligns, cell.AttrString("align"))
					}
				}
			}
		case "tableRow":
			rows = append(rows, section)
		}
	}
	if len(rows) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, row := range rows {
		sb.WriteString("|")
		for _, cell := range row.Children {
			sb.WriteString(" ")
			sb.WriteString(renderInlines(cell.Children))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
		if i == 0 {
			sb.WriteString("|")
			for c := range row.Children {
				align := ""
				if c < len(aligns) {
					align = aligns[c]
				}
				switch align {
				case "left":
					sb.WriteString(":---|")
				case "right":
					sb.WriteString("---:|")
				case "center":
					sb.WriteString(":---:|")
				default:
					sb.WriteString("---|")
				}
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderInlines(nodes []*Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(renderInline(n))
	}
	return sb.String()
}

func renderInline(n *Node) string {
	switch n.Type {
	case "text":
		return n.AttrString("value")

	case "emphasis":
		return "*" + renderInlines(n.Children) + "*"

	case "strong":
		return "**" + renderInlines(n.Children) + "**"

	case "delete":
		return "~~" + renderInlines(n.Children) + "~~"

	case "inlineCode":
		return "`" + n.AttrString("value") + "`"

	case "link":
		text := renderInlines(n.Children)
		if title := n.AttrString("title"); title != "" {
			return "[" + text + "](" + n.AttrString("url") + " \"" + title + "\")"
		}
		return "[" + text + "](" + n.AttrString("url") + ")"

	case "image":
		alt := renderInlines(n.Children)
		if title := n.AttrString("title"); title != "" {
			return "![" + alt + "](" + n.AttrString("url") + " \"" + title + "\")"
		}
		return "![" + alt + "](" + n.AttrString("url") + ")"

	case "break":
		return "\\\n"

	case "html":
		return n.AttrString("value")

	default:
		return renderInlines(n.Children)
	}
}

func prefixLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = strings.TrimRight(prefix, " ")
		} else {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
