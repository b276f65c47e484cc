package textextract

import (
	"fmt"
	"strings"
)

// Markdown renders n as CommonMark. Unknown node types render their children.
func Markdown(n *Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	writeBlocks(&b, n.Content, "")
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeBlocks(b *strings.Builder, nodes []Node, indent string) {
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n")
		}
		writeBlock(b, n, indent)
	}
}

func writeBlock(b *strings.Builder, n Node, indent string) {
	switch n.Type {
	case "paragraph":
		b.WriteString(indent + inline(n.Content) + "\n")
	case "heading":
		level := 1
		if lvl, ok := n.Attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
			level = int(lvl)
		}
		b.WriteString(indent + strings.Repeat("#", level) + " " + inline(n.Content) + "\n")
	case "blockquote":
		var inner strings.Builder
		writeBlocks(&inner, n.Content, "")
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			b.WriteString(indent + strings.TrimRight("> "+line, " ") + "\n")
		}
	case "codeBlock":
		lang, _ := n.Attrs["language"].(string)
		b.WriteString(indent + "```" + lang + "\n")
		for _, line := range strings.Split(PlainText(&n), "\n") {
			b.WriteString(indent + line + "\n")
		}
		b.WriteString(indent + "```\n")
	case "bulletList", "orderedList", "taskList":
		writeList(b, n, indent)
	case "horizontalRule":
		b.WriteString(indent + "---\n")
	case "image":
		src, _ := n.Attrs["src"].(string)
		alt, _ := n.Attrs["alt"].(string)
		b.WriteString(indent + fmt.Sprintf("![%s](%s)", alt, src) + "\n")
	default:
		if len(n.Content) > 0 {
			writeBlocks(b, n.Content, indent)
		}
	}
}

func writeList(b *strings.Builder, n Node, indent string) {
	start := 1
	if s, ok := n.Attrs["start"].(float64); ok {
		start = int(s)
	}

	for i, item := range n.Content {
		marker := "- "
		switch n.Type {
		case "orderedList":
			marker = fmt.Sprintf("%d. ", start+i)
		case "taskList":
			if checked, _ := item.Attrs["checked"].(bool); checked {
				marker = "- [x] "
			} else {
				marker = "- [ ] "
			}
		}

		childIndent := indent + strings.Repeat(" ", len(marker))
		for j, child := range item.Content {
			if j == 0 && child.Type == "paragraph" {
				b.WriteString(indent + marker + inline(child.Content) + "\n")
				continue
			}
			if j == 0 {
				b.WriteString(indent + strings.TrimRight(marker, " ") + "\n")
			}
			writeBlock(b, child, childIndent)
		}
		if len(item.Content) == 0 {
			b.WriteString(indent + strings.TrimRight(marker, " ") + "\n")
		}
	}
}

func inline(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		switch n.Type {
		case "text":
			text := n.Text
			if !hasMark(n.Marks, "code") {
				text = escapeInline(text)
			}
			b.WriteString(applyMarks(text, n.Marks))
		case "hardBreak":
			b.WriteString("\\\n")
		case "mention":
			if label, ok := n.Attrs["label"].(string); ok {
				b.WriteString("@" + label)
			}
		case "image":
			src, _ := n.Attrs["src"].(string)
			alt, _ := n.Attrs["alt"].(string)
			b.WriteString(fmt.Sprintf("![%s](%s)", alt, src))
		default:
			b.WriteString(inline(n.Content))
		}
	}
	return b.String()
}

func applyMarks(text string, marks []Mark) string {
	if text == "" {
		return ""
	}
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			text = "**" + text + "**"
		case "italic":
			text = "_" + text + "_"
		case "strike":
			text = "~~" + text + "~~"
		case "code":
			text = "`" + text + "`"
		case "link":
			href, _ := marks[i].Attrs["href"].(string)
			text = "[" + text + "](" + href + ")"
		}
	}
	return text
}

func hasMark(marks []Mark, typ string) bool {
	for _, m := range marks {
		if m.Type == typ {
			return true
		}
	}
	return false
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(s)
}
