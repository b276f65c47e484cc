// Package textextract reads structured editor documents (ProseMirror/TipTap
// JSON) and derives plain text and markdown from them.
package textextract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDocument is returned when a body is not a structured document.
var ErrInvalidDocument = errors.New("invalid document")

// Node is a node of the document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is inline formatting on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Parse decodes body and checks that its root is a "doc" node.
func Parse(body []byte) (*Node, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidDocument)
	}

	var root Node
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if root.Type != "doc" {
		return nil, fmt.Errorf("%w: root type %q, want \"doc\"", ErrInvalidDocument, root.Type)
	}
	return &root, nil
}

// blockSeparator joins sibling block nodes in plain text.
const blockSeparator = "\n\n"

var inlineTypes = map[string]bool{
	"text":      true,
	"hardBreak": true,
	"mention":   true,
	"image":     true,
}

// PlainText returns the text content of n. Sibling blocks are separated by a
// blank line and hard breaks become newlines.
func PlainText(n *Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	writeText(&b, *n)
	return b.String()
}

func writeText(b *strings.Builder, n Node) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
		return
	case "hardBreak":
		b.WriteString("\n")
		return
	case "mention":
		if label, ok := n.Attrs["label"].(string); ok {
			b.WriteString("@" + label)
		}
		return
	}

	prevBlock := false
	for _, child := range n.Content {
		block := !inlineTypes[child.Type]
		if block && prevBlock {
			b.WriteString(blockSeparator)
		}
		writeText(b, child)
		prevBlock = block
	}
}
