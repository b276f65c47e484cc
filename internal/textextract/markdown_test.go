package textextract

import "testing"

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "heading paragraph and list",
			body: sampleDoc,
			want: "## Title\n\nHello **world**\n\n- a\n- b\n",
		},
		{
			name: "ordered list with start",
			body: `{"type":"doc","content":[{"type":"orderedList","attrs":{"start":3},"content":[
				{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"x"}]}]},
				{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"y"}]}]}]}]}`,
			want: "3. x\n4. y\n",
		},
		{
			name: "code block keeps text verbatim",
			body: `{"type":"doc","content":[{"type":"codeBlock","attrs":{"language":"go"},"content":[
				{"type":"text","text":"a := b_c*2"}]}]}`,
			want: "```go\na := b_c*2\n```\n",
		},
		{
			name: "inline markup is escaped",
			body: `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"2*3 [x]"}]}]}`,
			want: "2\\*3 \\[x\\]\n",
		},
		{
			name: "inline code is not escaped",
			body: `{"type":"doc","content":[{"type":"paragraph","content":[
				{"type":"text","text":"a_b","marks":[{"type":"code"}]}]}]}`,
			want: "`a_b`\n",
		},
		{
			name: "link mark",
			body: `{"type":"doc","content":[{"type":"paragraph","content":[
				{"type":"text","text":"docs","marks":[{"type":"link","attrs":{"href":"https://example.com"}}]}]}]}`,
			want: "[docs](https://example.com)\n",
		},
		{
			name: "blockquote",
			body: `{"type":"doc","content":[{"type":"blockquote","content":[
				{"type":"paragraph","content":[{"type":"text","text":"one"}]},
				{"type":"paragraph","content":[{"type":"text","text":"two"}]}]}]}`,
			want: "> one\n>\n> two\n",
		},
		{
			name: "horizontal rule",
			body: `{"type":"doc","content":[{"type":"horizontalRule"}]}`,
			want: "---\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.body))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := Markdown(doc); got != tt.want {
				t.Errorf("Markdown() = %q, want %q", got, tt.want)
			}
		})
	}
}
