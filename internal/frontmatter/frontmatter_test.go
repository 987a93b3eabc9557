package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		fields   map[string]any
		body     string
		bodyLine int
	}{
		{
			name:     "no front matter",
			in:       "<h1>Hi</h1>\n",
			fields:   map[string]any{},
			body:     "<h1>Hi</h1>\n",
			bodyLine: 1,
		},
		{
			name:     "yaml fields",
			in:       "---\ntitle: About\ntags: [a, b]\n---\n<h1>{{ .Page.title }}</h1>\n",
			fields:   map[string]any{"title": "About", "tags": []any{"a", "b"}},
			body:     "<h1>{{ .Page.title }}</h1>\n",
			bodyLine: 5,
		},
		{
			name:     "crlf",
			in:       "---\r\ntitle: X\r\n---\r\nbody",
			fields:   map[string]any{"title": "X"},
			body:     "body",
			bodyLine: 4,
		},
		{
			name:     "empty block",
			in:       "---\n---\nbody\n",
			fields:   map[string]any{},
			body:     "body\n",
			bodyLine: 3,
		},
		{
			name:     "closing delimiter at end of file",
			in:       "---\ndraft: true\n---",
			fields:   map[string]any{"draft": true},
			body:     "",
			bodyLine: 3,
		},
		{
			name:     "horizontal rule in body is kept",
			in:       "---\na: 1\n---\nintro\n---\nmore\n",
			fields:   map[string]any{"a": 1},
			body:     "intro\n---\nmore\n",
			bodyLine: 4,
		},
		{
			name:     "dashes inside a line do not close",
			in:       "---\nnote: a --- b\n---\nx",
			fields:   map[string]any{"note": "a --- b"},
			body:     "x",
			bodyLine: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.fields, doc.Fields)
			assert.Equal(t, tt.body, string(doc.Body))
			assert.Equal(t, tt.bodyLine, doc.BodyLine)
		})
	}
}

func TestParseUnterminated(t *testing.T) {
	_, err := Parse([]byte("---\ntitle: x\n<h1>no end</h1>\n"))
	require.ErrorIs(t, err, ErrUnterminated)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("---\ntitle: [unclosed\n---\nbody"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "front matter")
}
