package openai

import (
	"strings"
	"testing"

	"github.com/poiesic/ingestor/ai"
	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\ndef extract(data):\n    return \"\"\n```", "def extract(data):\n    return \"\""},
		{"unterminated", "```python\nx = 1", "x = 1"},
		{"only fence", "```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid untouched", `{"category": "tax"}`, `{"category": "tax"}`},
		{"missing opening quote", `{category": "tax", confidence": 0.9}`, `{"category": "tax", "confidence": 0.9}`},
		{"trailing comma", `{"category": "tax",}`, `{"category": "tax"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.in))
		})
	}
}

func TestScrubExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", scrubExcerpt("  a\n\nb\t c "))
	long := strings.Repeat("ä", maxExcerptRunes+10)
	assert.Len(t, []rune(scrubExcerpt(long)), maxExcerptRunes)
}

func TestBuildCodegenInput_IncludesFeedback(t *testing.T) {
	in := buildCodegenInput(ai.CodeRequest{
		Signature:    ".xyz",
		Sample:       []byte("REC|1|alpha"),
		Feedback:     "output too short",
		PreviousCode: "def extract(data):\n    return \"\"",
	})
	assert.Contains(t, in, "Format signature: .xyz")
	assert.Contains(t, in, "REC|1|alpha")
	assert.Contains(t, in, "output too short")
	assert.Contains(t, in, "Previous script:")
}

func TestBuildClassifierPrompt(t *testing.T) {
	p := buildClassifierPrompt([]string{"tax", "general"})
	assert.Contains(t, p, "Allowed categories: tax, general")
}
