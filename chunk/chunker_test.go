package chunk

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ingestor/core"
)

func newChunker(t *testing.T, opts ...ConfigOption) *Chunker {
	t.Helper()
	c, err := New(NewConfig(opts...))
	require.NoError(t, err)
	return c
}

// reconstruct joins chunks in ordinal order, dropping overlapped bytes
// and restoring the whitespace between non-overlapping chunks.
func reconstruct(text string, chunks []*core.Chunk) string {
	var b strings.Builder
	covered := -1
	for _, ch := range chunks {
		from := ch.Span.Start
		if covered >= 0 {
			if from > covered {
				b.WriteString(text[covered:from])
			} else {
				from = covered
			}
		}
		if ch.Span.End > from {
			b.WriteString(text[from:ch.Span.End])
		}
		covered = max(covered, ch.Span.End)
	}
	return b.String()
}

func assertChunkInvariants(t *testing.T, text string, chunks []*core.Chunk, maxSpan int) {
	t.Helper()
	for i, ch := range chunks {
		require.NoError(t, core.ValidateChunk(ch, text))
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, ChunkID(ch.DocID, i), ch.ID)
		assert.LessOrEqual(t, ch.Span.Len(), maxSpan)
		assert.True(t, utf8.ValidString(ch.Text), "chunk %d is not valid UTF-8", i)
		assert.Equal(t, strings.TrimSpace(ch.Text), ch.Text, "chunk %d has surrounding whitespace", i)
		if i > 0 {
			assert.Greater(t, ch.Span.Start, chunks[i-1].Span.Start)
		}
	}
	assert.Equal(t, strings.TrimSpace(text), reconstruct(text, chunks))
}

func TestChunkDegenerateInput(t *testing.T) {
	c := newChunker(t)
	assert.Empty(t, c.Chunk("acme", "doc", "", core.ContentTypeProse))
	assert.Empty(t, c.Chunk("acme", "doc", " \n\t\n ", core.ContentTypeProse))
}

func TestChunkShortText(t *testing.T) {
	c := newChunker(t)
	text := "\n  A short note.  \n"
	chunks := c.Chunk("acme", "doc-1", text, core.ContentTypeProse)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short note.", chunks[0].Text)
	assert.Equal(t, "doc-1:00000", chunks[0].ID)
	assert.Equal(t, core.TenantID("acme"), chunks[0].TenantID)
	assert.Equal(t, core.ChunkPending, chunks[0].Status)
}

func paragraph(n int) string {
	words := make([]string, 0, 40)
	for i := range 40 {
		words = append(words, fmt.Sprintf("word%d", (n*40+i)%97))
	}
	return strings.Join(words[:20], " ") + ". " + strings.Join(words[20:], " ") + "."
}

func TestChunkProseBreaksAtParagraphs(t *testing.T) {
	c := newChunker(t, WithTargetSize(600), WithMaxSpan(900), WithOverlap(0))
	paras := make([]string, 8)
	for i := range paras {
		paras[i] = paragraph(i)
	}
	text := strings.Join(paras, "\n\n")

	chunks := c.Chunk("acme", "doc", text, core.ContentTypeProse)
	require.Greater(t, len(chunks), 1)
	assertChunkInvariants(t, text, chunks, 900)
	for _, ch := range chunks {
		assert.True(t, strings.HasSuffix(ch.Text, "."), "chunk should end at a paragraph: %q", ch.Text[max(0, len(ch.Text)-20):])
		end := ch.Span.End
		assert.True(t, end == len(text) || strings.HasPrefix(text[end:], "\n\n"))
	}
}

func TestChunkProseOverlap(t *testing.T) {
	c := newChunker(t, WithTargetSize(200), WithMaxSpan(300), WithOverlap(50))
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)

	chunks := c.Chunk("acme", "doc", text, core.ContentTypeProse)
	require.Greater(t, len(chunks), 2)
	assertChunkInvariants(t, text, chunks, 300)
	overlapped := 0
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Span.Start < chunks[i-1].Span.End {
			overlapped++
		}
	}
	assert.Positive(t, overlapped)
}

func TestChunkHardCut(t *testing.T) {
	c := newChunker(t, WithTargetSize(100), WithMaxSpan(160), WithOverlap(10))
	text := strings.Repeat("é", 500) // No boundaries at all, two bytes per rune.

	chunks := c.Chunk("acme", "doc", text, core.ContentTypeProse)
	require.Greater(t, len(chunks), 5)
	assertChunkInvariants(t, text, chunks, 160)
}

func TestChunkTabular(t *testing.T) {
	c := newChunker(t, WithTargetSize(120), WithMaxSpan(200), WithOverlap(30))
	var b strings.Builder
	b.WriteString("id | name | amount\n")
	for i := range 40 {
		fmt.Fprintf(&b, "%d | customer %d | %d.00\n", i, i, i*10)
	}
	text := b.String()

	chunks := c.Chunk("acme", "doc", text, core.ContentTypeTabular)
	require.Greater(t, len(chunks), 3)
	assertChunkInvariants(t, text, chunks, 200)
	for i, ch := range chunks {
		if i > 0 {
			assert.GreaterOrEqual(t, ch.Span.Start, chunks[i-1].Span.End, "tabular chunks never overlap")
		}
		assert.True(t, ch.Span.Start == 0 || text[ch.Span.Start-1] == '\n', "chunk starts mid-row")
		assert.Equal(t, byte('\n'), text[ch.Span.End], "chunk ends mid-row")
	}
}

func TestChunkCode(t *testing.T) {
	c := newChunker(t, WithTargetSize(150), WithMaxSpan(300), WithOverlap(0))
	var funcs []string
	for i := range 10 {
		funcs = append(funcs, fmt.Sprintf("func f%d() int {\n\tx := %d\n\treturn x * 2\n}", i, i))
	}
	text := strings.Join(funcs, "\n\n")

	chunks := c.Chunk("acme", "doc", text, core.ContentTypeCode)
	require.Greater(t, len(chunks), 1)
	assertChunkInvariants(t, text, chunks, 300)
	for _, ch := range chunks {
		assert.True(t, strings.HasPrefix(ch.Text, "func "))
		assert.True(t, strings.HasSuffix(ch.Text, "}"))
	}
}

func TestChunkReconstructionRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pieces := []string{"alpha", "beta", "Größe", "日本語", ".", "!", "\n", "\n\n", " ", "  ", "\t", "x|y", "1,2,3,4"}
	configs := []*Config{
		NewConfig(WithTargetSize(64), WithMaxSpan(64), WithOverlap(0)),
		NewConfig(WithTargetSize(64), WithMaxSpan(96), WithOverlap(16)),
		NewConfig(WithTargetSize(200), WithMaxSpan(400), WithOverlap(60)),
	}
	hints := []core.ContentType{core.ContentTypeUnknown, core.ContentTypeProse, core.ContentTypeTabular, core.ContentTypeCode}

	for round := range 50 {
		var b strings.Builder
		for range rng.Intn(400) {
			b.WriteString(pieces[rng.Intn(len(pieces))])
			if rng.Intn(3) == 0 {
				b.WriteString(" ")
			}
		}
		text := b.String()
		for ci, cfg := range configs {
			c, err := New(cfg)
			require.NoError(t, err)
			for _, hint := range hints {
				chunks := c.Chunk("acme", "doc", text, hint)
				t.Run(fmt.Sprintf("round%d/config%d/%s", round, ci, hint), func(t *testing.T) {
					assertChunkInvariants(t, text, chunks, cfg.MaxSpan)
				})
			}
		}
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want core.ContentType
	}{
		{"short", "hello", core.ContentTypeProse},
		{"prose", "First line of text.\nSecond line here.\nThird one as well.\nAnd more words.", core.ContentTypeProse},
		{"pipe table", "a | b\n1 | 2\n3 | 4\n5 | 6", core.ContentTypeTabular},
		{"code", "func main() {\n\tx := 1;\n\tprint(x);\n}", core.ContentTypeCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.text))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, NewConfig(WithTargetSize(8)).Validate())
	assert.Error(t, NewConfig(WithMaxSpan(10)).Validate())
	assert.Error(t, NewConfig(WithOverlap(600)).Validate())
	assert.Error(t, NewConfig(WithOverlap(-1)).Validate())

	_, err := New(NewConfig(WithMaxSpan(1)))
	assert.Error(t, err)
}
