package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reassemble 去掉重叠部分后按序拼接分块。
func reassemble(pieces []Piece, overlap int) string {
	var sb strings.Builder
	for i, p := range pieces {
		r := []rune(p.Text)
		if i > 0 {
			r = r[overlap:]
		}
		sb.WriteString(string(r))
	}
	return sb.String()
}

func TestNewChunker(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewChunker()
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})

	t.Run("overlap not smaller than size", func(t *testing.T) {
		c := NewChunker(WithChunkSize(100), WithChunkOverlap(100))
		assert.Zero(t, c.Overlap())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		c := NewChunker(WithChunkSize(0), WithChunkOverlap(-1))
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})
}

func TestChunker_Split(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, NewChunker().Split(""))
	})

	t.Run("short text is kept whole", func(t *testing.T) {
		pieces := NewChunker().Split("hello world")
		require.Len(t, pieces, 1)
		assert.Equal(t, "hello world", pieces[0].Text)
	})

	texts := []string{
		strings.Repeat("abcdefghij", 57),
		strings.Repeat("知识库中的一段中文文本。", 40),
		strings.Repeat("x", 250),
	}
	for _, overlap := range []int{0, 10, 49} {
		c := NewChunker(WithChunkSize(50), WithChunkOverlap(overlap))
		for _, text := range texts {
			pieces := c.Split(text)
			require.NotEmpty(t, pieces)
			assert.Equal(t, text, reassemble(pieces, c.Overlap()), "overlap=%d", overlap)
			for i, p := range pieces {
				assert.Equal(t, i, p.Index)
				assert.LessOrEqual(t, len([]rune(p.Text)), 50)
			}
			assert.Equal(t, pieces, c.Split(text))
		}
	}
}

func TestChunker_TrailingContentKept(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithChunkOverlap(0))
	pieces := c.Split("0123456789abc")
	require.Len(t, pieces, 2)
	assert.Equal(t, "abc", pieces[1].Text)
}
