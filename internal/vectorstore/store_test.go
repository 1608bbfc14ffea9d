package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	q := Query{Threshold: 0.3, Count: 3, DocumentIDs: []string{"a", "b"}}
	matches := []Match{
		{ChunkID: "a1", DocumentID: "a", Ordinal: 1, Score: 0.5},
		{ChunkID: "a0", DocumentID: "a", Ordinal: 0, Score: 0.5},
		{ChunkID: "b0", DocumentID: "b", Ordinal: 0, Score: 0.9},
		{ChunkID: "b0", DocumentID: "b", Ordinal: 0, Score: 0.95},
		{ChunkID: "c0", DocumentID: "c", Ordinal: 0, Score: 0.99},
		{ChunkID: "a2", DocumentID: "a", Ordinal: 2, Score: 0.2},
		{ChunkID: "a3", DocumentID: "a", Ordinal: 3, Score: 0.4},
	}

	got := Finalize(matches, q)

	require.Len(t, got, 3)
	assert.Equal(t, "b0", got[0].ChunkID)
	assert.Equal(t, 0.95, got[0].Score)
	// 同分时按序号升序
	assert.Equal(t, "a0", got[1].ChunkID)
	assert.Equal(t, "a1", got[2].ChunkID)
}

func TestFinalize_EmptyFilterReturnsNothing(t *testing.T) {
	got := Finalize([]Match{{ChunkID: "x", DocumentID: "a", Score: 1}}, Query{Count: 8})
	assert.Empty(t, got)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestMemory_SearchProperties(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	var entries []Entry
	for d := 0; d < 3; d++ {
		for i := 0; i < 10; i++ {
			entries = append(entries, Entry{
				ChunkID:    fmt.Sprintf("d%d-c%d", d, i),
				DocumentID: fmt.Sprintf("d%d", d),
				Ordinal:    i,
				Text:       fmt.Sprintf("chunk %d of %d", i, d),
				Vector:     []float32{float32(i), float32(10 - i), float32(d)},
			})
		}
	}
	require.NoError(t, store.Upsert(ctx, entries))
	// 重复写入不会产生重复结果
	require.NoError(t, store.Upsert(ctx, entries[:5]))

	q := Query{Vector: []float32{1, 1, 0}, Threshold: 0.3, Count: 8, DocumentIDs: []string{"d0", "d2"}}
	got, err := store.Search(ctx, q)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 8)

	seen := map[string]bool{}
	for i, m := range got {
		assert.False(t, seen[m.ChunkID], "duplicate chunk %s", m.ChunkID)
		seen[m.ChunkID] = true
		assert.Contains(t, []string{"d0", "d2"}, m.DocumentID)
		assert.GreaterOrEqual(t, m.Score, 0.3)
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].Score, m.Score)
		}
	}

	again, err := store.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestMemory_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Upsert(ctx, []Entry{{ChunkID: "a", DocumentID: "d", Vector: []float32{1, 0}}}))
	assert.Error(t, store.Upsert(ctx, []Entry{{ChunkID: "b", DocumentID: "d", Vector: []float32{1, 0, 0}}}))
	_, err := store.Search(ctx, Query{Vector: []float32{1}, DocumentIDs: []string{"d"}})
	assert.Error(t, err)
}

func TestMemory_DeleteIsAtomicForReaders(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	var entries []Entry
	for i := 0; i < 200; i++ {
		entries = append(entries, Entry{ChunkID: fmt.Sprintf("c%d", i), DocumentID: "doc", Ordinal: i, Vector: []float32{1, 1}})
	}
	require.NoError(t, store.Upsert(ctx, entries))

	q := Query{Vector: []float32{1, 1}, Threshold: 0, Count: 1000, DocumentIDs: []string{"doc"}}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			got, err := store.Search(ctx, q)
			assert.NoError(t, err)
			n := len(got)
			assert.True(t, n == 0 || n == 200, "observed partial delete: %d", n)
		}
	}()
	require.NoError(t, store.DeleteByDocumentIDs(ctx, []string{"doc"}))
	wg.Wait()

	assert.Zero(t, store.Len())
}
