package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/vectorstore"
)

func TestNotebook_DeleteRemovesEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notebook(t, "nb", 1)
	e.notebook(t, "other", 1)

	var ids []string
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("doc-%d", i)
		ids = append(ids, id)
		texts := make([]string, 8)
		for j := range texts {
			texts[j] = fmt.Sprintf("chunk %d of %s", j, id)
		}
		e.document(t, "nb", id, "summary", nil, texts...)
	}
	e.document(t, "other", "keep", "", nil, "kept")
	require.NoError(t, e.chats.Create(ctx, &model.ChatMessage{ID: "m1", NotebookID: "nb", UserID: 1, Role: model.RoleUser, Content: "hi"}))
	require.EqualValues(t, 40, e.count(t, &model.Chunk{}, "document_id IN ?", ids))

	svc := NewNotebookService(e.notebooks, e.docs, e.store, e.blobs)
	require.NoError(t, svc.Delete(ctx, "nb", 1))

	assert.Zero(t, e.count(t, &model.EmbeddingRecord{}, "document_id IN ?", ids))
	assert.Zero(t, e.count(t, &model.Chunk{}, "document_id IN ?", ids))
	assert.Zero(t, e.count(t, &model.Document{}, "id IN ?", ids))
	assert.Zero(t, e.count(t, &model.ChatMessage{}, "notebook_id = ?", "nb"))
	assert.Zero(t, e.count(t, &model.Notebook{}, "id = ?", "nb"))

	matches, err := e.store.Search(ctx, vectorstore.Query{Vector: []float32{1, 0}, Threshold: -1, Count: 100, DocumentIDs: append(ids, "keep")})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "keep", matches[0].DocumentID)
	assert.Len(t, e.blobs.objects, 1)
	assert.EqualValues(t, 1, e.count(t, &model.Document{}, "id = ?", "keep"))
}

func TestNotebook_DeleteForeignNotebook(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 2)
	svc := NewNotebookService(e.notebooks, e.docs, e.store, e.blobs)

	err := svc.Delete(context.Background(), "nb", 1)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.EqualValues(t, 1, e.count(t, &model.Notebook{}, "id = ?", "nb"))
}

func TestNotebook_Summary(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "doc-a", "About physics.", []string{"physics", "energy", "mass", "force", "work"}, "t")
	e.document(t, "nb", "doc-b", "", []string{"energy", "heat", "entropy", "light", "sound"}, "t")
	svc := NewNotebookService(e.notebooks, e.docs, e.store, e.blobs)

	s, err := svc.Summary(context.Background(), "nb", 1)
	require.NoError(t, err)

	assert.Equal(t, "Notebook nb", s.Title)
	assert.Equal(t, 2, s.SourceCount)
	require.Len(t, s.Summaries, 1)
	assert.Equal(t, "doc-a.pdf", s.Summaries[0].FileName)
	assert.Len(t, s.Tags, 8)
	assert.Equal(t, []string{"physics", "energy", "mass", "force", "work", "heat", "entropy", "light"}, s.Tags)
}

func TestNotebook_CreateAndList(t *testing.T) {
	e := newEnv(t)
	svc := NewNotebookService(e.notebooks, e.docs, e.store, e.blobs)

	_, err := svc.Create(context.Background(), 1, "  ", "")
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))

	nb, err := svc.Create(context.Background(), 1, "Biology", "cells")
	require.NoError(t, err)
	assert.NotEmpty(t, nb.ID)

	list, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Biology", list[0].Name)
}

func TestSweep_RemovesOrphans(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "live", "", nil, "a")
	e.document(t, "nb", "gone", "", nil, "b", "c")
	// 模拟删除流程中途崩溃：文档行已删除，分块与向量仍在
	require.NoError(t, e.db.Where("id = ?", "gone").Delete(&model.Document{}).Error)

	report, err := NewAdminService(e.chunks, e.embs, e.store).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, report.OrphanDocumentIDs)
	assert.Zero(t, e.count(t, &model.Chunk{}, "document_id = ?", "gone"))
	assert.Zero(t, e.count(t, &model.EmbeddingRecord{}, "document_id = ?", "gone"))
	assert.EqualValues(t, 1, e.count(t, &model.Chunk{}, "document_id = ?", "live"))
	assert.Equal(t, 1, e.store.Len())
}

func TestWarmIndex_LoadsPersistedVectors(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "doc-a", "", nil, "a", "b", "c")
	fresh := vectorstore.NewMemory()

	n, err := NewAdminService(e.chunks, e.embs, fresh).WarmIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, fresh.Len())
}
