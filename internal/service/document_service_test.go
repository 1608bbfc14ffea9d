package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-notebook-go/internal/model"
)

func TestUpload_StoresBlobAndEnqueuesTask(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	producer := &fakeProducer{}
	svc := NewUploadService(e.notebooks, e.docs, e.blobs, producer, 1<<20)

	doc, err := svc.Upload(context.Background(), UploadRequest{
		NotebookID: "nb", UserID: 1, FileName: "notes.pdf", ContentType: "application/pdf",
		Data: []byte("%PDF-1.7"), ExtractedText: "already extracted",
	})
	require.NoError(t, err)

	assert.Equal(t, model.DocumentStatusUnprocessed, doc.Status)
	assert.Equal(t, "1/nb/"+doc.ID+"/notes.pdf", doc.StoragePath)
	assert.Equal(t, []byte("%PDF-1.7"), e.blobs.objects[doc.StoragePath])
	assert.Equal(t, []byte("already extracted"), e.blobs.objects[doc.TextPath])
	require.Len(t, producer.tasks, 1)
	assert.Equal(t, doc.ID, producer.tasks[0].DocumentID)

	stored, err := e.docs.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), stored.Size)
}

func TestUpload_Rejections(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	producer := &fakeProducer{}
	svc := NewUploadService(e.notebooks, e.docs, e.blobs, producer, 4)

	cases := []struct {
		name string
		req  UploadRequest
	}{
		{"unsupported type", UploadRequest{NotebookID: "nb", UserID: 1, FileName: "app.exe", Data: []byte("MZ")}},
		{"empty file", UploadRequest{NotebookID: "nb", UserID: 1, FileName: "a.txt"}},
		{"too large", UploadRequest{NotebookID: "nb", UserID: 1, FileName: "a.txt", Data: []byte("hello")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tc.req)
			assert.True(t, errors.Is(err, model.ErrInvalidArgument))
		})
	}
	assert.Empty(t, producer.tasks)
	assert.Empty(t, e.blobs.objects)

	_, err := svc.Upload(context.Background(), UploadRequest{NotebookID: "nb", UserID: 2, FileName: "a.txt", Data: []byte("hi")})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestUpload_EnqueueFailureMarksDocumentFailed(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	producer := &fakeProducer{err: errors.New("broker down")}
	svc := NewUploadService(e.notebooks, e.docs, e.blobs, producer, 0)

	_, err := svc.Upload(context.Background(), UploadRequest{NotebookID: "nb", UserID: 1, FileName: "a.md", Data: []byte("# hi")})
	require.Error(t, err)

	docs, err := e.docs.FindByNotebookID(context.Background(), "nb")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.DocumentStatusFailed, docs[0].Status)
	assert.NotEmpty(t, docs[0].ErrorMessage)
}

func TestSupportedFileTypes(t *testing.T) {
	types := NewUploadService(nil, nil, nil, nil, 10).GetSupportedFileTypes()
	assert.Contains(t, types["supportedExtensions"], ".pdf")
	assert.Contains(t, types["supportedExtensions"], ".md")
	assert.Equal(t, int64(10), types["maxBytes"])
}

func TestDocument_DeleteAndReindex(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "doc-a", "", nil, "a", "b")
	e.document(t, "nb", "doc-b", "", nil, "c")
	producer := &fakeProducer{}
	svc := NewDocumentService(e.notebooks, e.docs, e.store, e.blobs, producer)

	doc, err := svc.Reindex(ctx, "doc-b", 1)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusUnprocessed, doc.Status)
	require.Len(t, producer.tasks, 1)
	assert.Equal(t, "doc-b", producer.tasks[0].DocumentID)

	require.NoError(t, svc.Delete(ctx, "doc-a", 1))
	assert.Zero(t, e.count(t, &model.Chunk{}, "document_id = ?", "doc-a"))
	assert.Zero(t, e.count(t, &model.EmbeddingRecord{}, "document_id = ?", "doc-a"))
	assert.Equal(t, 1, e.store.Len())
	assert.Contains(t, e.blobs.deleted, "1/nb/doc-a/doc-a.pdf")

	docs, err := svc.List(ctx, "nb", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-b", docs[0].ID)

	_, err = svc.GenerateDownloadURL(ctx, "doc-b", 2)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	info, err := svc.GenerateDownloadURL(ctx, "doc-b", 1)
	require.NoError(t, err)
	assert.Contains(t, info.DownloadURL, "doc-b.pdf")
}

func TestDocument_ReindexProcessing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "doc-a", "", nil, "a")
	producer := &fakeProducer{}
	svc := NewDocumentService(e.notebooks, e.docs, e.store, e.blobs, producer)

	require.NoError(t, e.db.Model(&model.Document{}).Where("id = ?", "doc-a").
		UpdateColumn("status", model.DocumentStatusProcessing).Error)
	_, err := svc.Reindex(ctx, "doc-a", 1)
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))
	assert.Empty(t, producer.tasks)

	// worker 中途退出后状态停在 processing
	require.NoError(t, e.db.Model(&model.Document{}).Where("id = ?", "doc-a").
		UpdateColumn("updated_at", time.Now().Add(-model.ProcessingStaleAfter-time.Minute)).Error)
	doc, err := svc.Reindex(ctx, "doc-a", 1)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusUnprocessed, doc.Status)
	require.Len(t, producer.tasks, 1)

	stored, err := e.docs.FindByID(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusUnprocessed, stored.Status)
}
