package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/prompt"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/database"
	"smart-notebook-go/pkg/llm"
	"smart-notebook-go/pkg/tasks"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int // 对某段文本前 N 次调用返回错误
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[text]++
	if f.calls[text] <= f.failures[text] {
		return nil, fmt.Errorf("upstream 503: %w", model.ErrEmbeddingProvider)
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, _ []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeBlobs struct {
	data map[string][]byte
	err  error
}

func (f *fakeBlobs) Get(_ context.Context, path string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[path], nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

type fakeLocker struct {
	held map[string]bool
}

func (f *fakeLocker) TryLock(_ context.Context, id string, _ time.Duration) (bool, error) {
	if f.held[id] {
		return false, nil
	}
	f.held[id] = true
	return true, nil
}

func (f *fakeLocker) Unlock(_ context.Context, id string) error {
	delete(f.held, id)
	return nil
}

type harness struct {
	db        *gorm.DB
	proc      *Processor
	embedder  *fakeEmbedder
	generator *fakeGenerator
	blobs     *fakeBlobs
	extractor *fakeExtractor
	locker    *fakeLocker
	store     *vectorstore.Memory
	docs      repository.DocumentRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &model.Document{}, &model.Chunk{}, &model.EmbeddingRecord{}))

	h := &harness{
		db:        db,
		embedder:  &fakeEmbedder{failures: map[string]int{}},
		generator: &fakeGenerator{reply: `{"summary":"Notes about letters.","tags":["Letters"," letters ","Alphabet"]}`},
		blobs:     &fakeBlobs{data: map[string][]byte{}},
		extractor: &fakeExtractor{},
		locker:    &fakeLocker{held: map[string]bool{}},
		store:     vectorstore.NewMemory(),
		docs:      repository.NewDocumentRepository(db),
	}
	h.proc = NewProcessor(h.extractor, h.embedder, h.generator, h.blobs, h.locker,
		h.docs, repository.NewChunkRepository(db), repository.NewEmbeddingRepository(db), h.store,
		prompt.Default(),
		config.IndexerConfig{ChunkSize: 10, ChunkOverlap: 0, EmbedConcurrency: 4, SummaryMaxChars: 15000, MaxTags: 8},
		"test-embedding")
	return h
}

func (h *harness) seed(t *testing.T, id, fileName string, content []byte) {
	t.Helper()
	path := "1/nb/" + id + "/" + fileName
	h.blobs.data[path] = content
	require.NoError(t, h.docs.Create(context.Background(), &model.Document{
		ID: id, NotebookID: "nb", UserID: 1, FileName: fileName, StoragePath: path,
		Status: model.DocumentStatusUnprocessed,
	}))
}

func (h *harness) count(t *testing.T, m interface{}, docID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(m).Where("document_id = ?", docID).Count(&n).Error)
	return n
}

func TestProcess_RetriesFailedChunkOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaabbbbbbbbbb"))
	h.embedder.failures["bbbbbbbbbb"] = 1

	err := h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1", NotebookID: "nb"})
	require.NoError(t, err)

	doc, err := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessed, doc.Status)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.Zero(t, doc.FailedChunks)
	assert.NotNil(t, doc.ProcessedAt)
	assert.EqualValues(t, 2, h.count(t, &model.EmbeddingRecord{}, "doc-1"))
	assert.Equal(t, 2, h.store.Len())
	assert.Equal(t, 2, h.embedder.calls["bbbbbbbbbb"])
	assert.Equal(t, 1, h.embedder.calls["aaaaaaaaaa"])
}

func TestProcess_PartialSuccess(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaabbbbbbbbbbcc"))
	h.embedder.failures["bbbbbbbbbb"] = 2

	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	doc, err := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 1, doc.FailedChunks)
	assert.EqualValues(t, 3, h.count(t, &model.Chunk{}, "doc-1"))
	assert.EqualValues(t, 2, h.count(t, &model.EmbeddingRecord{}, "doc-1"))
	assert.Equal(t, 2, h.embedder.calls["bbbbbbbbbb"], "a failing chunk is retried exactly once")
}

func TestProcess_AllChunksFail(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaa"))
	h.embedder.failures["aaaaaaaaaa"] = 5

	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	doc, err := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Equal(t, 1, doc.FailedChunks)
	assert.Zero(t, h.count(t, &model.EmbeddingRecord{}, "doc-1"))
}

func TestProcess_SummaryAndTags(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaabbbbbbbbbb"))
	h.generator.reply = "Here you go:\n```json\n{\"summary\": \"Notes about letters.\", \"tags\": [\"Letters\", \" letters \", \"Alphabet\",]}\n```"

	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	doc, err := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Notes about letters.", doc.Summary)
	assert.Equal(t, []string{"letters", "alphabet"}, []string(doc.Tags))

	var records []model.EmbeddingRecord
	require.NoError(t, h.db.Where("document_id = ?", "doc-1").Find(&records).Error)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "Notes about letters.", r.Summary)
		assert.Equal(t, []string{"letters", "alphabet"}, []string(r.Tags))
	}
}

func TestProcess_SummaryFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaa"))
	h.generator.err = fmt.Errorf("boom: %w", model.ErrGeneration)

	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	doc, err := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessed, doc.Status)
	assert.Empty(t, doc.Summary)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "scan.pdf", []byte("%PDF-1.7"))
	h.extractor.err = fmt.Errorf("tika 422: %w", model.ErrExtraction)

	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	doc, err := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "text extraction failed")
	assert.Zero(t, h.count(t, &model.Chunk{}, "doc-1"))
	assert.Zero(t, h.generator.calls)
}

func TestProcess_TextSourcePriority(t *testing.T) {
	h := newHarness(t)
	h.extractor.text = "from tika"
	h.blobs.data["1/nb/doc-1/scan.pdf.txt"] = []byte("from client")
	require.NoError(t, h.docs.Create(context.Background(), &model.Document{
		ID: "doc-1", NotebookID: "nb", UserID: 1, FileName: "scan.pdf",
		StoragePath: "1/nb/doc-1/scan.pdf", TextPath: "1/nb/doc-1/scan.pdf.txt",
	}))

	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	chunks, err := repository.NewChunkRepository(h.db).FindByDocumentID(context.Background(), "doc-1")
	require.NoError(t, err)
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	assert.Equal(t, "from client", sb.String())

	h.seed(t, "doc-2", "scan.pdf", []byte("%PDF-1.7"))
	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-2"}))
	chunks, err = repository.NewChunkRepository(h.db).FindByDocumentID(context.Background(), "doc-2")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "from tika", chunks[0].Content)
}

func TestProcess_ReindexReplacesData(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaabbbbbbbbbb"))
	ctx := context.Background()

	require.NoError(t, h.proc.Process(ctx, tasks.DocumentIndexTask{DocumentID: "doc-1"}))
	require.NoError(t, h.proc.Process(ctx, tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	assert.EqualValues(t, 2, h.count(t, &model.Chunk{}, "doc-1"))
	assert.EqualValues(t, 2, h.count(t, &model.EmbeddingRecord{}, "doc-1"))
	assert.Equal(t, 2, h.store.Len())
}

func TestProcess_LockedDocumentIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaa"))
	h.locker.held["doc-1"] = true

	require.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"}))

	doc, err := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusUnprocessed, doc.Status)
	assert.True(t, h.locker.held["doc-1"])
}

func TestProcess_StorageFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "doc-1", "letters.txt", []byte("aaaaaaaaaa"))
	h.blobs.err = errors.New("minio unavailable")

	err := h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "doc-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minio unavailable")
	assert.False(t, h.locker.held["doc-1"])

	doc, ferr := h.docs.FindByID(context.Background(), "doc-1")
	require.NoError(t, ferr)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
}

func TestProcess_MissingDocument(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.proc.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "gone"}))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"go", "kafka"}, NormalizeTags([]string{"Go", " go ", "", "KAFKA", "redis"}, 2))
	assert.Empty(t, NormalizeTags(nil, 8))
}
