package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/database"
	"smart-notebook-go/pkg/llm"
	"smart-notebook-go/pkg/tasks"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	last    []llm.Message
}

func (f *fakeLLM) Generate(_ context.Context, msgs []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = msgs
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Put(_ context.Context, path string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[path] = data
	return nil
}

func (f *fakeStorage) Get(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", path, model.ErrNotFound)
	}
	return data, nil
}

func (f *fakeStorage) Delete(_ context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		delete(f.objects, p)
		f.deleted = append(f.deleted, p)
	}
	return nil
}

func (f *fakeStorage) PresignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://minio.local/bucket/" + path + "?signed", nil
}

type fakeProducer struct {
	tasks []tasks.DocumentIndexTask
	err   error
}

func (f *fakeProducer) ProduceIndexTask(_ context.Context, task tasks.DocumentIndexTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeSpeech struct {
	text  string
	voice string
	err   error
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	f.text, f.voice = text, voice
	if f.err != nil {
		return nil, f.err
	}
	return []byte("RIFF....WAVE"), nil
}

type fakeImages struct {
	prompt string
	err    error
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string) (llm.Image, error) {
	f.prompt = prompt
	if f.err != nil {
		return llm.Image{}, f.err
	}
	return llm.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}, nil
}

// env 是服务测试共享的依赖集合，关系数据使用内存 sqlite。
type env struct {
	db        *gorm.DB
	notebooks repository.NotebookRepository
	docs      repository.DocumentRepository
	chunks    repository.ChunkRepository
	embs      repository.EmbeddingRepository
	chats     repository.ChatRepository
	store     *vectorstore.Memory
	blobs     *fakeStorage
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db,
		&model.Notebook{}, &model.Document{}, &model.Chunk{}, &model.EmbeddingRecord{}, &model.ChatMessage{}))
	return &env{
		db:        db,
		notebooks: repository.NewNotebookRepository(db),
		docs:      repository.NewDocumentRepository(db),
		chunks:    repository.NewChunkRepository(db),
		embs:      repository.NewEmbeddingRepository(db),
		chats:     repository.NewChatRepository(db),
		store:     vectorstore.NewMemory(),
		blobs:     newFakeStorage(),
	}
}

func (e *env) notebook(t *testing.T, id string, userID uint) {
	t.Helper()
	require.NoError(t, e.notebooks.Create(context.Background(), &model.Notebook{ID: id, UserID: userID, Name: "Notebook " + id}))
}

// document 写入一个已索引的文档及其分块、向量行、向量索引条目与原始文件。
func (e *env) document(t *testing.T, notebookID, docID, summary string, tags []string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	doc := &model.Document{
		ID: docID, NotebookID: notebookID, UserID: 1, FileName: docID + ".pdf",
		StoragePath: fmt.Sprintf("1/%s/%s/%s.pdf", notebookID, docID, docID),
		Status:      model.DocumentStatusProcessed, Summary: summary, Tags: tags, ChunkCount: len(texts),
	}
	require.NoError(t, e.docs.Create(ctx, doc))
	e.blobs.objects[doc.StoragePath] = []byte("%PDF")

	var chunks []model.Chunk
	var records []model.EmbeddingRecord
	var entries []vectorstore.Entry
	for i, text := range texts {
		chunkID := fmt.Sprintf("%s-c%d", docID, i)
		vec := []float32{1, float32(i)}
		chunks = append(chunks, model.Chunk{ID: chunkID, DocumentID: docID, Ordinal: i, Content: text, CharLength: len([]rune(text))})
		records = append(records, model.EmbeddingRecord{
			ID: chunkID + "-e", DocumentID: docID, ChunkID: chunkID, Ordinal: i, ChunkText: text, Vector: vec,
			Summary: summary, Tags: tags,
		})
		entries = append(entries, vectorstore.Entry{ChunkID: chunkID, DocumentID: docID, Ordinal: i, Text: text, Vector: vec})
	}
	require.NoError(t, e.chunks.BatchCreate(ctx, chunks))
	require.NoError(t, e.embs.BatchCreate(ctx, records))
	require.NoError(t, e.store.Upsert(ctx, entries))
}

func (e *env) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Where(query, args...).Count(&n).Error)
	return n
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{HistoryTurns: 6, ExcerptChars: 150, OverviewLimit: 5}
}

func testVectorConfig() config.VectorStoreConfig {
	return config.VectorStoreConfig{Threshold: 0.3, TopK: 8}
}

func testStudioConfig() config.StudioConfig {
	return config.StudioConfig{
		MindMapContentChars: 8000,
		MindMapSampleChunks: 10,
		ReportRowChars:      2000,
		ReportContentChars:  150000,
		AudioContentChars:   12000,
		AudioSampleRows:     20,
		StudyContentChars:   12000,
		StudySampleChunks:   30,
	}
}
