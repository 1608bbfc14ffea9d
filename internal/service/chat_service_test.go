package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/prompt"
	"smart-notebook-go/internal/vectorstore"
)

func newChat(e *env, embedder *fakeEmbedder, gen *fakeLLM) ChatService {
	search := NewSearchService(embedder, e.store, testVectorConfig(), testChatConfig())
	return NewChatService(search, gen, e.notebooks, e.docs, e.chats, prompt.Default(), testChatConfig(), config.LLMGenerationConfig{})
}

func TestChat_NoDocuments(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	embedder, gen := &fakeEmbedder{}, &fakeLLM{replies: []string{"should not be used"}}

	resp, err := newChat(e, embedder, gen).Answer(context.Background(), "nb", 1, "What is X?")
	require.NoError(t, err)

	assert.Equal(t, NoDocumentsMessage, resp.Response)
	assert.Empty(t, resp.Citations)
	assert.Zero(t, gen.calls, "generation must not be invoked")
	assert.Zero(t, embedder.calls)

	msgs, err := e.chats.List(context.Background(), "nb", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, NoDocumentsMessage, msgs[1].Content)
}

func TestBuildContext_OnlyMatchesAboveThreshold(t *testing.T) {
	store := vectorstore.NewMemory()
	require.NoError(t, store.Upsert(context.Background(), []vectorstore.Entry{
		{ChunkID: "a0", DocumentID: "a", Ordinal: 0, Text: "X is the first letter.", Vector: []float32{1, 0}},
		{ChunkID: "a1", DocumentID: "a", Ordinal: 1, Text: "unrelated", Vector: []float32{-1, 0}},
		{ChunkID: "b0", DocumentID: "b", Ordinal: 0, Text: "X also appears here.", Vector: []float32{0.6, 0.8}},
		{ChunkID: "c0", DocumentID: "c", Ordinal: 0, Text: "nothing relevant", Vector: []float32{0, 1}},
	}))
	embedder := &fakeEmbedder{vectors: map[string][]float32{"What is X?": {1, 0}}}
	search := NewSearchService(embedder, store, testVectorConfig(), testChatConfig())
	docs := []model.Document{{ID: "a", FileName: "a.pdf"}, {ID: "b", FileName: "b.pdf"}, {ID: "c", FileName: "c.pdf"}}

	rc, err := search.BuildContext(context.Background(), "What is X?", docs)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(rc.PromptContext, "[Source "))
	assert.Contains(t, rc.PromptContext, "[Source 1: a.pdf]\nX is the first letter.")
	assert.Contains(t, rc.PromptContext, "[Source 2: b.pdf]\nX also appears here.")
	require.Len(t, rc.Citations, 2)
	assert.Equal(t, "a0", rc.Citations[0].ChunkID)
	assert.Equal(t, "b0", rc.Citations[1].ChunkID)
	assert.Greater(t, rc.Matches[0].Score, rc.Matches[1].Score)
}

func TestBuildContext_NothingRetrievedStillSucceeds(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {0, 1}}}
	search := NewSearchService(embedder, vectorstore.NewMemory(), testVectorConfig(), testChatConfig())

	rc, err := search.BuildContext(context.Background(), "q", []model.Document{{ID: "a", FileName: "a.pdf"}})
	require.NoError(t, err)
	assert.Empty(t, rc.PromptContext)
	assert.Empty(t, rc.Citations)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short", 150))
	assert.Equal(t, "abc...", Excerpt("abcdef", 3))
	assert.Equal(t, "日本...", Excerpt("日本語です", 2))
}

func TestChat_AnswerWithCitations(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "doc-a", "A primer on X.", []string{"x"}, "X is the first letter.")
	gen := &fakeLLM{replies: []string{"X is a letter [Source 1]."}}

	resp, err := newChat(e, &fakeEmbedder{}, gen).Answer(context.Background(), "nb", 1, "What is X?")
	require.NoError(t, err)

	assert.Equal(t, "X is a letter [Source 1].", resp.Response)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "doc-a.pdf", resp.Citations[0].FileName)
	assert.Equal(t, 1, resp.SourcesUsed)

	require.GreaterOrEqual(t, len(gen.last), 3)
	assert.Equal(t, model.RoleSystem, gen.last[0].Role)
	assert.Contains(t, gen.last[0].Content, "doc-a.pdf: A primer on X.")
	assert.Contains(t, gen.last[0].Content, "[Source 1: doc-a.pdf]")
	assert.Equal(t, model.RoleAssistant, gen.last[1].Role)
	assert.Equal(t, "What is X?", gen.last[len(gen.last)-1].Content)

	msgs, err := e.chats.List(context.Background(), "nb", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[1].Citations, 1)
}

func TestChat_GenerationFailureIsPersisted(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "doc-a", "", nil, "X is the first letter.")
	gen := &fakeLLM{err: fmt.Errorf("upstream 500: %w", model.ErrGeneration)}
	chat := newChat(e, &fakeEmbedder{}, gen)

	resp, err := chat.Answer(context.Background(), "nb", 1, "What is X?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrGeneration))
	require.NotNil(t, resp)
	assert.Equal(t, GenerationErrorMessage, resp.Response)

	msgs, err := e.chats.List(context.Background(), "nb", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Failed)
	assert.Equal(t, GenerationErrorMessage, msgs[1].Content)

	// 失败的助手消息不会进入下一轮的历史
	gen.err = nil
	gen.replies = []string{"ok"}
	_, err = chat.Answer(context.Background(), "nb", 1, "Try again")
	require.NoError(t, err)
	for _, m := range gen.last {
		assert.NotEqual(t, GenerationErrorMessage, m.Content)
	}
}

func TestChat_HistoryIsBounded(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 1)
	e.document(t, "nb", "doc-a", "", nil, "text")
	gen := &fakeLLM{replies: []string{"answer"}}
	chat := newChat(e, &fakeEmbedder{}, gen)

	for i := 0; i < 5; i++ {
		_, err := chat.Answer(context.Background(), "nb", 1, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}
	// system + acknowledgement + 6 条历史 + 本轮问题
	assert.Len(t, gen.last, 9)
	assert.Equal(t, "question 4", gen.last[8].Content)
}

func TestChat_ForeignNotebookIsNotFound(t *testing.T) {
	e := newEnv(t)
	e.notebook(t, "nb", 2)

	_, err := newChat(e, &fakeEmbedder{}, &fakeLLM{}).Answer(context.Background(), "nb", 1, "hi")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
