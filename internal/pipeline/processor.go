// Package pipeline 定义了文档索引的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/prompt"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/embedding"
	"smart-notebook-go/pkg/llm"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/metrics"
	"smart-notebook-go/pkg/structured"
	"smart-notebook-go/pkg/tasks"
)

// lockTTL 是单个文档处理锁的最长持有时间。
const lockTTL = model.ProcessingStaleAfter

// TextExtractor 从原始文件中提取纯文本（Tika）。
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, fileName string) (string, error)
}

// BlobReader 读取对象存储中的原始文件。
type BlobReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// Locker 保证同一文档同一时刻只有一个 worker 在处理。
type Locker interface {
	TryLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, documentID string) error
}

// Processor 封装了文档索引的所有依赖和逻辑。
type Processor struct {
	extractor  TextExtractor
	embedder   embedding.Client
	generator  llm.Client
	blobs      BlobReader
	locker     Locker
	docRepo    repository.DocumentRepository
	chunkRepo  repository.ChunkRepository
	embRepo    repository.EmbeddingRepository
	store      vectorstore.Store
	prompts    *prompt.Catalog
	chunker    *Chunker
	cfg        config.IndexerConfig
	embedModel string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractor TextExtractor,
	embedder embedding.Client,
	generator llm.Client,
	blobs BlobReader,
	locker Locker,
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	embRepo repository.EmbeddingRepository,
	store vectorstore.Store,
	prompts *prompt.Catalog,
	cfg config.IndexerConfig,
	embedModel string,
) *Processor {
	return &Processor{
		extractor:  extractor,
		embedder:   embedder,
		generator:  generator,
		blobs:      blobs,
		locker:     locker,
		docRepo:    docRepo,
		chunkRepo:  chunkRepo,
		embRepo:    embRepo,
		store:      store,
		prompts:    prompts,
		chunker:    NewChunker(WithChunkSize(cfg.ChunkSize), WithChunkOverlap(cfg.ChunkOverlap)),
		cfg:        cfg,
		embedModel: embedModel,
	}
}

// embedResult 是单个分块的向量化结果，Vector 为 nil 表示两次尝试都失败。
type embedResult struct {
	Vector []float32
	Err    error
}

// Process 是文档索引的主函数。
// 返回 nil 表示文档已到达终态（processed / failed）或无需处理；返回错误表示基础设施故障，任务应重试。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIndexTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, NotebookID: %s", task.DocumentID, task.NotebookID)

	locked, err := p.locker.TryLock(ctx, task.DocumentID, lockTTL)
	if err != nil {
		return err
	}
	if !locked {
		log.Warnf("[Processor] 文档 %s 正在被其他 worker 处理, 跳过", task.DocumentID)
		return nil
	}
	defer func() {
		if err := p.locker.Unlock(context.WithoutCancel(ctx), task.DocumentID); err != nil {
			log.Warnf("[Processor] 释放文档处理锁失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		}
	}()

	doc, err := p.docRepo.FindByID(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Warnf("[Processor] 文档 %s 已不存在, 任务丢弃", task.DocumentID)
			return nil
		}
		return fmt.Errorf("查询文档失败: %w", err)
	}
	if err := p.docRepo.UpdateStatus(ctx, doc.ID, model.DocumentStatusProcessing, ""); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	// 1. 获取文本
	log.Infof("[Processor] 步骤1: 获取文档文本, FileName: %s", doc.FileName)
	text, err := p.loadText(ctx, doc)
	if err != nil {
		if errors.Is(err, model.ErrExtraction) {
			log.Warnf("[Processor] 文本提取失败, 文档标记为 failed, DocumentID: %s, Error: %v", doc.ID, err)
			return p.finish(ctx, doc.ID, model.DocumentStatusFailed, 0, 0, err.Error())
		}
		return p.abort(ctx, doc.ID, fmt.Errorf("读取原始文件失败: %w", err))
	}
	log.Infof("[Processor] 步骤1: 文本获取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 重新索引时先清理旧数据，保证幂等
	log.Info("[Processor] 步骤2: 清理该文档既有的分块和向量")
	if err := p.clear(ctx, doc.ID); err != nil {
		return p.abort(ctx, doc.ID, err)
	}

	// 3. 文本切块并持久化
	pieces := p.chunker.Split(text)
	log.Infof("[Processor] 步骤3: 文本分块完成, chunkSize: %d, chunkOverlap: %d, 共生成 %d 个分块",
		p.chunker.Size(), p.chunker.Overlap(), len(pieces))
	chunks := make([]model.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = model.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Ordinal:    piece.Index,
			Content:    piece.Text,
			CharLength: utf8.RuneCountInString(piece.Text),
		}
	}
	if err := p.chunkRepo.BatchCreate(ctx, chunks); err != nil {
		return p.abort(ctx, doc.ID, fmt.Errorf("批量保存文本分块失败: %w", err))
	}

	// 4. 并发向量化，单个分块失败只重试一次，不影响其他分块
	log.Infof("[Processor] 步骤4: 开始向量化, 并发度: %d", p.cfg.EmbedConcurrency)
	results := p.embedAll(ctx, chunks)
	if err := ctx.Err(); err != nil {
		return p.abort(ctx, doc.ID, err)
	}

	records := make([]model.EmbeddingRecord, 0, len(chunks))
	entries := make([]vectorstore.Entry, 0, len(chunks))
	failed := 0
	for i, res := range results {
		if res.Vector == nil {
			failed++
			metrics.IndexedChunksTotal.WithLabelValues("failed").Inc()
			log.Warnf("[Processor] 分块 %d 向量化失败, 已记录为失败分块, Error: %v", chunks[i].Ordinal, res.Err)
			continue
		}
		metrics.IndexedChunksTotal.WithLabelValues("embedded").Inc()
		records = append(records, model.EmbeddingRecord{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkID:    chunks[i].ID,
			Ordinal:    chunks[i].Ordinal,
			ChunkText:  chunks[i].Content,
			Vector:     res.Vector,
			Model:      p.embedModel,
		})
		entries = append(entries, vectorstore.Entry{
			ChunkID:    chunks[i].ID,
			DocumentID: doc.ID,
			Ordinal:    chunks[i].Ordinal,
			Text:       chunks[i].Content,
			Vector:     res.Vector,
		})
	}
	log.Infof("[Processor] 步骤4: 向量化完成, 成功 %d, 失败 %d", len(records), failed)

	// 5. 持久化向量
	if len(records) > 0 {
		if err := p.embRepo.BatchCreate(ctx, records); err != nil {
			return p.abort(ctx, doc.ID, fmt.Errorf("保存向量记录失败: %w", err))
		}
		if err := p.store.Upsert(ctx, entries); err != nil {
			return p.abort(ctx, doc.ID, fmt.Errorf("写入向量索引失败: %w", err))
		}
	}

	// 6. 生成文档摘要与标签，失败不影响文档状态
	log.Info("[Processor] 步骤6: 生成文档摘要与标签")
	if err := p.summarize(ctx, doc, text); err != nil {
		log.Warnf("[Processor] 生成文档摘要失败, DocumentID: %s, Error: %v", doc.ID, err)
	}

	// 7. 更新文档终态
	if len(chunks) > 0 && len(records) == 0 {
		return p.finish(ctx, doc.ID, model.DocumentStatusFailed, len(chunks), failed, "all chunks failed to embed")
	}
	return p.finish(ctx, doc.ID, model.DocumentStatusProcessed, len(chunks), failed, "")
}

// loadText 按优先级获取文本：客户端已提取的文本 > 纯文本原文 > Tika 提取。
func (p *Processor) loadText(ctx context.Context, doc *model.Document) (string, error) {
	if doc.TextPath != "" {
		extracted, err := p.blobs.Get(ctx, doc.TextPath)
		if err != nil {
			return "", err
		}
		if text := string(extracted); strings.TrimSpace(text) != "" && utf8.ValidString(text) {
			return text, nil
		}
		log.Warnf("[Processor] 客户端提取的文本为空或非法, 回退到原始文件, DocumentID: %s", doc.ID)
	}

	data, err := p.blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("文件内容为空: %w", model.ErrExtraction)
	}

	var text string
	if doc.IsPlainText() {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("文件不是合法的 UTF-8 文本: %w", model.ErrExtraction)
		}
		text = string(data)
	} else {
		text, err = p.extractor.ExtractText(ctx, data, doc.FileName)
		if err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("提取的文本内容为空: %w", model.ErrExtraction)
	}
	return text, nil
}

func (p *Processor) clear(ctx context.Context, documentID string) error {
	ids := []string{documentID}
	if err := p.store.DeleteByDocumentIDs(ctx, ids); err != nil {
		return fmt.Errorf("清理向量索引失败: %w", err)
	}
	if err := p.embRepo.DeleteByDocumentIDs(ctx, ids); err != nil {
		return fmt.Errorf("清理向量记录失败: %w", err)
	}
	if err := p.chunkRepo.DeleteByDocumentIDs(ctx, ids); err != nil {
		return fmt.Errorf("清理分块记录失败: %w", err)
	}
	return nil
}

func (p *Processor) embedAll(ctx context.Context, chunks []model.Chunk) []embedResult {
	results := make([]embedResult, len(chunks))

	var g errgroup.Group
	g.SetLimit(p.cfg.EmbedConcurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			vec, err := p.embedder.CreateEmbedding(ctx, chunks[i].Content)
			if err != nil && ctx.Err() == nil {
				log.Warnf("[Processor] 分块 %d 向量化失败, 重试一次, Error: %v", chunks[i].Ordinal, err)
				vec, err = p.embedder.CreateEmbedding(ctx, chunks[i].Content)
			}
			if err != nil {
				vec = nil
			}
			// 每个 goroutine 只写自己的下标
			results[i] = embedResult{Vector: vec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type summaryOutput struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// summarize 为整篇文档生成一份摘要和标签，保存在文档上并刷新到它的向量记录。
func (p *Processor) summarize(ctx context.Context, doc *model.Document, text string) error {
	content := text
	if runes := []rune(text); len(runes) > p.cfg.SummaryMaxChars {
		content = string(runes[:p.cfg.SummaryMaxChars])
	}
	msg, err := p.prompts.Render(prompt.DocumentSummary, prompt.SummaryData{
		FileName: doc.FileName,
		Content:  content,
		MaxTags:  p.cfg.MaxTags,
	})
	if err != nil {
		return err
	}
	raw, err := p.generator.Generate(ctx, []llm.Message{{Role: model.RoleUser, Content: msg}}, nil)
	if err != nil {
		return err
	}
	out, err := structured.Parse[summaryOutput](raw)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	summary := strings.TrimSpace(out.Summary)
	tags := NormalizeTags(out.Tags, p.cfg.MaxTags)

	if err := p.docRepo.UpdateSummary(ctx, doc.ID, summary, tags); err != nil {
		return err
	}
	return p.embRepo.RefreshSummary(ctx, doc.ID, summary, tags)
}

// NormalizeTags 将标签转为小写、去掉首尾空白、去重，并截断到 limit 个。
func NormalizeTags(tags []string, limit int) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (p *Processor) finish(ctx context.Context, documentID string, status model.DocumentStatus, chunkCount, failedChunks int, errMsg string) error {
	if err := p.docRepo.MarkIndexed(ctx, documentID, status, chunkCount, failedChunks, errMsg); err != nil {
		return fmt.Errorf("更新文档终态失败: %w", err)
	}
	metrics.IndexedDocumentsTotal.WithLabelValues(string(status)).Inc()
	log.Infof("[Processor] 文档处理结束, DocumentID: %s, 状态: %s, 分块: %d, 失败分块: %d", documentID, status, chunkCount, failedChunks)
	return nil
}

// abort 在基础设施故障时把文档标记为 failed 并返回原错误，让任务队列重试。
func (p *Processor) abort(ctx context.Context, documentID string, cause error) error {
	log.Errorf("[Processor] 文档处理中断, DocumentID: %s, Error: %v", documentID, cause)
	if err := p.docRepo.UpdateStatus(context.WithoutCancel(ctx), documentID, model.DocumentStatusFailed, cause.Error()); err != nil {
		log.Errorf("[Processor] 标记文档失败状态时出错, DocumentID: %s, Error: %v", documentID, err)
	}
	metrics.IndexedDocumentsTotal.WithLabelValues("aborted").Inc()
	return cause
}
