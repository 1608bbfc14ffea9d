// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/prompt"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/pkg/llm"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/metrics"
	"smart-notebook-go/pkg/speech"
	"smart-notebook-go/pkg/structured"
)

const (
	defaultFlashcardCount = 10
	defaultQuizCount      = 20
	maxArtifactItems      = 50
	defaultDifficulty     = "medium"
	infographicTagLimit   = 10

	AudioStyleOverview = "overview"
	AudioStyleStory    = "story"
)

// StudioService 生成笔记本级别的学习产物。
// 生成能力调用失败时返回包装了 model.ErrGeneration 的错误；结构化输出无法解析时返回 Degraded 的降级结果。
type StudioService interface {
	MindMap(ctx context.Context, notebookID string, userID uint) (*model.MindMap, error)
	Flashcards(ctx context.Context, notebookID string, userID uint, count int) (*model.FlashcardSet, error)
	Quiz(ctx context.Context, notebookID string, userID uint, count int, difficulty string) (*model.Quiz, error)
	Report(ctx context.Context, notebookID string, userID uint, reportType string) (*model.Report, error)
	Audio(ctx context.Context, notebookID string, userID uint, style string) (*model.AudioArtifact, error)
	Infographic(ctx context.Context, notebookID string, userID uint) (*model.Infographic, error)
}

type studioService struct {
	notebookRepo repository.NotebookRepository
	docRepo      repository.DocumentRepository
	embRepo      repository.EmbeddingRepository
	llmClient    llm.Client
	speech       speech.Client
	images       llm.ImageClient
	prompts      *prompt.Catalog
	cfg          config.StudioConfig
	voice        string
	genCfg       config.LLMGenerationConfig
}

// NewStudioService 创建一个新的 StudioService 实例。
func NewStudioService(
	notebookRepo repository.NotebookRepository,
	docRepo repository.DocumentRepository,
	embRepo repository.EmbeddingRepository,
	llmClient llm.Client,
	speechClient speech.Client,
	images llm.ImageClient,
	prompts *prompt.Catalog,
	cfg config.StudioConfig,
	voice string,
	genCfg config.LLMGenerationConfig,
) StudioService {
	return &studioService{
		notebookRepo: notebookRepo,
		docRepo:      docRepo,
		embRepo:      embRepo,
		llmClient:    llmClient,
		speech:       speechClient,
		images:       images,
		prompts:      prompts,
		cfg:          cfg,
		voice:        voice,
		genCfg:       genCfg,
	}
}

// source 是一次产物生成所需的笔记本内容。
type source struct {
	notebook *model.Notebook
	docs     []model.Document
	rows     []model.EmbeddingRecord
}

func (src *source) summaries() []string {
	var out []string
	for _, d := range src.docs {
		if d.Summary != "" {
			out = append(out, d.Summary)
		}
	}
	return out
}

func (src *source) tags(limit int) []string {
	var all []string
	for _, d := range src.docs {
		all = append(all, d.Tags...)
	}
	return uniqueTags(all, limit)
}

// sample 把前 n 行分块文本以空行连接，并截断到 maxChars 个字符。
func (src *source) sample(n, maxChars int) string {
	texts := make([]string, 0, n)
	for i, r := range src.rows {
		if n > 0 && i == n {
			break
		}
		if r.ChunkText != "" {
			texts = append(texts, r.ChunkText)
		}
	}
	return truncateRunes(strings.Join(texts, "\n\n"), maxChars)
}

// load 校验归属并读取文档与向量行；rowLimit <= 0 表示读取全部向量行。
func (s *studioService) load(ctx context.Context, notebookID string, userID uint, rowLimit int) (*source, error) {
	nb, err := findOwnedNotebook(ctx, s.notebookRepo, notebookID, userID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docRepo.FindByNotebookID(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	src := &source{notebook: nb, docs: docs}
	if len(docs) == 0 {
		return src, nil
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if src.rows, err = s.embRepo.FindByDocumentIDs(ctx, ids, rowLimit); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *studioService) generate(ctx context.Context, artifact, text string) (string, error) {
	out, err := s.llmClient.Generate(ctx, []llm.Message{{Role: model.RoleUser, Content: text}}, generationParams(s.genCfg))
	if err != nil {
		metrics.ArtifactsTotal.WithLabelValues(artifact, "error").Inc()
		log.Errorf("[StudioService] %s 生成失败: %v", artifact, err)
		if errors.Is(err, model.ErrGeneration) {
			return "", err
		}
		return "", fmt.Errorf("%s generation: %w", artifact, errors.Join(model.ErrGeneration, err))
	}
	return out, nil
}

func record(artifact string, degraded bool) {
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	metrics.ArtifactsTotal.WithLabelValues(artifact, outcome).Inc()
}

// MindMap 生成思维导图。没有文档或文档尚未索引时只返回中心节点；输出无法解析时使用标签降级。
func (s *studioService) MindMap(ctx context.Context, notebookID string, userID uint) (*model.MindMap, error) {
	src, err := s.load(ctx, notebookID, userID, 0)
	if err != nil {
		return nil, err
	}
	if len(src.docs) == 0 {
		return centralOnly(src.notebook.Name, "No documents to analyze"), nil
	}
	if len(src.rows) == 0 {
		return centralOnly(src.notebook.Name, "Documents not processed yet"), nil
	}

	tags := src.tags(0)
	text, err := s.prompts.Render(prompt.MindMap, prompt.ArtifactData{
		Summaries: src.summaries(),
		Tags:      tags,
		Content:   src.sample(s.cfg.MindMapSampleChunks, s.cfg.MindMapContentChars),
	})
	if err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, "mindmap", text)
	if err != nil {
		return nil, err
	}

	out, err := structured.Parse[mindMapOutput](raw)
	if err == nil && len(out.Branches)+len(out.Categories) == 0 {
		err = fmt.Errorf("%w: mind map has no branches", structured.ErrParse)
	}
	if err != nil {
		log.Warnf("[StudioService] 思维导图解析失败, 使用标签降级: %v", err)
		record("mindmap", true)
		return FallbackMindMap(src.notebook.Name, tags), nil
	}
	mm := BuildMindMap(out, src.notebook.Name)
	log.Infof("[StudioService] 思维导图生成完成, 节点数: %d, 边数: %d", len(mm.Nodes), len(mm.Edges))
	record("mindmap", false)
	return mm, nil
}

type flashcardOutput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Flashcards 生成问答卡片；输出无法解析时每个有摘要的文档生成一张卡片。
func (s *studioService) Flashcards(ctx context.Context, notebookID string, userID uint, count int) (*model.FlashcardSet, error) {
	count = clampCount(count, defaultFlashcardCount)
	src, err := s.load(ctx, notebookID, userID, s.cfg.StudySampleChunks)
	if err != nil {
		return nil, err
	}
	if len(src.docs) == 0 {
		return nil, model.ErrNoDocuments
	}

	text, err := s.prompts.Render(prompt.Flashcards, prompt.ArtifactData{
		Summaries: src.summaries(),
		Tags:      src.tags(0),
		Content:   src.sample(0, s.cfg.StudyContentChars),
		Count:     count,
	})
	if err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, "flashcards", text)
	if err != nil {
		return nil, err
	}

	set := &model.FlashcardSet{Flashcards: []model.Flashcard{}}
	items, err := parseList[flashcardOutput](raw)
	if err == nil {
		for _, it := range items {
			q, a := strings.TrimSpace(it.Question), strings.TrimSpace(it.Answer)
			if q == "" || a == "" {
				continue
			}
			set.Flashcards = append(set.Flashcards, model.Flashcard{ID: len(set.Flashcards) + 1, Question: q, Answer: a})
			if len(set.Flashcards) == count {
				break
			}
		}
	}
	if len(set.Flashcards) == 0 {
		log.Warnf("[StudioService] 卡片解析失败, 使用文档摘要降级: %v", err)
		set = fallbackFlashcards(src.docs)
	}
	record("flashcards", set.Degraded)
	return set, nil
}

func fallbackFlashcards(docs []model.Document) *model.FlashcardSet {
	set := &model.FlashcardSet{Flashcards: []model.Flashcard{}, Degraded: true}
	for _, d := range docs {
		if d.Summary == "" {
			continue
		}
		set.Flashcards = append(set.Flashcards, model.Flashcard{
			ID:       len(set.Flashcards) + 1,
			Question: fmt.Sprintf("What is %s about?", d.FileName),
			Answer:   d.Summary,
		})
	}
	return set
}

type quizOutput struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// Quiz 生成单选题。答案不在选项中的题目会被丢弃；输出无法解析时用摘要与文件名构造题目。
func (s *studioService) Quiz(ctx context.Context, notebookID string, userID uint, count int, difficulty string) (*model.Quiz, error) {
	count = clampCount(count, defaultQuizCount)
	difficulty = normalizeDifficulty(difficulty)
	src, err := s.load(ctx, notebookID, userID, s.cfg.StudySampleChunks)
	if err != nil {
		return nil, err
	}
	if len(src.docs) == 0 {
		return nil, model.ErrNoDocuments
	}

	text, err := s.prompts.Render(prompt.Quiz, prompt.ArtifactData{
		Summaries:  src.summaries(),
		Tags:       src.tags(0),
		Content:    src.sample(0, s.cfg.StudyContentChars),
		Count:      count,
		Difficulty: difficulty,
	})
	if err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, "quiz", text)
	if err != nil {
		return nil, err
	}

	quiz := &model.Quiz{Difficulty: difficulty, Questions: []model.QuizQuestion{}}
	items, err := parseList[quizOutput](raw)
	if err == nil {
		for _, it := range items {
			q, ok := validQuestion(it)
			if !ok {
				continue
			}
			q.ID = len(quiz.Questions) + 1
			quiz.Questions = append(quiz.Questions, q)
			if len(quiz.Questions) == count {
				break
			}
		}
	}
	if len(quiz.Questions) == 0 {
		log.Warnf("[StudioService] 测验解析失败, 使用文档摘要降级: %v", err)
		quiz = fallbackQuiz(src.docs, difficulty)
	}
	record("quiz", quiz.Degraded)
	return quiz, nil
}

// validQuestion 清理选项并确认答案是选项之一。答案为单个字母（A-D）时按序号映射到选项。
func validQuestion(it quizOutput) (model.QuizQuestion, bool) {
	q := model.QuizQuestion{
		Question:    strings.TrimSpace(it.Question),
		Explanation: strings.TrimSpace(it.Explanation),
	}
	for _, o := range it.Options {
		if o = strings.TrimSpace(o); o != "" {
			q.Options = append(q.Options, o)
		}
	}
	if q.Question == "" || len(q.Options) < 2 {
		return q, false
	}
	answer := strings.TrimSpace(it.Answer)
	for _, o := range q.Options {
		if o == answer {
			q.Answer = o
			return q, true
		}
	}
	if len(answer) == 1 {
		if i := int(strings.ToUpper(answer)[0] - 'A'); i >= 0 && i < len(q.Options) {
			q.Answer = q.Options[i]
			return q, true
		}
	}
	return q, false
}

func fallbackQuiz(docs []model.Document, difficulty string) *model.Quiz {
	quiz := &model.Quiz{Difficulty: difficulty, Questions: []model.QuizQuestion{}, Degraded: true}
	var names []string
	for _, d := range docs {
		names = append(names, d.FileName)
	}
	for i, d := range docs {
		if d.Summary == "" {
			continue
		}
		quiz.Questions = append(quiz.Questions, model.QuizQuestion{
			ID:          len(quiz.Questions) + 1,
			Question:    fmt.Sprintf("Which source covers the following: %s", Excerpt(d.Summary, 200)),
			Options:     sourceOptions(names, i, 4),
			Answer:      d.FileName,
			Explanation: d.Summary,
		})
	}
	return quiz
}

// sourceOptions 取前 n 个文件名作为选项，并保证第 correct 个文件名在其中。
func sourceOptions(names []string, correct, n int) []string {
	if len(names) <= n {
		return append([]string(nil), names...)
	}
	opts := append([]string(nil), names[:n]...)
	if correct >= n {
		opts[correct%n] = names[correct]
	}
	return opts
}

// Report 生成 markdown 报告。未知类型按 briefing 处理。
func (s *studioService) Report(ctx context.Context, notebookID string, userID uint, reportType string) (*model.Report, error) {
	src, err := s.load(ctx, notebookID, userID, 0)
	if err != nil {
		return nil, err
	}
	if len(src.docs) == 0 {
		return nil, model.ErrNoDocuments
	}

	style, resolved := s.prompts.ReportStyle(reportType)
	text, err := s.prompts.Render(prompt.Report, prompt.ReportData{
		System:  style.System,
		Format:  style.Format,
		Content: s.reportContext(src),
		Tags:    src.tags(0),
	})
	if err != nil {
		return nil, err
	}
	content, err := s.generate(ctx, "report", text)
	if err != nil {
		return nil, err
	}
	record("report", false)
	log.Infof("[StudioService] 报告生成完成, 类型: %s, 长度: %d", resolved, len(content))
	return &model.Report{Type: resolved, Content: content}, nil
}

// reportContext 为每个文档拼接摘要和截断后的分块文本，总长度不超过 ReportContentChars；没有向量行时退化为文件名列表。
func (s *studioService) reportContext(src *source) string {
	if len(src.rows) == 0 {
		var sb strings.Builder
		sb.WriteString("Documents in this notebook:\n")
		for _, d := range src.docs {
			fmt.Fprintf(&sb, "- %s\n", d.FileName)
		}
		return sb.String()
	}

	content := make(map[string]*strings.Builder, len(src.docs))
	for _, r := range src.rows {
		b, ok := content[r.DocumentID]
		if !ok {
			b = &strings.Builder{}
			content[r.DocumentID] = b
		}
		if b.Len() < s.cfg.ReportRowChars*4 {
			b.WriteString(r.ChunkText)
			b.WriteString("\n")
		}
	}

	var sb strings.Builder
	for _, d := range src.docs {
		b, ok := content[d.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n\n## %s\n", d.FileName)
		if d.Summary != "" {
			fmt.Fprintf(&sb, "**Summary:** %s\n", d.Summary)
		}
		fmt.Fprintf(&sb, "**Content:** %s...\n", truncateRunes(b.String(), s.cfg.ReportRowChars))
	}
	return truncateRunes(sb.String(), s.cfg.ReportContentChars)
}

// Audio 生成讲稿并合成语音。style 为 story 时使用故事风格，其余按 overview 处理。
func (s *studioService) Audio(ctx context.Context, notebookID string, userID uint, style string) (*model.AudioArtifact, error) {
	src, err := s.load(ctx, notebookID, userID, s.cfg.AudioSampleRows)
	if err != nil {
		return nil, err
	}
	if len(src.docs) == 0 {
		return nil, model.ErrNoDocuments
	}

	var parts []string
	if summaries := src.summaries(); len(summaries) > 0 {
		parts = append(parts, strings.Join(summaries, "\n\n"))
	}
	if sample := src.sample(0, s.cfg.AudioContentChars); sample != "" {
		parts = append(parts, sample)
	}
	content := truncateRunes(strings.Join(parts, "\n\n"), s.cfg.AudioContentChars)

	name, title := prompt.AudioOverview, "Audio Overview"
	if style == AudioStyleStory {
		name, title = prompt.AudioStory, "Pixar Story"
	}
	text, err := s.prompts.Render(name, prompt.ContentData{Content: content})
	if err != nil {
		return nil, err
	}
	script, err := s.generate(ctx, "audio", text)
	if err != nil {
		return nil, err
	}

	audio, err := s.speech.Synthesize(ctx, script, s.voice)
	if err != nil {
		metrics.ArtifactsTotal.WithLabelValues("audio", "error").Inc()
		if errors.Is(err, model.ErrGeneration) {
			return nil, err
		}
		return nil, errors.Join(model.ErrGeneration, err)
	}
	record("audio", false)
	log.Infof("[StudioService] 音频生成完成, 标题: %s, 字节数: %d", title, len(audio))
	return &model.AudioArtifact{Title: title, MimeType: "audio/wav", Audio: audio, Script: script}, nil
}

// Infographic 基于文档摘要与标签生成信息图。
func (s *studioService) Infographic(ctx context.Context, notebookID string, userID uint) (*model.Infographic, error) {
	src, err := s.load(ctx, notebookID, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(src.docs) == 0 {
		return nil, model.ErrNoDocuments
	}

	title := firstNonEmpty(src.docs[0].Title(), "Document Overview")
	var sb strings.Builder
	names := make([]string, 0, len(src.docs))
	for _, d := range src.docs {
		names = append(names, d.FileName)
		if d.Summary != "" {
			fmt.Fprintf(&sb, "%s: %s\n", d.FileName, d.Summary)
		}
	}
	content := sb.String()
	if content == "" {
		content = strings.Join(names, ", ")
	}

	text, err := s.prompts.Render(prompt.Infographic, prompt.InfographicData{
		Title:   title,
		Content: content,
		Tags:    src.tags(infographicTagLimit),
	})
	if err != nil {
		return nil, err
	}
	img, err := s.images.GenerateImage(ctx, text)
	if err != nil {
		metrics.ArtifactsTotal.WithLabelValues("infographic", "error").Inc()
		if errors.Is(err, model.ErrGeneration) {
			return nil, err
		}
		return nil, errors.Join(model.ErrGeneration, err)
	}
	record("infographic", false)
	return &model.Infographic{Title: title, MimeType: img.MimeType, Image: img.Data}, nil
}

// parseList 解析 JSON 数组；模型把数组包在对象里（如 {"flashcards": [...]}）时取第一个非空数组字段。
func parseList[T any](raw string) ([]T, error) {
	items, err := structured.Parse[[]T](raw)
	if err == nil {
		return items, nil
	}
	wrapped, werr := structured.Parse[map[string]json.RawMessage](raw)
	if werr != nil {
		return nil, err
	}
	keys := make([]string, 0, len(wrapped))
	for k := range wrapped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var v []T
		if json.Unmarshal(wrapped[k], &v) == nil && len(v) > 0 {
			return v, nil
		}
	}
	return nil, err
}

func clampCount(n, def int) int {
	if n <= 0 {
		return def
	}
	if n > maxArtifactItems {
		return maxArtifactItems
	}
	return n
}

func normalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "easy", "medium", "hard":
		return d
	}
	return defaultDifficulty
}
