// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/prompt"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/pkg/llm"
	"smart-notebook-go/pkg/log"
)

const (
	// NoDocumentsMessage 是笔记本中没有任何文档时的固定回复。
	NoDocumentsMessage = "No documents found in this notebook. Please upload some documents first."
	// GenerationErrorMessage 是生成失败时展示给用户的助手消息。
	GenerationErrorMessage = "Sorry, I couldn't generate a response right now. Please try again."
	// RetrievalErrorMessage 是检索失败时展示给用户的助手消息。
	RetrievalErrorMessage = "Sorry, I couldn't search your documents right now. Please try again."
)

// ChatResponse 是一轮问答的结果。
type ChatResponse struct {
	Response    string           `json:"response"`
	Citations   []model.Citation `json:"citations"`
	SourcesUsed int              `json:"sources_used"`
}

// ChatService 定义了问答编排的接口。
type ChatService interface {
	// Answer 回答一个问题。生成失败时返回的 ChatResponse 携带可展示的错误文本，同时返回 model.ErrGeneration。
	Answer(ctx context.Context, notebookID string, userID uint, message string) (*ChatResponse, error)
}

type chatService struct {
	searchService SearchService
	llmClient     llm.Client
	notebookRepo  repository.NotebookRepository
	docRepo       repository.DocumentRepository
	chatRepo      repository.ChatRepository
	prompts       *prompt.Catalog
	chatCfg       config.ChatConfig
	genCfg        config.LLMGenerationConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	searchService SearchService,
	llmClient llm.Client,
	notebookRepo repository.NotebookRepository,
	docRepo repository.DocumentRepository,
	chatRepo repository.ChatRepository,
	prompts *prompt.Catalog,
	chatCfg config.ChatConfig,
	genCfg config.LLMGenerationConfig,
) ChatService {
	return &chatService{
		searchService: searchService,
		llmClient:     llmClient,
		notebookRepo:  notebookRepo,
		docRepo:       docRepo,
		chatRepo:      chatRepo,
		prompts:       prompts,
		chatCfg:       chatCfg,
		genCfg:        genCfg,
	}
}

// Answer 协调 RAG 流程：检索上下文、拼装提示词、调用大模型并持久化问答。
func (s *chatService) Answer(ctx context.Context, notebookID string, userID uint, message string) (*ChatResponse, error) {
	if _, err := findOwnedNotebook(ctx, s.notebookRepo, notebookID, userID); err != nil {
		return nil, err
	}
	docs, err := s.docRepo.FindByNotebookID(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	// 1. 历史记录在保存本轮用户消息之前读取
	history, err := s.chatRepo.Recent(ctx, notebookID, userID, s.chatCfg.HistoryTurns)
	if err != nil {
		log.Errorf("[ChatService] 加载对话历史失败: %v", err)
		history = nil
	}
	if err := s.save(ctx, notebookID, userID, model.RoleUser, message, nil, false); err != nil {
		return nil, err
	}

	// 2. 没有文档时直接返回固定回复，不调用任何模型
	if len(docs) == 0 {
		resp := &ChatResponse{Response: NoDocumentsMessage, Citations: []model.Citation{}}
		return resp, s.save(ctx, notebookID, userID, model.RoleAssistant, resp.Response, nil, false)
	}

	// 3. 检索上下文
	rc, err := s.searchService.BuildContext(ctx, message, docs)
	if err != nil {
		log.Errorf("[ChatService] 检索上下文失败: %v", err)
		return s.fail(ctx, notebookID, userID, RetrievalErrorMessage, err)
	}

	// 4. 构建 system 消息与历史
	systemMsg, err := s.prompts.Render(prompt.ChatSystem, prompt.ChatData{
		Overview: overviewEntries(docs, s.chatCfg.OverviewLimit),
		Context:  rc.PromptContext,
	})
	if err != nil {
		return nil, err
	}
	ack, err := s.prompts.Render(prompt.ChatAcknowledgement, nil)
	if err != nil {
		return nil, err
	}
	msgs := composeMessages(systemMsg, ack, history, message)

	// 5. 调用 LLM
	log.Infof("[ChatService] 调用 LLM, 来源数: %d, 历史消息数: %d", len(rc.Citations), len(history))
	answer, err := s.llmClient.Generate(ctx, msgs, generationParams(s.genCfg))
	if err != nil {
		log.Errorf("[ChatService] LLM 生成失败: %v", err)
		return s.fail(ctx, notebookID, userID, GenerationErrorMessage, err)
	}

	// 6. 保存助手消息
	resp := &ChatResponse{Response: answer, Citations: rc.Citations, SourcesUsed: len(rc.Citations)}
	if err := s.save(ctx, notebookID, userID, model.RoleAssistant, answer, rc.Citations, false); err != nil {
		return nil, err
	}
	return resp, nil
}

// fail 保存一条可见的错误助手消息，并以 model.ErrGeneration 返回。
func (s *chatService) fail(ctx context.Context, notebookID string, userID uint, text string, cause error) (*ChatResponse, error) {
	resp := &ChatResponse{Response: text, Citations: []model.Citation{}}
	if err := s.save(context.WithoutCancel(ctx), notebookID, userID, model.RoleAssistant, text, nil, true); err != nil {
		log.Errorf("[ChatService] 保存错误消息失败: %v", err)
	}
	if errors.Is(cause, model.ErrGeneration) {
		return resp, cause
	}
	return resp, errors.Join(model.ErrGeneration, cause)
}

func (s *chatService) save(ctx context.Context, notebookID string, userID uint, role, content string, citations []model.Citation, failed bool) error {
	msg := &model.ChatMessage{
		ID:         uuid.NewString(),
		NotebookID: notebookID,
		UserID:     userID,
		Role:       role,
		Content:    content,
		Citations:  citations,
		Failed:     failed,
		CreatedAt:  time.Now(),
	}
	if err := s.chatRepo.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// overviewEntries 取前 limit 个已有摘要的文档作为概览。
func overviewEntries(docs []model.Document, limit int) []prompt.OverviewEntry {
	var out []prompt.OverviewEntry
	for _, d := range docs {
		if d.Summary == "" {
			continue
		}
		out = append(out, prompt.OverviewEntry{FileName: d.FileName, Summary: d.Summary})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func composeMessages(systemMsg, ack string, history []model.ChatMessage, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+3)
	msgs = append(msgs, llm.Message{Role: model.RoleSystem, Content: systemMsg})
	msgs = append(msgs, llm.Message{Role: model.RoleAssistant, Content: ack})
	for _, h := range history {
		if h.Failed {
			continue
		}
		role := model.RoleAssistant
		if h.Role == model.RoleUser {
			role = model.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: model.RoleUser, Content: userInput})
	return msgs
}

func generationParams(cfg config.LLMGenerationConfig) *llm.GenerationParams {
	var gp llm.GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gp.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
