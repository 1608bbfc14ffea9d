package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/prompt"
	"smart-notebook-go/internal/service"
	"smart-notebook-go/pkg/log"
)

// StudioHandler 负责生成各类学习产物：思维导图、卡片、测验、报告、音频与信息图。
// 这些接口统一返回 {success: true, ...} 或 {success: false, error}。
type StudioHandler struct {
	studioService service.StudioService
	prompts       *prompt.Catalog
}

// NewStudioHandler 创建一个新的 StudioHandler 实例。
func NewStudioHandler(studioService service.StudioService, prompts *prompt.Catalog) *StudioHandler {
	return &StudioHandler{studioService: studioService, prompts: prompts}
}

// StudioRequest 是所有产物接口共用的可选请求体。
type StudioRequest struct {
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
	ReportType string `json:"reportType"`
	Style      string `json:"style"`
}

func (h *StudioHandler) bind(c *gin.Context) (StudioRequest, bool) {
	var req StudioRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "无效的请求负载"})
		return req, false
	}
	return req, true
}

func studioFail(c *gin.Context, artifact string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Errorf("[Studio] 生成 %s 失败: %v", artifact, err)
		msg = "Failed to generate " + artifact
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func (h *StudioHandler) MindMap(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	mm, err := h.studioService.MindMap(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		studioFail(c, "mind map", err)
		return
	}
	resp := gin.H{"success": true, "nodes": mm.Nodes, "edges": mm.Edges, "degraded": mm.Degraded}
	if mm.Message != "" {
		resp["message"] = mm.Message
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StudioHandler) Flashcards(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	set, err := h.studioService.Flashcards(c.Request.Context(), c.Param("id"), userID, req.Count)
	if err != nil {
		studioFail(c, "flashcards", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "flashcards": set.Flashcards, "degraded": set.Degraded})
}

func (h *StudioHandler) Quiz(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	quiz, err := h.studioService.Quiz(c.Request.Context(), c.Param("id"), userID, req.Count, req.Difficulty)
	if err != nil {
		studioFail(c, "quiz", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quiz": quiz.Questions, "difficulty": quiz.Difficulty, "degraded": quiz.Degraded})
}

func (h *StudioHandler) Report(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	report, err := h.studioService.Report(c.Request.Context(), c.Param("id"), userID, req.ReportType)
	if err != nil {
		studioFail(c, "report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report.Content, "reportType": report.Type})
}

// ReportTypes 列出可用的报告类型。
func (h *StudioHandler) ReportTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "reportTypes": h.prompts.ReportTypes(), "default": prompt.DefaultReportType})
}

// Audio 返回 base64 编码的 WAV 音频及其讲稿。
func (h *StudioHandler) Audio(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	audio, err := h.studioService.Audio(c.Request.Context(), c.Param("id"), userID, req.Style)
	if err != nil {
		studioFail(c, "audio", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"title":    audio.Title,
		"mimeType": audio.MimeType,
		"audio":    base64.StdEncoding.EncodeToString(audio.Audio),
		"script":   audio.Script,
	})
}

// Infographic 返回 base64 编码的信息图图片。
func (h *StudioHandler) Infographic(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	img, err := h.studioService.Infographic(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		studioFail(c, "infographic", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"title":    img.Title,
		"mimeType": img.MimeType,
		"image":    base64.StdEncoding.EncodeToString(img.Image),
	})
}
