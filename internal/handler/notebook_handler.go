package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/service"
)

// NotebookHandler 负责笔记本的增删查与概览接口。
type NotebookHandler struct {
	notebookService service.NotebookService
}

// NewNotebookHandler 创建一个新的 NotebookHandler 实例。
func NewNotebookHandler(notebookService service.NotebookService) *NotebookHandler {
	return &NotebookHandler{notebookService: notebookService}
}

// CreateNotebookRequest 定义了创建笔记本的请求体。
type CreateNotebookRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *NotebookHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req CreateNotebookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	nb, err := h.notebookService.Create(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		fail(c, err, "创建笔记本失败")
		return
	}
	success(c, nb)
}

func (h *NotebookHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	notebooks, err := h.notebookService.List(c.Request.Context(), userID)
	if err != nil {
		fail(c, err, "获取笔记本列表失败")
		return
	}
	success(c, notebooks)
}

// Summary 返回由文档摘要和标签聚合而成的笔记本概览。
func (h *NotebookHandler) Summary(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	summary, err := h.notebookService.Summary(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err, "获取笔记本概览失败")
		return
	}
	success(c, summary)
}

func (h *NotebookHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.notebookService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		fail(c, err, "删除笔记本失败")
		return
	}
	success(c, nil)
}
