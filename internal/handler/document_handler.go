package handler

import (
	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/service"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// List 返回笔记本中的文档及其索引状态。
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	docs, err := h.docService.List(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err, "获取文档列表失败")
		return
	}
	success(c, docs)
}

// Delete 处理删除文档的请求。
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.docService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		fail(c, err, "删除文档失败")
		return
	}
	success(c, nil)
}

// Reindex 重新投递文档的索引任务。
func (h *DocumentHandler) Reindex(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	doc, err := h.docService.Reindex(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err, "重新索引失败")
		return
	}
	success(c, doc)
}

// Download 返回原始文件的预签名下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	info, err := h.docService.GenerateDownloadURL(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err, "生成下载链接失败")
		return
	}
	success(c, info)
}
