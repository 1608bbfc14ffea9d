package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/service"
)

// SearchHandler 提供检索调试接口：返回问答时会使用的片段与得分。
type SearchHandler struct {
	searchService service.SearchService
	docService    service.DocumentService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, docService service.DocumentService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		docService:    docService,
	}
}

// Search 处理 GET /notebooks/:id/search?query=xxx。
func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Query parameter is required", "data": nil})
		return
	}

	docs, err := h.docService.List(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err, "检索失败")
		return
	}
	rc, err := h.searchService.BuildContext(c.Request.Context(), query, docs)
	if err != nil {
		fail(c, err, "检索失败")
		return
	}
	success(c, gin.H{"matches": rc.Matches, "citations": rc.Citations})
}
