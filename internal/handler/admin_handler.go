package handler

import (
	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/middleware"
	"smart-notebook-go/internal/service"
	"smart-notebook-go/pkg/log"
)

// AdminHandler 负责维护类接口，只对管理员开放。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// Sweep 清理文档行已不存在的分块与向量。
func (h *AdminHandler) Sweep(c *gin.Context) {
	report, err := h.adminService.Sweep(c.Request.Context())
	if err != nil {
		fail(c, err, "孤儿数据清理失败")
		return
	}
	userID, _ := middleware.UserID(c)
	log.Infof("[Admin] 用户 %d 触发清理，移除 %d 个文档的残留数据", userID, report.Count)
	success(c, report)
}

// WarmIndex 从数据库重新加载全部向量到索引。
func (h *AdminHandler) WarmIndex(c *gin.Context) {
	n, err := h.adminService.WarmIndex(c.Request.Context())
	if err != nil {
		fail(c, err, "索引预热失败")
		return
	}
	success(c, gin.H{"loaded": n})
}
