package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/service"
	"smart-notebook-go/pkg/log"
)

// UploadHandler 负责处理文件上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
	maxBytes      int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, maxBytes: maxBytes}
}

// Upload 处理 multipart 上传：字段 file 为原始文件，可选字段 extracted_text 为客户端已提取的文本。
func (h *UploadHandler) Upload(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if h.maxBytes > 0 {
		// 额外留出表单字段（提取文本）的空间
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes*2+1<<20)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少上传文件", "data": nil})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Error("Upload: failed to open multipart file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取上传文件失败", "data": nil})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		log.Error("Upload: failed to read multipart file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取上传文件失败", "data": nil})
		return
	}

	doc, err := h.uploadService.Upload(c.Request.Context(), service.UploadRequest{
		NotebookID:    c.Param("id"),
		UserID:        userID,
		FileName:      fileHeader.Filename,
		ContentType:   fileHeader.Header.Get("Content-Type"),
		Data:          data,
		ExtractedText: c.PostForm("extracted_text"),
	})
	if err != nil {
		fail(c, err, "上传失败")
		return
	}
	success(c, doc)
}

// GetSupportedFileTypes 返回系统支持的文件类型。
func (h *UploadHandler) GetSupportedFileTypes(c *gin.Context) {
	success(c, h.uploadService.GetSupportedFileTypes())
}
