package model

import (
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DocumentStatus 是文档索引状态机的取值。
type DocumentStatus string

const (
	DocumentStatusUnprocessed DocumentStatus = "unprocessed"
	DocumentStatusProcessing  DocumentStatus = "processing"
	DocumentStatusProcessed   DocumentStatus = "processed"
	DocumentStatusFailed      DocumentStatus = "failed"
)

// ProcessingStaleAfter 是文档停留在 processing 的最长时间，与处理锁的 TTL 一致。
// 超过这个时间仍未更新，说明 worker 已经退出。
const ProcessingStaleAfter = 30 * time.Minute

// Document 对应一次上传的文件。
// Summary 与 Tags 归属于文档本身，embeddings 表上的同名列只是它们的物化副本。
type Document struct {
	ID           string                      `gorm:"type:varchar(36);primaryKey" json:"id"`
	NotebookID   string                      `gorm:"type:varchar(36);not null;index" json:"notebookId"`
	UserID       uint                        `gorm:"not null;index" json:"userId"`
	FileName     string                      `gorm:"type:varchar(255);not null" json:"fileName"`
	StoragePath  string                      `gorm:"type:varchar(512);not null" json:"storagePath"`
	TextPath     string                      `gorm:"type:varchar(512)" json:"-"` // 客户端已提取文本的存储路径，可为空
	MediaType    string                      `gorm:"type:varchar(127)" json:"mediaType"`
	Size         int64                       `gorm:"not null;default:0" json:"size"`
	Status       DocumentStatus              `gorm:"type:varchar(16);not null;default:unprocessed;index" json:"status"`
	Summary      string                      `gorm:"type:text" json:"summary"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	ChunkCount   int                         `gorm:"not null;default:0" json:"chunkCount"`
	FailedChunks int                         `gorm:"not null;default:0" json:"failedChunks"`
	ErrorMessage string                      `gorm:"type:varchar(512)" json:"errorMessage,omitempty"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
	ProcessedAt  *time.Time                  `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// IsPlainText 判断文件是否可以直接按 UTF-8 文本读取，无需 Tika。
func (d *Document) IsPlainText() bool {
	if strings.HasPrefix(d.MediaType, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(d.FileName)) {
	case ".txt", ".md", ".markdown", ".csv", ".json":
		return true
	}
	return false
}

// BlobPaths 返回该文档在对象存储中的全部路径。
func (d *Document) BlobPaths() []string {
	paths := []string{d.StoragePath}
	if d.TextPath != "" {
		paths = append(paths, d.TextPath)
	}
	return paths
}

// Title 返回去掉扩展名的文件名。
func (d *Document) Title() string {
	return strings.TrimSuffix(d.FileName, filepath.Ext(d.FileName))
}
