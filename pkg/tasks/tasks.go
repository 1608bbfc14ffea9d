// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIndexTask 是一次文档索引任务。文本来源由文档记录本身决定，任务只携带标识。
type DocumentIndexTask struct {
	DocumentID string `json:"document_id"`
	NotebookID string `json:"notebook_id"`
	UserID     uint   `json:"user_id"`
}
