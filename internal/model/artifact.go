package model

// 思维导图节点类型，由节点在树中的深度决定。
const (
	NodeTypeCentral  = "central"
	NodeTypeCategory = "category"
	NodeTypeConcept  = "concept"
	NodeTypeDetail   = "detail"
)

// MindMapNode 是扁平化后的思维导图节点。
type MindMapNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// MindMapEdge 连接父子两个节点。
type MindMapEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// MindMap 是思维导图的节点/边列表。Degraded 表示结果来自确定性的降级路径。
type MindMap struct {
	Nodes    []MindMapNode `json:"nodes"`
	Edges    []MindMapEdge `json:"edges"`
	Degraded bool          `json:"degraded"`
	Message  string        `json:"message,omitempty"`
}

// Flashcard 是一张问答卡片。
type Flashcard struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FlashcardSet 是一组卡片。
type FlashcardSet struct {
	Flashcards []Flashcard `json:"flashcards"`
	Degraded   bool        `json:"degraded"`
}

// QuizQuestion 是一道单选题，Answer 必须是 Options 之一。
type QuizQuestion struct {
	ID          int      `json:"id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// Quiz 是一组测验题。
type Quiz struct {
	Difficulty string         `json:"difficulty"`
	Questions  []QuizQuestion `json:"quiz"`
	Degraded   bool           `json:"degraded"`
}

// Report 是 markdown 格式的长文本报告。
type Report struct {
	Type    string `json:"reportType"`
	Content string `json:"report"`
}

// AudioArtifact 是合成后的音频（WAV）及其讲稿。
type AudioArtifact struct {
	Title    string `json:"title"`
	MimeType string `json:"mimeType"`
	Audio    []byte `json:"audio"`
	Script   string `json:"script"`
}

// Infographic 是生成的信息图图片。
type Infographic struct {
	Title    string `json:"title"`
	MimeType string `json:"mimeType"`
	Image    []byte `json:"image"`
}
