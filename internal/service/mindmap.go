package service

import (
	"fmt"
	"strings"

	"smart-notebook-go/internal/model"
)

const (
	centralNodeID    = "central"
	centralLabelMax  = 50
	branchLabelMax   = 40
	fallbackTagLimit = 5
	defaultCentral   = "Notebook"
)

// mindMapBranch 是大模型返回的任意深度分支。
type mindMapBranch struct {
	Name     string          `json:"name"`
	Children []mindMapBranch `json:"children"`
}

// mindMapOutput 是大模型返回的思维导图。部分模型会用 categories 代替 branches。
type mindMapOutput struct {
	CentralLabel string          `json:"centralLabel"`
	Branches     []mindMapBranch `json:"branches"`
	Categories   []mindMapBranch `json:"categories"`
}

// BuildMindMap 把嵌套的分支树转换为扁平的节点/边列表。
// 节点 id 由其在树中的路径决定（node-0、node-0-1 ...），同样的输入总是得到同样的 id；
// 节点类型由深度决定：第一层 category，第二层 concept，更深为 detail。
func BuildMindMap(out mindMapOutput, notebookName string) *model.MindMap {
	central := firstNonEmpty(out.CentralLabel, notebookName, defaultCentral)
	mm := &model.MindMap{
		Nodes: []model.MindMapNode{{ID: centralNodeID, Label: truncateRunes(central, centralLabelMax), Type: model.NodeTypeCentral}},
		Edges: []model.MindMapEdge{},
	}

	branches := out.Branches
	if len(branches) == 0 {
		branches = out.Categories
	}
	var walk func(b mindMapBranch, parentID string, depth int, path string)
	walk = func(b mindMapBranch, parentID string, depth int, path string) {
		id := "node-" + path
		mm.Nodes = append(mm.Nodes, model.MindMapNode{ID: id, Label: truncateRunes(b.Name, branchLabelMax), Type: nodeType(depth)})
		mm.Edges = append(mm.Edges, model.MindMapEdge{Source: parentID, Target: id})
		for i, child := range mergeSiblings(b.Children) {
			walk(child, id, depth+1, fmt.Sprintf("%s-%d", path, i))
		}
	}
	for i, b := range mergeSiblings(branches) {
		walk(b, centralNodeID, 1, fmt.Sprintf("%d", i))
	}
	return mm
}

// FallbackMindMap 在模型输出无法解析时，用已有标签构造中心节点加分类节点的思维导图。
func FallbackMindMap(notebookName string, tags []string) *model.MindMap {
	mm := &model.MindMap{
		Nodes:    []model.MindMapNode{{ID: centralNodeID, Label: firstNonEmpty(notebookName, defaultCentral), Type: model.NodeTypeCentral}},
		Edges:    []model.MindMapEdge{},
		Degraded: true,
		Message:  "Generated from document tags (AI response was invalid)",
	}
	for i, tag := range uniqueTags(tags, fallbackTagLimit) {
		id := fmt.Sprintf("cat-%d", i)
		mm.Nodes = append(mm.Nodes, model.MindMapNode{ID: id, Label: tag, Type: model.NodeTypeCategory})
		mm.Edges = append(mm.Edges, model.MindMapEdge{Source: centralNodeID, Target: id})
	}
	return mm
}

// centralOnly 返回只有中心节点的思维导图。
func centralOnly(notebookName, message string) *model.MindMap {
	return &model.MindMap{
		Nodes:   []model.MindMapNode{{ID: centralNodeID, Label: firstNonEmpty(notebookName, defaultCentral), Type: model.NodeTypeCentral}},
		Edges:   []model.MindMapEdge{},
		Message: message,
	}
}

// mergeSiblings 丢弃没有名字的分支，并把同名（忽略大小写与首尾空白）的兄弟分支合并到第一次出现的位置。
func mergeSiblings(branches []mindMapBranch) []mindMapBranch {
	out := make([]mindMapBranch, 0, len(branches))
	index := make(map[string]int, len(branches))
	for _, b := range branches {
		key := strings.ToLower(strings.TrimSpace(b.Name))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			merged := make([]mindMapBranch, 0, len(out[i].Children)+len(b.Children))
			out[i].Children = append(append(merged, out[i].Children...), b.Children...)
			continue
		}
		index[key] = len(out)
		b.Name = strings.TrimSpace(b.Name)
		out = append(out, b)
	}
	return out
}

func nodeType(depth int) string {
	switch depth {
	case 1:
		return model.NodeTypeCategory
	case 2:
		return model.NodeTypeConcept
	default:
		return model.NodeTypeDetail
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
