// Package prompt 管理所有发送给生成模型的提示词模板。
// 模板默认内嵌在二进制中，也可以通过配置指向外部 YAML 文件覆盖。
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var embeddedCatalog []byte

// 模板名称。
const (
	ChatSystem          = "chat_system"
	ChatAcknowledgement = "chat_acknowledgement"
	DocumentSummary     = "document_summary"
	MindMap             = "mindmap"
	Flashcards          = "flashcards"
	Quiz                = "quiz"
	Report              = "report"
	AudioOverview       = "audio_overview"
	AudioStory          = "audio_story"
	Infographic         = "infographic"
)

// DefaultReportType 是未知报告类型时使用的类型。
const DefaultReportType = "briefing"

// ReportStyle 是某一类报告的角色设定和格式要求。
type ReportStyle struct {
	System string `yaml:"system"`
	Format string `yaml:"format"`
}

type catalogFile struct {
	Templates map[string]string      `yaml:"templates"`
	Reports   map[string]ReportStyle `yaml:"reports"`
}

// Catalog 是解析后的模板集合，可并发使用。
type Catalog struct {
	templates map[string]*template.Template
	reports   map[string]ReportStyle
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Load 从指定路径加载模板目录；path 为空时使用内嵌的默认目录。
func Load(path string) (*Catalog, error) {
	data := embeddedCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取提示词文件失败: %w", err)
		}
		data = b
	}
	return parse(data)
}

// Default 返回内嵌的默认模板目录。
func Default() *Catalog {
	c, err := parse(embeddedCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析提示词 YAML 失败: %w", err)
	}
	c := &Catalog{
		templates: make(map[string]*template.Template, len(file.Templates)),
		reports:   file.Reports,
	}
	for name, text := range file.Templates {
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("解析提示词模板 %s 失败: %w", name, err)
		}
		c.templates[name] = tmpl
	}
	if _, ok := c.reports[DefaultReportType]; !ok {
		return nil, fmt.Errorf("提示词目录缺少默认报告类型 %s", DefaultReportType)
	}
	return c, nil
}

// Render 使用 data 渲染名为 name 的模板。
func (c *Catalog) Render(name string, data any) (string, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("未知的提示词模板: %s", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("渲染提示词模板 %s 失败: %w", name, err)
	}
	return sb.String(), nil
}

// ReportStyle 返回报告类型对应的样式，以及实际采用的类型（未知类型回退到 briefing）。
func (c *Catalog) ReportStyle(reportType string) (ReportStyle, string) {
	if style, ok := c.reports[reportType]; ok {
		return style, reportType
	}
	return c.reports[DefaultReportType], DefaultReportType
}

// ReportTypes 返回所有已配置的报告类型。
func (c *Catalog) ReportTypes() []string {
	types := make([]string, 0, len(c.reports))
	for t := range c.reports {
		types = append(types, t)
	}
	return types
}

// OverviewEntry 是聊天系统提示词中的一行文档概览。
type OverviewEntry struct {
	FileName string
	Summary  string
}

// ChatData 是 chat_system 模板的输入。
type ChatData struct {
	Overview []OverviewEntry
	Context  string
}

// SummaryData 是 document_summary 模板的输入。
type SummaryData struct {
	FileName string
	Content  string
	MaxTags  int
}

// ArtifactData 是 mindmap / flashcards / quiz 模板的输入。
type ArtifactData struct {
	Summaries  []string
	Tags       []string
	Content    string
	Count      int
	Difficulty string
}

// ReportData 是 report 模板的输入。
type ReportData struct {
	System  string
	Format  string
	Content string
	Tags    []string
}

// ContentData 是 audio_overview / audio_story 模板的输入。
type ContentData struct {
	Content string
}

// InfographicData 是 infographic 模板的输入。
type InfographicData struct {
	Title   string
	Content string
	Tags    []string
}
