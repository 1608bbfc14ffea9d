package model

import "errors"

// 业务错误分类，调用方使用 errors.Is 判断。
var (
	// ErrExtraction 上传文件的文本提取失败；文档标记为 failed，且没有分块。
	ErrExtraction = errors.New("text extraction failed")
	// ErrEmbeddingProvider 向量化调用失败（上游错误、传输错误或非法输入）。
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrGeneration 大模型 / 语音 / 图像生成调用失败。
	ErrGeneration = errors.New("generation failed")
	// ErrParse 结构化输出在修复后仍无法解析。
	ErrParse = errors.New("structured output parse failed")
	// ErrNotFound 笔记本或文档不存在。
	ErrNotFound = errors.New("not found")
	// ErrNoDocuments 笔记本中没有可用于生成产物的文档。
	ErrNoDocuments = errors.New("no documents found in notebook")
	// ErrProviderTimeout 模型调用超过了单次调用的超时时间。
	ErrProviderTimeout = errors.New("provider call timed out")
	// ErrInvalidArgument 请求参数不合法。
	ErrInvalidArgument = errors.New("invalid argument")
)
