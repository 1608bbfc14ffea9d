package pipeline

const (
	// DefaultChunkSize 每个分块的默认字符（rune）数。
	DefaultChunkSize = 1000
	// DefaultChunkOverlap 相邻分块默认重叠的字符数。
	DefaultChunkOverlap = 100
)

// Piece 是切分结果中的一段文本。
type Piece struct {
	Index int
	Text  string
}

// Chunker 按 rune 将长文本切分为固定大小、可重叠的分块。
// 相同输入永远得到相同输出；按序拼接各分块（去掉重叠部分）即可还原全文。
type Chunker struct {
	size    int
	overlap int
}

// ChunkerOption 配置 Chunker。
type ChunkerOption func(*Chunker)

// WithChunkSize 设置分块大小。
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithChunkOverlap 设置相邻分块的重叠大小。
func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker 创建一个新的 Chunker。重叠不小于分块大小时退化为无重叠切分。
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = 0
	}
	return c
}

// Split 切分文本。空文本返回空切片。
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var pieces []Piece
	step := c.size - c.overlap
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, Piece{Index: len(pieces), Text: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return pieces
}

// Overlap 返回生效的重叠大小。
func (c *Chunker) Overlap() int { return c.overlap }

// Size 返回生效的分块大小。
func (c *Chunker) Size() int { return c.size }
