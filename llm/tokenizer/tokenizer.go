// Package tokenizer 提供本地 token 计数：OpenAI 系列模型使用 tiktoken，
// 其他模型或编码数据不可用时退回基于字符的估算。
package tokenizer

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// 模型前缀到 tiktoken 编码的映射，按最长前缀优先匹配。
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o-mini", tiktoken.MODEL_O200K_BASE},
	{"gpt-4o", tiktoken.MODEL_O200K_BASE},
	{"gpt-4", tiktoken.MODEL_CL100K_BASE},
	{"gpt-3.5", tiktoken.MODEL_CL100K_BASE},
}

// Counter 统计文本 token 数，实现 llm.TokenEstimator。并发安全。
type Counter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
	failed   map[string]bool
	offline  bool
	logger   *zap.Logger
}

// Option configures a Counter.
type Option func(*Counter)

// WithEstimatorOnly disables tiktoken, which may fetch encoding data on first use.
func WithEstimatorOnly() Option {
	return func(c *Counter) { c.offline = true }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Counter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCounter(opts ...Option) *Counter {
	c := &Counter{
		encoders: make(map[string]*tiktoken.Tiktoken),
		failed:   make(map[string]bool),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EncodingFor returns the tiktoken encoding for model, or "" for non-OpenAI models.
func EncodingFor(model string) string {
	model = strings.ToLower(model)
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			return m.encoding
		}
	}
	return ""
}

// CountTokens returns the token count of text for model.
func (c *Counter) CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoder(EncodingFor(model)); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

func (c *Counter) encoder(encoding string) *tiktoken.Tiktoken {
	if encoding == "" || c.offline {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[encoding]; ok {
		return enc
	}
	if c.failed[encoding] {
		return nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		c.failed[encoding] = true
		c.logger.Warn("tiktoken encoding unavailable, falling back to estimate",
			zap.String("encoding", encoding), zap.Error(err))
		return nil
	}
	c.encoders[encoding] = enc
	return enc
}

// Estimate 基于字符数估算：CJK 约 1.5 字符/token，其余约 4 字符/token。
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 {
		n = 1
	}
	return n
}
