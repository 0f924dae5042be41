package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/llm"
)

// CompletionStore 以 Redis 存储 LLM 补全结果，实现 llm.CompletionCache
type CompletionStore struct {
	m   *Manager
	ttl time.Duration
}

var _ llm.CompletionCache = (*CompletionStore)(nil)

// NewCompletionStore 创建补全缓存，ttl 为 0 时使用 Manager 的默认过期时间
func NewCompletionStore(m *Manager, ttl time.Duration) *CompletionStore {
	return &CompletionStore{m: m, ttl: ttl}
}

// GetCompletion 未命中或值无法解析时返回 (nil, nil)
func (s *CompletionStore) GetCompletion(ctx context.Context, key string) (*llm.ChatResponse, error) {
	var resp llm.ChatResponse
	err := s.m.GetJSON(ctx, key, &resp)
	switch {
	case err == nil:
		return &resp, nil
	case IsCacheMiss(err):
		return nil, nil
	default:
		// 键存在但值无法解析：删除后按未命中处理
		if n, existsErr := s.m.Exists(ctx, key); existsErr == nil && n > 0 {
			s.m.logger.Warn("discarding undecodable completion", zap.String("key", key), zap.Error(err))
			if delErr := s.Invalidate(ctx, key); delErr != nil {
				s.m.logger.Warn("failed to drop undecodable completion", zap.String("key", key), zap.Error(delErr))
			}
			return nil, nil
		}
		return nil, err
	}
}

// Invalidate 删除指定的补全缓存
func (s *CompletionStore) Invalidate(ctx context.Context, keys ...string) error {
	return s.m.Delete(ctx, keys...)
}

// SetCompletion 写入补全结果
func (s *CompletionStore) SetCompletion(ctx context.Context, key string, resp *llm.ChatResponse) error {
	if resp == nil {
		return nil
	}
	return s.m.SetJSON(ctx, key, resp, s.ttl)
}
