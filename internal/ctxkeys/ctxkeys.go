// Package ctxkeys 定义跨 HTTP 中间件、handler 与日志共享的 context 键。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	subjectKey   contextKey = "subject"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func getString(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return getString(ctx, requestIDKey)
}

// WithRunID 设置工作流运行 ID
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunID 获取工作流运行 ID
func RunID(ctx context.Context) (string, bool) {
	return getString(ctx, runIDKey)
}

// WithSubject 设置认证主体（API key 前缀或 JWT sub）
func WithSubject(ctx context.Context, subject string) context.Context {
	return withString(ctx, subjectKey, subject)
}

// Subject 获取认证主体
func Subject(ctx context.Context) (string, bool) {
	return getString(ctx, subjectKey)
}
