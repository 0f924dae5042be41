package retry

import "context"

// DoWithResultTyped 是 Retryer.DoWithResult 的泛型版本，省去调用方的类型断言。
//
//	resp, err := retry.DoWithResultTyped(r, ctx, func() (*llm.ChatResponse, error) {
//	    return p.Completion(ctx, chat)
//	})
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
