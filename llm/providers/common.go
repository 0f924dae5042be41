package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/experimentkit/internal/tlsutil"
	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/types"
)

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultTimeout matches the per-request timeout of the LLM client.
const DefaultTimeout = 60 * time.Second

// NewHTTPClient returns an http.Client with the given timeout (DefaultTimeout if zero).
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return tlsutil.SecureHTTPClient(timeout)
}

// Endpoint joins a base URL and a path.
func Endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error.Message != "" {
			if errResp.Error.Type != "" {
				return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
			}
			return errResp.Error.Message
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// PostJSON marshals body, POSTs it to url with the given headers and decodes
// a 2xx response into out. Non-2xx responses and transport failures come back
// as *llm.Error classified for retry.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, provider string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "failed to marshal request").WithCause(err).WithProvider(provider)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "failed to create request").WithCause(err).WithProvider(provider)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(client, req, out, provider)
}

// GetJSON performs an authenticated GET, used by health checks.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any, provider string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "failed to create request").WithCause(err).WithProvider(provider)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(client, req, out, provider)
}

func do(client *http.Client, req *http.Request, out any, provider string) error {
	resp, err := client.Do(req)
	if err != nil {
		return llm.MapTransportError(err, provider)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return llm.MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), provider)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return llm.NewError(types.ErrUpstreamError, "failed to decode response", provider).WithCause(err)
	}
	return nil
}
