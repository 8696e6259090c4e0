package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"subtrans/pkg/contract"
)

// Options: 最小必需配置。兼容任何 OpenAI Chat Completions 协议的服务（如 Groq/OpenRouter）。
type Options struct {
	BaseURL        string   `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string   `json:"model"`           // 为空则使用默认
	APIKeyEnv      string   `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string   `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int      `json:"timeout_seconds"` // 单次请求超时（秒）
	Temperature    *float64 `json:"temperature,omitempty"`
	// ExtraHeaders: 追加/覆盖请求头（用于 OpenAI 兼容服务）
	ExtraHeaders map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

type Client struct {
	sdk   oa.Client
	model string
	temp  *float64
}

// New 从原样 JSON 选项构造客户端。SDK 自身的重试关闭，由编排层统一重试。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidInput)
	}
	ro := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(opts.BaseURL),
		option.WithRequestTimeout(time.Duration(opts.TimeoutSeconds) * time.Second),
		option.WithMaxRetries(0),
	}
	for k, v := range opts.ExtraHeaders {
		if k != "" {
			ro = append(ro, option.WithHeader(k, v))
		}
	}
	return &Client{sdk: oa.NewClient(ro...), model: opts.Model, temp: opts.Temperature}, nil
}

// upstreamError 实现 net.Error，用于将 HTTP 上游 5xx/408 映射为网络类错误，便于分类。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

func messages(p contract.Prompt) ([]oa.ChatCompletionMessageParamUnion, error) {
	switch v := p.(type) {
	case contract.TextPrompt:
		return []oa.ChatCompletionMessageParamUnion{oa.UserMessage(string(v))}, nil
	case contract.ChatPrompt:
		out := make([]oa.ChatCompletionMessageParamUnion, 0, len(v))
		for _, m := range v {
			switch strings.ToLower(strings.TrimSpace(m.Role)) {
			case "system":
				out = append(out, oa.SystemMessage(m.Content))
			case "assistant":
				out = append(out, oa.AssistantMessage(m.Content))
			default:
				out = append(out, oa.UserMessage(m.Content))
			}
		}
		if len(out) == 0 {
			return nil, contract.ErrInvalidInput
		}
		return out, nil
	default:
		return nil, contract.ErrInvalidInput
	}
}

// Invoke: 单次调用，同步返回。
func (c *Client) Invoke(ctx context.Context, _ contract.Tagged, p contract.Prompt) (contract.Raw, error) {
	msgs, err := messages(p)
	if err != nil {
		return contract.Raw{}, fmt.Errorf("encode: %w", err)
	}
	params := oa.ChatCompletionNewParams{
		Messages: msgs,
		Model:    oa.ChatModel(c.model),
	}
	if c.temp != nil {
		params.Temperature = oa.Float(*c.temp)
	}
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return contract.Raw{}, classify(ctx, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return contract.Raw{}, contract.ErrResponseInvalid
	}
	return contract.Raw{Text: resp.Choices[0].Message.Content}, nil
}

// classify 将 SDK 错误映射为最小错误分类：429→限流；5xx/408→网络类；其余 4xx→输入无效。
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *oa.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	st := apiErr.StatusCode
	switch {
	case st == http.StatusTooManyRequests:
		return contract.ErrRateLimited
	case st == http.StatusRequestTimeout || st/100 == 5:
		return upstreamError{status: st, msg: strings.TrimSpace(apiErr.Message)}
	default:
		return fmt.Errorf("openai upstream %d: %w", st, contract.ErrInvalidInput)
	}
}

var _ contract.LLMClient = (*Client)(nil)
