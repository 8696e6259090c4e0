package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"subtrans/pkg/contract"
)

// Options: Google Generative Language API (Gemini) 最小必需。
type Options struct {
	BaseURL    string `json:"base_url"`    // 留空使用 SDK 默认 https://generativelanguage.googleapis.com/
	APIVersion string `json:"api_version"` // 默认 v1beta
	Model      string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv  string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey     string `json:"api_key"`
	// 客户端超时（秒）。未设置或 <=0 时采用默认 60 秒。
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.APIVersion == "" {
		o.APIVersion = "v1beta"
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

type Client struct {
	gc    *genai.Client
	model string
	temp  *float32
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("gemini options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrInvalidInput)
	}
	hdr := http.Header{}
	for k, v := range opts.ExtraHeaders {
		if k != "" {
			hdr.Set(k, v)
		}
	}
	gc, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    opts.BaseURL,
			APIVersion: opts.APIVersion,
			Headers:    hdr,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %v: %w", err, contract.ErrInvalidInput)
	}
	c := &Client{gc: gc, model: opts.Model}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		c.temp = &t
	}
	return c, nil
}

// upstreamError 实现 net.Error，用于将 HTTP 上游 5xx/408 映射为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("gemini upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

func textContent(role, s string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: s}}}
}

// encodePrompt: system 消息合并进 SystemInstruction；assistant→model，其余→user。
func (c *Client) encodePrompt(p contract.Prompt) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{Temperature: c.temp}
	switch v := p.(type) {
	case contract.TextPrompt:
		return []*genai.Content{textContent(genai.RoleUser, string(v))}, cfg, nil
	case contract.ChatPrompt:
		contents := make([]*genai.Content, 0, len(v))
		var sys []*genai.Part
		for _, m := range v {
			switch strings.ToLower(strings.TrimSpace(m.Role)) {
			case "system":
				sys = append(sys, &genai.Part{Text: m.Content})
			case "assistant", "model":
				contents = append(contents, textContent(genai.RoleModel, m.Content))
			default:
				contents = append(contents, textContent(genai.RoleUser, m.Content))
			}
		}
		if len(contents) == 0 {
			return nil, nil, contract.ErrInvalidInput
		}
		if len(sys) > 0 {
			cfg.SystemInstruction = &genai.Content{Parts: sys}
		}
		return contents, cfg, nil
	}
	return nil, nil, contract.ErrInvalidInput
}

func (c *Client) Invoke(ctx context.Context, _ contract.Tagged, p contract.Prompt) (contract.Raw, error) {
	contents, cfg, err := c.encodePrompt(p)
	if err != nil {
		return contract.Raw{}, err
	}
	resp, err := c.gc.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Raw{}, ctx.Err()
		}
		return contract.Raw{}, mapError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return contract.Raw{}, contract.ErrResponseInvalid
	}
	// 多个 part 按序拼接
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return contract.Raw{}, contract.ErrResponseInvalid
	}
	return contract.Raw{Text: sb.String()}, nil
}

// mapError: 429 限流；408/5xx 网络类；其余上游状态为输入无效；传输错误原样；无法解析的响应为响应无效。
func mapError(err error) error {
	var ae genai.APIError
	if errors.As(err, &ae) {
		switch {
		case ae.Code == http.StatusTooManyRequests:
			return fmt.Errorf("gemini upstream 429: %s: %w", ae.Message, contract.ErrRateLimited)
		case ae.Code == http.StatusRequestTimeout || ae.Code/100 == 5:
			return upstreamError{status: ae.Code, msg: strings.TrimSpace(ae.Message)}
		}
		return fmt.Errorf("gemini upstream %d: %s: %w", ae.Code, ae.Message, contract.ErrInvalidInput)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return err
	}
	return fmt.Errorf("gemini: %v: %w", err, contract.ErrResponseInvalid)
}

var _ contract.LLMClient = (*Client)(nil)
