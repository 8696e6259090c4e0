package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"subtrans/pkg/contract"
)

const okBody = `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + "```\\nA<T>B\\n```" + `"}}]}`

func newClient(t *testing.T, url string) contract.LLMClient {
	t.Helper()
	raw, _ := json.Marshal(Options{BaseURL: url, APIKey: "k", Model: "m", ExtraHeaders: map[string]string{"X-Test": "1"}})
	c, err := New(raw)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

// TestInvokeSuccess 正常调用，校验请求体与头
func TestInvokeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" || r.Header.Get("X-Test") != "1" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		b, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.Unmarshal(b, &req)
		if req.Model != "m" || len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "u" {
			t.Errorf("unexpected body %s", b)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	}))
	defer srv.Close()
	c := newClient(t, srv.URL)
	raw, err := c.Invoke(context.Background(), contract.Tagged{}, contract.ChatPrompt{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if raw.Text != "```\nA<T>B\n```" {
		t.Fatalf("unexpected raw %q", raw.Text)
	}
}

// TestInvokeStatusMapping 上游状态码映射
func TestInvokeStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, contract.ErrRateLimited) }},
		{http.StatusBadGateway, func(err error) bool {
			var ne net.Error
			var ue contract.UpstreamError
			return errors.As(err, &ne) && errors.As(err, &ue) && ue.UpstreamStatus() == http.StatusBadGateway
		}},
		{http.StatusUnauthorized, func(err error) bool { return errors.Is(err, contract.ErrInvalidInput) }},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			io.WriteString(w, `{"error":{"message":"boom","type":"x"}}`)
		}))
		c := newClient(t, srv.URL)
		_, err := c.Invoke(context.Background(), contract.Tagged{}, contract.TextPrompt("hi"))
		srv.Close()
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected err %v", tc.status, err)
		}
	}
}

// TestInvokeEmptyChoices 空响应视为无效
func TestInvokeEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer srv.Close()
	_, err := newClient(t, srv.URL).Invoke(context.Background(), contract.Tagged{}, contract.TextPrompt("hi"))
	if !errors.Is(err, contract.ErrResponseInvalid) {
		t.Fatalf("want response invalid, got %v", err)
	}
}

// TestInvokeBadPrompt 不支持的 Prompt 类型
func TestInvokeBadPrompt(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")
	if _, err := c.Invoke(context.Background(), contract.Tagged{}, 42); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
}

// TestNewMissingKey 缺少密钥
func TestNewMissingKey(t *testing.T) {
	t.Setenv("SUBTRANS_TEST_NO_KEY", "")
	if _, err := New(json.RawMessage(`{"api_key_env":"SUBTRANS_TEST_NO_KEY"}`)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
}
