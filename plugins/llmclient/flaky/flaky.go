package flaky

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"

	"subtrans/pkg/contract"
	"subtrans/plugins/llmclient/mock"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// FailTimes: 前 N 次调用失败，默认 2。
	FailTimes int `json:"fail_times,omitempty"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 是带状态的 LLM 实现：
// 奇数次失败返回 ErrRateLimited，偶数次失败返回超时类网络错误；
// 失败次数用尽后返回四轮占位翻译。
type Client struct {
	prefix    string
	failTimes int32
	logPath   string
	count     atomic.Int32
}

// New 构造 Client。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	if o.FailTimes <= 0 {
		o.FailTimes = 2
	}
	return &Client{prefix: o.Prefix, failTimes: int32(o.FailTimes), logPath: o.LogPath}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// timeoutError 模拟上游超时（实现 net.Error）。
type timeoutError struct{}

func (timeoutError) Error() string   { return "flaky: upstream timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// Calls 返回已发生的调用次数。
func (c *Client) Calls() int { return int(c.count.Load()) }

// Invoke 实现 contract.LLMClient。
func (c *Client) Invoke(ctx context.Context, t contract.Tagged, p contract.Prompt) (contract.Raw, error) {
	n := c.count.Add(1)
	if n <= c.failTimes {
		if n%2 == 1 {
			c.log("rate_limited")
			return contract.Raw{}, contract.ErrRateLimited
		}
		c.log("timeout")
		return contract.Raw{}, timeoutError{}
	}
	c.log("ok")
	return contract.Raw{Text: "[Refined]\n" + contract.Fence + "\n" + mock.Prefixed(c.prefix, t.Chunk) + "\n" + contract.Fence}, nil
}

var _ contract.LLMClient = (*Client)(nil)
