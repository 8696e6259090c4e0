package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"subtrans/pkg/contract"
)

// LimitKey: 限流分组键（例如 provider 名称 + key 摘要）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int // requests per minute
	TPM             int // tokens per minute
	MaxTokensPerReq int // 单次请求 token 上限（含输入+预期输出），0 表示不限制
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
	Tokens   int // 预计 token（>=0）
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；违反单请求上限时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false 且不消耗额度。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (rpmAvail, tpmAvail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
// 每个维度是一只令牌桶：容量为每分钟额度，按额度/60 每秒匀速回填。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	lim Limits
	req *xrate.Limiter // nil 表示 RPM 维度关闭
	tok *xrate.Limiter // nil 表示 TPM 维度关闭
}

func perMinute(n int) *xrate.Limiter {
	if n <= 0 {
		return nil
	}
	return xrate.NewLimiter(xrate.Limit(float64(n)/60.0), n)
}

func newEntry(lim Limits) *entry {
	return &entry{lim: lim, req: perMinute(lim.RPM), tok: perMinute(lim.TPM)}
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 视为不限额
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

// check 校验申请本身是否可能被满足；超过桶容量的申请永远等不到，直接失败。
func (e *entry) check(a Ask) error {
	if a.Requests <= 0 || a.Tokens < 0 {
		return contract.ErrInvalidInput
	}
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return fmt.Errorf("rate: %d tokens > max_tokens_per_req %d: %w", a.Tokens, e.lim.MaxTokensPerReq, contract.ErrInvalidInput)
	}
	if e.req != nil && a.Requests > e.lim.RPM {
		return fmt.Errorf("rate: %d requests > rpm %d: %w", a.Requests, e.lim.RPM, contract.ErrBudgetExceeded)
	}
	if e.tok != nil && a.Tokens > e.lim.TPM {
		return fmt.Errorf("rate: %d tokens > tpm %d: %w", a.Tokens, e.lim.TPM, contract.ErrBudgetExceeded)
	}
	return nil
}

// reservation 组合两个维度的预约。
type reservation struct {
	rs []*xrate.Reservation
}

func (e *entry) reserve(now time.Time, a Ask) reservation {
	var r reservation
	if e.req != nil {
		r.rs = append(r.rs, e.req.ReserveN(now, a.Requests))
	}
	if e.tok != nil && a.Tokens > 0 {
		r.rs = append(r.rs, e.tok.ReserveN(now, a.Tokens))
	}
	return r
}

func (r reservation) delay(now time.Time) time.Duration {
	var d time.Duration
	for _, x := range r.rs {
		if v := x.DelayFrom(now); v > d {
			d = v
		}
	}
	return d
}

func (r reservation) cancel(now time.Time) {
	for _, x := range r.rs {
		x.CancelAt(now)
	}
}

func (g *gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if e.check(a) != nil {
		return false
	}
	now := g.clk()
	r := e.reserve(now, a)
	if r.delay(now) > 0 {
		r.cancel(now)
		return false
	}
	return true
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if err := e.check(a); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := g.clk()
	r := e.reserve(now, a)
	d := r.delay(now)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		// 归还未使用的预约，避免挤占后续请求
		r.cancel(g.clk())
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot: 返回当前可用请求/令牌的向下取整估值（仅诊断）。
func (g *gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	if e.req != nil {
		rpmAvail = clampAvail(e.req.TokensAt(now), e.lim.RPM)
	}
	if e.tok != nil {
		tpmAvail = clampAvail(e.tok.TokensAt(now), e.lim.TPM)
	}
	return
}

func clampAvail(v float64, capacity int) int {
	switch {
	case v < 0:
		return 0
	case v > float64(capacity):
		return capacity
	}
	return int(v)
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
