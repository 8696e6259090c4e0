package diag

import (
	"fmt"
	"sync"
)

// 最小指标集（进程内计数，serve 模式经 /metrics 以 JSON 导出）：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms_sum{comp,stage} / op_duration_ms_count{comp,stage}

// Metrics 为并发安全的计数器集合。
type Metrics struct {
	mu     sync.Mutex
	ops    map[[3]string]int64
	errs   map[[2]string]int64
	durSum map[[2]string]int64
	durCnt map[[2]string]int64
}

// NewMetrics 创建空计数器集合。
func NewMetrics() *Metrics {
	return &Metrics{
		ops:    make(map[[3]string]int64),
		errs:   make(map[[2]string]int64),
		durSum: make(map[[2]string]int64),
		durCnt: make(map[[2]string]int64),
	}
}

// Default 为包级函数使用的集合。
var Default = NewMetrics()

// IncOp 累加操作计数（result=success|error|flagged）。
func IncOp(comp, stage, result string) { Default.IncOp(comp, stage, result) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { Default.IncError(comp, code) }

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) { Default.ObserveDuration(comp, stage, durMS) }

func (m *Metrics) IncOp(comp, stage, result string) {
	m.mu.Lock()
	m.ops[[3]string{comp, stage, result}]++
	m.mu.Unlock()
}

func (m *Metrics) IncError(comp, code string) {
	m.mu.Lock()
	m.errs[[2]string{comp, code}]++
	m.mu.Unlock()
}

func (m *Metrics) ObserveDuration(comp, stage string, durMS int64) {
	m.mu.Lock()
	k := [2]string{comp, stage}
	m.durSum[k] += durMS
	m.durCnt[k]++
	m.mu.Unlock()
}

// Op 返回单个 op_total 计数（测试与诊断用）。
func (m *Metrics) Op(comp, stage, result string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops[[3]string{comp, stage, result}]
}

// Errors 返回单个 error_total 计数。
func (m *Metrics) Errors(comp, code string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[[2]string{comp, code}]
}

// Snapshot 返回全部计数的拷贝，键为 Prometheus 风格的 name{labels}。
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.ops)+len(m.errs)+2*len(m.durSum))
	for k, v := range m.ops {
		out[fmt.Sprintf("op_total{comp=%q,stage=%q,result=%q}", k[0], k[1], k[2])] = v
	}
	for k, v := range m.errs {
		out[fmt.Sprintf("error_total{comp=%q,code=%q}", k[0], k[1])] = v
	}
	for k, v := range m.durSum {
		out[fmt.Sprintf("op_duration_ms_sum{comp=%q,stage=%q}", k[0], k[1])] = v
		out[fmt.Sprintf("op_duration_ms_count{comp=%q,stage=%q}", k[0], k[1])] = m.durCnt[k]
	}
	return out
}

// Snapshot 返回 Default 集合的拷贝。
func Snapshot() map[string]int64 { return Default.Snapshot() }
