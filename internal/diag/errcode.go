package diag

import (
	"context"
	"errors"
	"net"
	"os"

	"subtrans/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown     Code = "unknown"
	CodeNetwork     Code = "network"
	CodeProtocol    Code = "protocol"
	CodeInvariant   Code = "invariant"
	CodeBudget      Code = "budget"
	CodeCancel      Code = "cancel"
	CodeIO          Code = "io"
	CodeInput       Code = "input"
	CodeBackend     Code = "backend"
	CodeNoTranslate Code = "no_translation"
	CodeMismatch    Code = "mismatch"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
// BackendError 同时携带底层原因时以底层原因为准（network/budget），便于重试判定。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrBudgetExceeded) || errors.Is(err, contract.ErrRateLimited) {
		return CodeBudget
	}
	if errors.Is(err, contract.ErrNoTranslation) {
		return CodeNoTranslate
	}
	if errors.Is(err, contract.ErrResponseInvalid) {
		return CodeProtocol
	}
	// 输入数据问题（缺文本、空输入、格式错误）
	if errors.Is(err, contract.ErrMissingText) ||
		errors.Is(err, contract.ErrEmptyInput) ||
		errors.Is(err, contract.ErrInvalidInput) {
		return CodeInput
	}
	// 内部不变量（含游标/下标越界）
	if errors.Is(err, contract.ErrInvariantViolation) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	if errors.Is(err, contract.ErrBackend) {
		return CodeBackend
	}
	return CodeUnknown
}

// Retryable 判定一次后端调用失败是否值得重试：限流与网络/上游 5xx。
func Retryable(err error) bool {
	switch Classify(err) {
	case CodeBudget, CodeNetwork:
		// 超出单请求上限的预算错误重试无意义
		return !errors.Is(err, contract.ErrBudgetExceeded)
	case CodeUnknown, CodeBackend:
		return true
	}
	return false
}
