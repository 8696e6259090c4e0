package prompt

import "subtrans/pkg/contract"

// DefaultOutputFactor: 预期输出 token 相对目标分组的倍数（四轮稿各一份）。
const DefaultOutputFactor = 4

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// EffectiveMaxTokens 计算预扣“固定提示开销”后的有效预算。
// 返回 (effectiveMax, overheadTokens)。若 maxTokens<=0，返回 (0,0)。
func EffectiveMaxTokens(pb contract.PromptBuilder, bytesPerToken int, maxTokens int) (int, int) {
	if maxTokens <= 0 {
		return 0, 0
	}
	overhead := pb.EstimateOverheadTokens(MakeEstimator(bytesPerToken))
	return maxTokens - overhead, overhead
}

// RequestTokens 估算一次分组请求的总 token：
// 模板开销 + 全文上下文 + 目标分组 + 预期输出（outputFactor 份目标分组，<=0 取默认）。
// 结果用于限流闸门的 TPM 申请；全文随每个分组重复发送，长文件的 TPM 消耗以此为主。
func RequestTokens(pb contract.PromptBuilder, est contract.TokenEstimator, t contract.Tagged, outputFactor int) int {
	if est == nil {
		est = MakeEstimator(0)
	}
	if outputFactor <= 0 {
		outputFactor = DefaultOutputFactor
	}
	n := est(t.Text) + est(t.Chunk)*(1+outputFactor)
	if pb != nil {
		n += pb.EstimateOverheadTokens(est)
	}
	return n
}
