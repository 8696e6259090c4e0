package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"subtrans/internal/diag"
	"subtrans/internal/prompt"
	"subtrans/internal/rate"
	"subtrans/pkg/contract"
)

// Document 描述一个已拆分、待翻译的文档。
type Document struct {
	FileID contract.FileID
	Cols   contract.Columns
	Chunks []string
}

// Outcome 是一次文档翻译的结果：按序合并的输出块与合并告警。
type Outcome struct {
	Blocks   []string
	Warnings []contract.MergeMismatchWarning
	Cursor   int
	Resumed  bool
}

// chunkResult 由 worker 产出；Err 非空时为可标记的非致命失败。
type chunkResult struct {
	Index      int
	Translated string
	Chunk      string
	Err        error
}

// orchestrator 持有单个文档的只读上下文；worker 间唯一共享的可变状态是结果集合。
type orchestrator struct {
	comp   Components
	set    Settings
	doc    Document
	logger *diag.Logger
	est    contract.TokenEstimator
}

// Translate 执行单个文档的 格式化 → 后端 → 解析 → 合并。
// 两种模式对同一组后端响应产出字节一致的结果。
func Translate(ctx context.Context, comp Components, set Settings, doc Document, logger *diag.Logger) (Outcome, error) {
	if err := sanity(comp, set); err != nil {
		return Outcome{}, err
	}
	set = set.withDefaults()
	if err := contract.ValidateColumns(doc.Cols); err != nil {
		return Outcome{}, err
	}
	n := len(doc.Chunks)
	start, cursor, resumed, err := resumePoint(set.Resume, doc.FileID, n, doc.Cols.Len())
	if err != nil {
		return Outcome{}, err
	}
	o := &orchestrator{comp: comp, set: set, doc: doc, logger: logger, est: prompt.MakeEstimator(set.BytesPerToken)}
	m := comp.Kind.NewMerger(doc.Cols, cursor)

	if t := diag.GetTerminal(); t != nil {
		t.FileStart(string(doc.FileID), n)
	}

	var blocks []string
	if set.Mode == ModeSequential || set.Concurrency == 1 {
		blocks, err = o.runSequential(ctx, m, start)
	} else {
		blocks, err = o.runConcurrent(ctx, m, start)
	}
	if err != nil {
		return Outcome{}, err
	}
	// 续跑只覆盖剩余分组，不要求游标走完全部条目
	if !resumed {
		if err := m.Finish(); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Blocks: blocks, Warnings: m.Warnings(), Cursor: m.Cursor(), Resumed: resumed}, nil
}

func (o *orchestrator) runSequential(ctx context.Context, m contract.Merger, start int) ([]string, error) {
	blocks := make([]string, 0, len(o.doc.Chunks)-start)
	flagged := 0
	for i := start; i < len(o.doc.Chunks); i++ {
		tr, err := o.translateChunk(ctx, i)
		if err != nil && o.fatal(err) {
			return nil, err
		}
		if err != nil {
			flagged++
		}
		b, err := o.merge(m, chunkResult{Index: i, Translated: tr, Chunk: o.doc.Chunks[i], Err: err})
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
		if t := diag.GetTerminal(); t != nil {
			t.FileProgress(i+1, len(o.doc.Chunks), flagged)
		}
	}
	return blocks, nil
}

func (o *orchestrator) runConcurrent(ctx context.Context, m contract.Merger, start int) ([]string, error) {
	n := len(o.doc.Chunks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.set.Concurrency)

	var mu sync.Mutex
	results := make([]chunkResult, 0, n-start)
	flagged := 0
	for i := start; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			tr, err := o.translateChunk(gctx, i)
			if err != nil && o.fatal(err) {
				return err
			}
			mu.Lock()
			results = append(results, chunkResult{Index: i, Translated: tr, Chunk: o.doc.Chunks[i], Err: err})
			if err != nil {
				flagged++
			}
			done, f := len(results), flagged
			mu.Unlock()
			if t := diag.GetTerminal(); t != nil {
				t.FileProgress(start+done, n, f)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		b, err := o.merge(m, r)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// fatal 按策略判定分组失败是否终止整个文档。
func (o *orchestrator) fatal(err error) bool {
	var nt *contract.NoTranslationFoundError
	if errors.As(err, &nt) {
		return o.set.FatalNoTranslation
	}
	var be *contract.BackendError
	if errors.As(err, &be) {
		return !o.set.SkipFailed
	}
	return true
}

// merge 由单一消费者按分组顺序调用；失败分组以原文标记。
func (o *orchestrator) merge(m contract.Merger, r chunkResult) (string, error) {
	before := len(m.Warnings())
	var (
		block string
		err   error
	)
	switch {
	case r.Err == nil:
		block, err = m.Combine(r.Chunk, r.Translated)
	case errors.Is(r.Err, contract.ErrNoTranslation):
		block, err = m.Flag(r.Chunk, "no translation found")
	default:
		block, err = m.Flag(r.Chunk, r.Err.Error())
	}
	if err != nil {
		o.logger.ErrorWith("merger", string(diag.Classify(err)), "merge failed", nil, string(o.doc.FileID), o.span(r.Index))
		diag.IncError("merger", string(diag.Classify(err)))
		return "", err
	}
	for _, w := range m.Warnings()[before:] {
		code := string(diag.CodeMismatch)
		if w.Reason != "" {
			code = "flagged"
		}
		o.logger.Warn("merger", code, w.String(), string(o.doc.FileID), map[string]string{
			"from":             strconv.Itoa(w.From),
			"to":               strconv.Itoa(w.To),
			"source_lines":     strconv.Itoa(w.SourceLines),
			"translated_lines": strconv.Itoa(w.TranslatedLines),
		})
		diag.IncOp("merger", "merge", "flagged")
	}
	if o.set.OnCommit != nil {
		o.set.OnCommit(Checkpoint{FileID: o.doc.FileID, ChunkIndex: r.Index, ChunkCount: len(o.doc.Chunks), Cursor: m.Cursor()})
	}
	return block, nil
}

// span 返回分组覆盖的条目区间文本（日志 chunk 字段），如 "21-40"。
func (o *orchestrator) span(i int) string {
	from, to := contract.ChunkSpan(i, o.set.GroupSize, o.doc.Cols.Len())
	return fmt.Sprintf("%d-%d", from, to)
}

// translateChunk: 格式化 → 构建提示 → (闸门) → 后端（带重试） → 解析。
// 返回的错误已带上条目区间。
func (o *orchestrator) translateChunk(ctx context.Context, i int) (string, error) {
	fid := string(o.doc.FileID)
	chunkID := o.span(i)
	from, to := contract.ChunkSpan(i, o.set.GroupSize, o.doc.Cols.Len())

	tagged, err := o.comp.Formatter.Format(i, o.doc.Chunks)
	if err != nil {
		return "", err
	}
	p, err := o.comp.PromptBuilder.Build(ctx, tagged)
	if err != nil {
		o.logger.ErrorWith("prompt_builder", string(diag.Classify(err)), "build failed", nil, fid, chunkID)
		return "", fmt.Errorf("entries %d-%d: build prompt: %w", from, to, err)
	}
	tokens := prompt.RequestTokens(o.comp.PromptBuilder, o.est, tagged, 0)
	if o.set.MaxTokens > 0 && tokens > o.set.MaxTokens {
		return "", fmt.Errorf("entries %d-%d: estimated %d tokens > max_tokens %d: %w", from, to, tokens, o.set.MaxTokens, contract.ErrBudgetExceeded)
	}

	attempts := o.set.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if o.set.Gate != nil {
			if err := o.set.Gate.Wait(ctx, rate.Ask{Key: o.set.GateKey, Requests: 1, Tokens: tokens}); err != nil {
				o.logger.ErrorWith("gate", string(diag.Classify(err)), "wait failed", nil, fid, chunkID)
				diag.IncError("gate", string(diag.Classify(err)))
				// Gate 错误不重试（通常为取消或超出单请求上限）
				return "", fmt.Errorf("entries %d-%d: rate gate: %w", from, to, err)
			}
		}
		timer := o.logger.StartWith("llm_client", "invoke", fid, chunkID)
		t0 := time.Now()
		raw, err := o.comp.LLM.Invoke(ctx, tagged, p)
		diag.ObserveDuration("llm_client", "invoke", time.Since(t0).Milliseconds())
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			o.logInvokeError(err, fid, chunkID, attempt)
			lastErr = err
			if attempt+1 < attempts && diag.Retryable(err) {
				if serr := sleepWithCtx(ctx, o.set.RetryBackoff<<attempt); serr != nil {
					return "", serr
				}
				continue
			}
			break
		}
		timer.Finish("invoke", int64(tokens))
		diag.IncOp("llm_client", "invoke", "success")

		out, err := o.comp.Decoder.Decode(ctx, raw)
		if err != nil {
			var nt *contract.NoTranslationFoundError
			if errors.As(err, &nt) {
				diag.IncError("decoder", string(diag.CodeNoTranslate))
				return "", &contract.NoTranslationFoundError{From: from, To: to}
			}
			o.logger.ErrorWith("decoder", string(diag.Classify(err)), "decode failed", nil, fid, chunkID)
			return "", fmt.Errorf("entries %d-%d: decode: %w", from, to, err)
		}
		diag.IncOp("decoder", "decode", "success")
		return out, nil
	}
	diag.IncOp("llm_client", "invoke", "error")
	return "", &contract.BackendError{From: from, To: to, Err: lastErr}
}

func (o *orchestrator) logInvokeError(err error, fid, chunkID string, attempt int) {
	code := string(diag.Classify(err))
	kv := map[string]string{"attempt": strconv.Itoa(attempt + 1)}
	// 若为上游 HTTP 错误，附带状态码/消息
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		kv["http_status"] = strconv.Itoa(ue.UpstreamStatus())
		if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
			if len(m) > 200 {
				m = m[:200]
			}
			kv["upstream_msg"] = m
		}
	}
	o.logger.ErrorWithKV("llm_client", code, "invoke failed", nil, fid, chunkID, kv)
	diag.IncError("llm_client", code)
}

// sleepWithCtx: 可取消的 sleep。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
