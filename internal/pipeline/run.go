package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"subtrans/internal/diag"
	"subtrans/pkg/contract"
)

// Report 汇总一次 Run 的文件级结果。
type Report struct {
	Files    int
	Skipped  int
	Warnings []FileWarning
}

// FileWarning 为带文件标识的合并告警。
type FileWarning struct {
	FileID contract.FileID
	contract.MergeMismatchWarning
}

// Prepare 解析单个输入并拆分为待翻译文档：Source → Kind.Extract → Kind.Split。
func Prepare(ctx context.Context, comp Components, set Settings, fileID contract.FileID, r io.Reader, logger *diag.Logger) (Document, error) {
	if comp.Source == nil || comp.Kind == nil {
		return Document{}, errors.New("pipeline: missing components")
	}
	set = set.withDefaults()
	timer := logger.StartWith("source", "parse", string(fileID), "")
	entries, err := comp.Source.Parse(ctx, fileID, r)
	if err != nil {
		if !errors.Is(err, contract.ErrSkipFile) {
			logger.ErrorWith("source", string(diag.Classify(err)), "parse failed", nil, string(fileID), "")
			diag.IncError("source", string(diag.Classify(err)))
		}
		return Document{}, err
	}
	timer.Finish("parse", int64(len(entries)))
	cols, err := comp.Kind.Extract(entries)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", fileID, err)
	}
	chunks, err := comp.Kind.Split(cols.Texts, set.GroupSize)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", fileID, err)
	}
	return Document{FileID: fileID, Cols: cols, Chunks: chunks}, nil
}

// TranslateReader 翻译单个文档并返回完整输出（serve 模式与 STDIN 使用）。
func TranslateReader(ctx context.Context, comp Components, set Settings, fileID contract.FileID, r io.Reader, logger *diag.Logger) (io.Reader, Outcome, error) {
	doc, err := Prepare(ctx, comp, set, fileID, r, logger)
	if err != nil {
		return nil, Outcome{}, err
	}
	out, err := Translate(ctx, comp, set, doc, logger)
	if err != nil {
		return nil, Outcome{}, err
	}
	return comp.Kind.Assemble(out.Blocks), out, nil
}

// Run 执行完整流水线：Reader → Source → Kind → (Formatter → Gate → LLM → Decoder)* → Merger → Writer。
// 每个文件独立翻译，成功后才写出，失败的文件不产生部分输出。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	if comp.Reader == nil || comp.Writer == nil {
		return Report{}, errors.New("pipeline: missing components")
	}
	if err := sanity(comp, set); err != nil {
		return Report{}, fmt.Errorf("sanity: %w", err)
	}
	var rep Report
	rtimer := logger.StartWith("reader", "iterate", "", "")
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		start := time.Now()
		doc, err := Prepare(ctx, comp, set, fid, rc, logger)
		if errors.Is(err, contract.ErrSkipFile) {
			logger.DebugStart("source", "skip", string(fid), "", nil)
			rep.Skipped++
			return nil
		}
		if err != nil {
			return err
		}
		ok := false
		defer func() {
			if t := diag.GetTerminal(); t != nil {
				t.FileFinish(ok, time.Since(start))
			}
		}()
		out, err := Translate(ctx, comp, set, doc, logger)
		if err != nil {
			logger.ErrorWith("pipeline", string(diag.Classify(err)), "translate failed", &start, string(fid), "")
			diag.IncOp("pipeline", "file", "error")
			return err
		}
		if err := writeOutput(ctx, comp, set, fid, comp.Kind.Assemble(out.Blocks), logger); err != nil {
			return err
		}
		for _, w := range out.Warnings {
			rep.Warnings = append(rep.Warnings, FileWarning{FileID: fid, MergeMismatchWarning: w})
		}
		rep.Files++
		ok = true
		diag.IncOp("pipeline", "file", "success")
		diag.ObserveDuration("pipeline", "file", time.Since(start).Milliseconds())
		logger.InfoFinish("pipeline", "file done", start, int64(doc.Cols.Len()))
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(rep.Files))
	return rep, nil
}

func writeOutput(ctx context.Context, comp Components, set Settings, fid contract.FileID, r io.Reader, logger *diag.Logger) error {
	if fid == "stdin" && set.Stdout != nil {
		_, err := io.Copy(set.Stdout, r)
		return err
	}
	id := contract.OutputName(fid, set.TargetLanguage)
	wtimer := logger.StartWith("writer", "write", string(id), "")
	if err := comp.Writer.Write(ctx, id, r); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write failed", nil, string(id), "")
		diag.IncError("writer", string(code))
		return fmt.Errorf("writer write: %w", err)
	}
	wtimer.Finish("write", 1)
	return nil
}
