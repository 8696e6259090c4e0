package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtrans/pkg/contract"
)

func noTmp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteAtomicReplaceExisting 原子写入，目标已存在时替换
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, v := range []string{"v1", "v2"} {
		if err := w.Write(context.Background(), "movies/a_zh.srt", bytes.NewBufferString(v)); err != nil {
			t.Fatalf("write %s: %v", v, err)
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, "a_zh.srt"))
	if err != nil || string(b) != "v2" {
		t.Fatalf("flat 输出应替换为 v2: %v %q", err, b)
	}
	noTmp(t, dir)
}

// TestWriteBeside 未配置输出目录时写在输入旁边
func TestWriteBeside(t *testing.T) {
	dir := t.TempDir()
	w, err := New(nil)
	if err != nil || w.Layout() != LayoutBeside {
		t.Fatalf("default layout: %v %s", err, w.Layout())
	}
	id := contract.OutputName(contract.NormalizeFileID(filepath.Join(dir, "ep1.srt")), "zh")
	if err := w.Write(context.Background(), id, strings.NewReader("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ep1_zh.srt")); err != nil {
		t.Fatalf("file not beside input: %v", err)
	}
}

// TestWriteTree 保留目录层级（非原子写）
func TestWriteTree(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, _ := New(&Options{OutputDir: dir, Layout: LayoutTree, Atomic: &a})
	if err := w.Write(context.Background(), "sub/out.srt", bytes.NewBufferString("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "out.srt")); err != nil {
		t.Fatalf("file not created")
	}
	if err := w.Write(context.Background(), "../bad", bytes.NewBufferString("x")); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
}

// TestWriteNoClobber 拒绝覆盖
func TestWriteNoClobber(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir, NoClobber: true})
	if err := w.Write(context.Background(), "a.srt", strings.NewReader("1")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.Write(context.Background(), "a.srt", strings.NewReader("2")); !errors.Is(err, os.ErrExist) {
		t.Fatalf("want exist, got %v", err)
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.srt", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

// TestNewInvalid 布局与目录不匹配
func TestNewInvalid(t *testing.T) {
	if _, err := New(&Options{Layout: LayoutTree}); err == nil {
		t.Fatalf("tree 需要 output_dir")
	}
	if _, err := New(&Options{OutputDir: "x", Layout: "spiral"}); err == nil {
		t.Fatalf("未知布局应报错")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 原子写入时拷贝失败不留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.srt", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

// TestReaderWithCtxCancel reader 在读取前取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	if _, err := r.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect ctx error")
	}
}
