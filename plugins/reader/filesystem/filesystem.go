package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"subtrans/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 在扫描目录时跳过这些目录名（基名完全匹配，大小写不敏感）。
	// 仅影响目录递归，不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Exts: 目录扫描时只交付这些扩展名的文件（如 [".srt"]）；为空表示全部交付，由 Source 判定是否跳过。
	Exts []string `json:"exts"`
	// SkipHidden: 目录扫描时跳过以 "." 开头的文件与目录。
	SkipHidden bool `json:"skip_hidden"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	exts       map[string]struct{}
	skipHidden bool
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.BufSize <= 0 {
		o.BufSize = 64 * 1024
	}
	return &FileSystem{
		bufSize:    o.BufSize,
		excludeDir: lowerSet(o.ExcludeDirNames),
		exts:       lowerSet(o.Exts),
		skipHidden: o.SkipHidden,
	}
}

func lowerSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		if x != "" {
			m[strings.ToLower(x)] = struct{}{}
		}
	}
	return m
}

// Iterate 遍历 roots，按稳定顺序（字典序）对每个常规文件调用 yield。
// roots 为空或仅包含 "-" 时读取 STDIN，FileID 固定为 "stdin"。
// yield 返回错误时由本函数负责关闭 rc。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return r.emit(yield, "stdin", os.Stdin)
	}
	for _, s := range roots {
		if s == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}
	for _, root := range roots {
		if err := r.iterateRoot(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

// iterateRoot: 单文件 root 不做扩展名过滤；指向常规文件的符号链接会被跟随，指向目录的忽略。
func (r *FileSystem) iterateRoot(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.open(yield, root)
	}
	if info.IsDir() {
		return r.walk(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.open(yield, root)
}

func (r *FileSystem) walk(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p == dir {
				return nil
			}
			if _, skip := r.excludeDir[strings.ToLower(name)]; skip {
				return filepath.SkipDir
			}
			if r.skipHidden && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if r.skipHidden && strings.HasPrefix(name, ".") {
			return nil
		}
		if len(r.exts) > 0 {
			if _, ok := r.exts[strings.ToLower(filepath.Ext(name))]; !ok {
				return nil
			}
		}
		mode := d.Type()
		if mode&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				return nil
			}
		} else if !mode.IsRegular() {
			// 设备、管道等非常规文件
			return nil
		}
		return r.open(yield, p)
	})
}

func (r *FileSystem) open(yield func(contract.FileID, io.ReadCloser) error, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	return r.emit(yield, contract.NormalizeFileID(p), f)
}

func (r *FileSystem) emit(yield func(contract.FileID, io.ReadCloser) error, id contract.FileID, f io.ReadCloser) error {
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(id, brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

var _ contract.Reader = (*FileSystem)(nil)
