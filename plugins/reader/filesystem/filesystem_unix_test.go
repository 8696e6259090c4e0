//go:build !windows

package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"syscall"
	"testing"

	"subtrans/pkg/contract"
)

// TestIterateSpecialFiles 符号链接与管道的处理
func TestIterateSpecialFiles(t *testing.T) {
	root := t.TempDir()
	season := filepath.Join(root, "season1")
	os.Mkdir(season, 0o755)
	ep1 := filepath.Join(season, "ep01.srt")
	os.WriteFile(ep1, []byte("1"), 0o644)
	if err := syscall.Mkfifo(filepath.Join(season, "pipe.srt"), 0o644); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	os.Symlink(ep1, filepath.Join(season, "ep02.srt"))
	os.Symlink(season, filepath.Join(root, "season-link"))
	os.Symlink(ep1, filepath.Join(root, "latest.srt"))

	cases := []struct {
		name  string
		opts  *Options
		roots []string
		want  []string
	}{
		// 目录内指向文件的链接跟随，管道跳过
		{"walk", &Options{Exts: []string{".srt"}}, []string{season}, []string{"ep01.srt", "ep02.srt"}},
		// 根为指向文件的链接：FileID 保留链接名
		{"root file link", nil, []string{filepath.Join(root, "latest.srt")}, []string{"latest.srt"}},
		// 根为指向目录的链接：忽略
		{"root dir link", nil, []string{filepath.Join(root, "season-link")}, nil},
		// 遍历中遇到指向目录的链接：不递归
		{"nested dir link", &Options{ExcludeDirNames: []string{"season1"}}, []string{root}, []string{"latest.srt"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := collect(t, New(tc.opts), tc.roots)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v want %#v", got, tc.want)
			}
		})
	}
}

// TestIterateSymlinkDangling 失效链接返回错误
func TestIterateSymlinkDangling(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "gone.srt")
	os.Symlink(filepath.Join(dir, "missing.srt"), link)
	err := New(nil).Iterate(context.Background(), []string{link}, func(contract.FileID, io.ReadCloser) error { return nil })
	if err == nil {
		t.Fatalf("失效链接应报错")
	}
}
