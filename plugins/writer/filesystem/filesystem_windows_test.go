//go:build windows

package filesystem

import (
	"testing"

	"subtrans/pkg/contract"
)

// TestMapPathInvalidWindows tree 布局拒绝卷名与逃逸
func TestMapPathInvalidWindows(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir(), Layout: LayoutTree})
	for _, id := range []string{"C:\\abs", "..", ".", "..\\x"} {
		if _, err := w.mapPath(contract.ArtifactID(id)); err != contract.ErrPathInvalid {
			t.Fatalf("id %s expect invalid", id)
		}
	}
}
