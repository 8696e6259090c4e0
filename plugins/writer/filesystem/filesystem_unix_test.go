//go:build !windows

package filesystem

import (
	"testing"

	"subtrans/pkg/contract"
)

// TestMapPathInvalidUnix tree 布局拒绝绝对路径与逃逸
func TestMapPathInvalidUnix(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir(), Layout: LayoutTree})
	for _, id := range []string{"/abs", "..", ".", "../x"} {
		if _, err := w.mapPath(contract.ArtifactID(id)); err != contract.ErrPathInvalid {
			t.Fatalf("id %s expect invalid", id)
		}
	}
}
