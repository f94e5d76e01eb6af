package engine

import (
	"path/filepath"
	"testing"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

func TestResolveFolder(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name   string
		folder string
		want   string // relative to root; empty means expect an error
	}{
		{"empty folder is root", "", "."},
		{"simple subfolder", "music", "music"},
		{"nested subfolder", "music/albums", "music/albums"},
		{"dot segments collapse", "music/../videos", "videos"},
		{"escape via dotdot", "..", ""},
		{"escape via nested dotdot", "music/../../other", ""},
		{"absolute path", "/etc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveFolder(root, tt.folder)
			if tt.want == "" {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if types.KindOf(err) != types.ErrInvalidPath {
					t.Fatalf("wrong error kind: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if want := filepath.Join(root, tt.want); got != want {
				t.Errorf("resolveFolder(%q) = %q, want %q", tt.folder, got, want)
			}
		})
	}
}
