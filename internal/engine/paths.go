package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

// resolveFolder joins a caller-supplied relative folder onto the download
// root and verifies the result stays inside it. Empty folder means the root
// itself.
func resolveFolder(root, folder string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", types.E(types.ErrInvalidPath, "resolving download root: %v", err)
	}

	if filepath.IsAbs(folder) {
		return "", types.E(types.ErrInvalidPath, "folder must be relative to the download root")
	}

	target := filepath.Join(rootAbs, folder)
	if target != rootAbs && !strings.HasPrefix(target, rootAbs+string(os.PathSeparator)) {
		return "", types.E(types.ErrInvalidPath, "folder escapes the download root")
	}
	return target, nil
}
