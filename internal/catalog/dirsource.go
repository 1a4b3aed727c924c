package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/emubot-core/internal/script"
)

// documentExts are tried in order when resolving a script name.
var documentExts = []string{".json", ".yaml", ".yml"}

// DirSource resolves scripts from <dir>/<name>.{json,yaml,yml}.
// Documents are read on every lookup, so edits take effect on the next run.
type DirSource struct {
	dir string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Script loads and validates the named document.
func (d *DirSource) Script(_ context.Context, name string) (*script.Script, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}
	for _, ext := range documentExts {
		path := filepath.Join(d.dir, name+ext)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("checking %s: %w", path, err)
		}
		return script.DecodeFile(path)
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrScriptNotFound, name, d.dir)
}
