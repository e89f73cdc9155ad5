package fsops

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/petasbytes/toolchat/internal/safety"
)

// WriteFile replaces the file at relPath atomically: the data goes to a
// temporary file in the same directory which is then renamed over the target.
// Parent directories are created as needed.
func (r *Root) WriteFile(relPath string, data []byte) error {
	absPath, err := safety.ValidateWritePath(r.abs, relPath)
	if err != nil {
		return err // propagate ToolError unchanged
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, absPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Remove deletes the file at relPath. A missing file is not an error.
func (r *Root) Remove(relPath string) error {
	absPath, err := safety.ValidateWritePath(r.abs, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
