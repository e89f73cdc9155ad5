package fsops

import (
	"errors"
	"os"

	"github.com/petasbytes/toolchat/internal/safety"
)

// ReadFile reads a file addressed by a relative path under the root.
// It returns a ToolError on policy violations and os errors for I/O issues.
func (r *Root) ReadFile(relPath string) ([]byte, error) {
	absPath, err := safety.ValidateRelPath(r.abs, relPath)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, safety.ToolError{Code: "ERR_NOT_A_FILE", Message: "path is a directory"}
	}
	return os.ReadFile(absPath)
}

// Exists reports whether relPath names an existing regular file.
func (r *Root) Exists(relPath string) (bool, error) {
	absPath, err := safety.ValidateRelPath(r.abs, relPath)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}
