// Package safety provides sandboxed path checks, the machine-readable tool
// error body and the personal-information gate used before memory writes.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error codes reported back to the model.
const (
	CodeUnknownTool        = "ERR_UNKNOWN_TOOL"
	CodeMissingParam       = "ERR_MISSING_PARAM"
	CodeInvalidParam       = "ERR_INVALID_PARAM"
	CodePermissionRequired = "ERR_PERMISSION_REQUIRED"
	CodeNotFound           = "ERR_NOT_FOUND"
	CodeKeyExists          = "ERR_KEY_EXISTS"
	CodeToolFailed         = "ERR_TOOL_FAILED"
	CodeOutsideSandbox     = "ERR_PATH_OUTSIDE_SANDBOX"
	CodeDeniedRead         = "ERR_DENIED_READ"
	CodeDeniedWrite        = "ERR_DENIED_WRITE"
)

// ToolError is a machine-readable error body for surfacing back to the agent as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep result blocks small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// InitSandboxRoot resolves an absolute sandbox root. An empty root means the
// current directory. The directory is created when missing.
func InitSandboxRoot(root string) (string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs(root): %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("mkdir root: %w", err)
	}
	// Resolve symlinks so later boundary checks compare like with like.
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		abs = r
	}
	return abs, nil
}

// ValidateRelPath resolves relPath against absRoot and returns an absolute path
// inside the sandbox. It rejects absolute inputs, parent traversal, and symlink
// escapes, and denies reads under .git/ and .agent/. On violation, returns a ToolError.
func ValidateRelPath(absRoot, relPath string) (string, error) {
	rel, candidate, err := resolve(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if denied(rel) {
		return "", ToolError{Code: CodeDeniedRead, Message: "reads under .git/ or .agent/ are not allowed"}
	}
	return candidate, nil
}

// ValidateWritePath is ValidateRelPath for writes.
func ValidateWritePath(absRoot, relPath string) (string, error) {
	rel, candidate, err := resolve(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if denied(rel) {
		return "", ToolError{Code: CodeDeniedWrite, Message: "writes under .git/ or .agent/ are not allowed"}
	}
	if rel == "." {
		return "", ToolError{Code: CodeDeniedWrite, Message: "cannot write to the sandbox root"}
	}
	return candidate, nil
}

func resolve(absRoot, relPath string) (rel, candidate string, err error) {
	if filepath.IsAbs(relPath) {
		return "", "", ToolError{Code: CodeOutsideSandbox, Message: "absolute paths are not allowed"}
	}
	cleaned := filepath.Clean(relPath)
	candidate = filepath.Join(absRoot, cleaned)

	// Best-effort symlink resolution: the whole candidate if it exists,
	// otherwise its parent, which still reveals escapes via a symlinked parent.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if resolvedParent, err2 := filepath.EvalSymlinks(filepath.Dir(candidate)); err2 == nil {
		candidate = filepath.Join(resolvedParent, filepath.Base(candidate))
	}

	rel, err = filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", "", ToolError{Code: CodeOutsideSandbox, Message: "requested path resolves outside the sandbox root"}
	}
	return filepath.ToSlash(rel), candidate, nil
}

func denied(rel string) bool {
	for _, dir := range []string{".git", ".agent"} {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}
