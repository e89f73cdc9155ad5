// Package fsops performs file operations confined to one sandbox directory.
package fsops

import (
	"github.com/petasbytes/toolchat/internal/safety"
)

// Root is a sandbox directory. All paths passed to its methods are relative
// to it and validated by the safety package.
type Root struct {
	abs string
}

// NewRoot resolves dir (created when missing) as a sandbox root.
func NewRoot(dir string) (*Root, error) {
	abs, err := safety.InitSandboxRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Root{abs: abs}, nil
}

// Path returns the absolute root directory.
func (r *Root) Path() string { return r.abs }
