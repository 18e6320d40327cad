package collab

import "context"

// Packager runs the packaging script from the repository root.
type Packager struct {
	Python Python
	Root   string
	Script string // relative to Root; defaults to package.py
}

// Package archives the build outputs of outDir.
func (p Packager) Package(ctx context.Context, env []string, outDir string) error {
	script := p.Script
	if script == "" {
		script = "package.py"
	}
	return p.Python.Run(ctx, p.Root, env, script, "--out-dir", outDir)
}
