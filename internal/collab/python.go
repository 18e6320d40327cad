package collab

import (
	"context"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/process"
)

// Python runs helper scripts with a fixed interpreter.
type Python struct {
	Runner process.Runner
	Bin    string
}

func (p Python) bin() string {
	if p.Bin == "" {
		return "python3"
	}
	return p.Bin
}

// Command builds the invocation of script with args.
func (p Python) Command(dir string, env []string, script string, args ...string) process.Command {
	return process.Command{
		Name: p.bin(),
		Args: append([]string{script}, args...),
		Dir:  dir,
		Env:  env,
	}
}

// Run executes script and waits for it.
func (p Python) Run(ctx context.Context, dir string, env []string, script string, args ...string) error {
	return p.Runner.Run(ctx, p.Command(dir, env, script, args...))
}

// Utils locates the ungoogled-chromium utility scripts.
type Utils struct {
	Python Python
	Dir    string // ungoogled-chromium/utils
}

func (u Utils) script(name string) string { return filepath.Join(u.Dir, name) }

// Retrieve downloads the components of ini into cache. No components means all.
func (u Utils) Retrieve(ctx context.Context, env []string, ini, cache string, components []string, insecure bool) error {
	args := []string{"retrieve", "-i", ini, "-c", cache}
	if insecure {
		args = append(args, "--disable-ssl-verification")
	}
	args = append(args, componentArgs(components)...)
	return u.Python.Run(ctx, "", env, u.script("downloads.py"), args...)
}

// Unpack extracts the cached components of ini into dest.
func (u Utils) Unpack(ctx context.Context, env []string, ini, cache, dest string, components []string) error {
	args := []string{"unpack", "-i", ini, "-c", cache}
	args = append(args, componentArgs(components)...)
	args = append(args, dest)
	return u.Python.Run(ctx, "", env, u.script("downloads.py"), args...)
}

// Prune removes the prebuilt binaries listed in pruningList from tree.
func (u Utils) Prune(ctx context.Context, env []string, tree, pruningList string) error {
	return u.Python.Run(ctx, "", env, u.script("prune_binaries.py"), tree, pruningList)
}

func componentArgs(components []string) []string {
	if len(components) == 0 {
		return nil
	}
	return append([]string{"--components"}, components...)
}
