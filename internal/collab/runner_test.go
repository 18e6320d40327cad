package collab

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/crossbuild/internal/process"
)

type call struct {
	cmd     process.Command
	timeout time.Duration
	grace   time.Duration
}

// fakeRunner records commands and fails those whose argument list contains failOn.
type fakeRunner struct {
	calls  []call
	failOn string
	output string
}

func (f *fakeRunner) fail(c process.Command) error {
	if f.failOn == "" {
		return nil
	}
	for _, a := range append([]string{c.Name}, c.Args...) {
		if a == f.failOn {
			return os.ErrInvalid
		}
	}
	return nil
}

func (f *fakeRunner) Run(_ context.Context, c process.Command) error {
	f.calls = append(f.calls, call{cmd: c})
	return f.fail(c)
}

func (f *fakeRunner) Output(_ context.Context, c process.Command) (string, error) {
	f.calls = append(f.calls, call{cmd: c})
	return f.output, f.fail(c)
}

func (f *fakeRunner) RunWithTimeout(_ context.Context, c process.Command, timeout, grace time.Duration) error {
	f.calls = append(f.calls, call{cmd: c, timeout: timeout, grace: grace})
	return f.fail(c)
}

// fakeFetcher writes content[url] to the destination, failing for unknown URLs.
type fakeFetcher struct {
	content map[string]string
	urls    []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url, destination string) error {
	f.urls = append(f.urls, url)
	body, ok := f.content[url]
	if !ok {
		return os.ErrNotExist
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destination, []byte(body), 0o644)
}
