package splitarchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// TarCommand extracts with an external tar reading the stream from stdin.
type TarCommand struct {
	Binary string   // default "tar"
	Args   []string // extra flags placed before -C
}

// Unpack runs `tar -xf - [Args] -C destDir`. stderr is returned as output.
func (t TarCommand) Unpack(ctx context.Context, r io.Reader, destDir string) (string, error) {
	bin := t.Binary
	if bin == "" {
		bin = "tar"
	}
	args := append([]string{"-xf", "-"}, t.Args...)
	args = append(args, "-C", destDir)

	// #nosec G204 -- binary and args come from configuration, not user input
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stdin = r
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	cmd.WaitDelay = 10 * time.Second
	if err := cmd.Run(); err != nil {
		return stderr.String(), fmt.Errorf("%s %v: %w", bin, args, err)
	}
	return stderr.String(), nil
}
