// Package splitarchive reassembles an archive that was published as ordered parts and
// extracts it in a single streaming pass.
package splitarchive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// Stage names reported in MergeFailed errors.
const (
	StageConcatenate = "concatenate"
	StageUnpack      = "unpack"
)

// Part is one piece of a split archive.
type Part struct {
	Sequence int
	Path     string
}

// Unpacker consumes the concatenated archive stream and extracts it into destDir.
// output carries diagnostics (for example the stderr of an external tool).
type Unpacker interface {
	Unpack(ctx context.Context, r io.Reader, destDir string) (output string, err error)
}

// errConsumerDone is installed on the read side once the unpacker has returned, so a
// producer still writing is released.
var errConsumerDone = errors.New("unpacker finished reading")

// Merge concatenates parts in ascending sequence order into a pipe consumed by u.
// A failure is reported as MergeFailed naming the half that failed.
func Merge(ctx context.Context, parts []Part, destDir string, u Unpacker) error {
	if len(parts) == 0 {
		return ferrors.MergeFailed(StageConcatenate, "", errors.New("no parts to merge"))
	}
	ordered := slices.Clone(parts)
	slices.SortStableFunc(ordered, func(a, b Part) int { return a.Sequence - b.Sequence })

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return ferrors.MergeFailed(StageUnpack, "", fmt.Errorf("create destination: %w", err))
	}

	slog.Info("Merging split archive", slog.Int("parts", len(ordered)), logfields.Path(destDir))
	for _, p := range ordered {
		slog.Debug("Archive part", logfields.Sequence(p.Sequence), logfields.Path(p.Path))
	}

	pr, pw := io.Pipe()
	produced := make(chan error, 1)
	go func() {
		err := concatenate(ctx, ordered, pw)
		if err != nil {
			_ = pw.CloseWithError(err)
		} else {
			_ = pw.Close()
		}
		produced <- err
	}()

	output, unpackErr := u.Unpack(ctx, pr, destDir)
	_ = pr.CloseWithError(errConsumerDone)
	produceErr := <-produced

	if err := ctx.Err(); err != nil {
		return ferrors.Canceled("merge", err)
	}
	consumerClosed := errors.Is(produceErr, errConsumerDone)
	switch {
	case produceErr != nil && !consumerClosed:
		return ferrors.MergeFailed(StageConcatenate, output, produceErr)
	case unpackErr != nil:
		return ferrors.MergeFailed(StageUnpack, output, unpackErr)
	case consumerClosed:
		// The archive ended before the input did; trailing bytes are padding.
		slog.Debug("Unpacker stopped before end of input", logfields.Path(destDir))
	}
	slog.Info("Split archive merged", logfields.Path(destDir))
	return nil
}

// concatenate streams each part into w, honouring cancellation between chunks.
func concatenate(ctx context.Context, parts []Part, w io.Writer) error {
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyPart(ctx, p, w); err != nil {
			return err
		}
	}
	return nil
}

func copyPart(ctx context.Context, p Part, w io.Writer) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("open part %d: %w", p.Sequence, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, ctxReader{ctx: ctx, r: f}); err != nil {
		return fmt.Errorf("copy part %d (%s): %w", p.Sequence, p.Path, err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
