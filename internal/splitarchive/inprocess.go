package splitarchive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"git.home.luguber.info/inful/crossbuild/internal/config"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// InProcess extracts a tar stream without external tools. Compression auto sniffs the
// stream's magic bytes.
type InProcess struct {
	Compression config.Compression
}

// Unpack extracts every entry of the stream under destDir. Entries that would escape
// destDir are rejected.
func (u InProcess) Unpack(ctx context.Context, r io.Reader, destDir string) (string, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	comp := u.Compression
	if comp == "" || comp == config.CompressionAuto {
		comp = sniff(br)
	}
	stream, closer, err := decompress(br, comp)
	if err != nil {
		return "", err
	}
	defer closer()

	var log strings.Builder
	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return log.String(), err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return log.String(), fmt.Errorf("read tar header: %w", err)
		}
		if err := extractEntry(tr, hdr, destDir); err != nil {
			return log.String(), err
		}
		fmt.Fprintf(&log, "%s\n", hdr.Name)
	}
	// Drain trailing padding so the producer is not cut off mid-write.
	_, _ = io.Copy(io.Discard, br)
	return log.String(), nil
}

func sniff(br *bufio.Reader) config.Compression {
	head, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return config.CompressionGzip
	case bytes.HasPrefix(head, magicZstd):
		return config.CompressionZstd
	case bytes.HasPrefix(head, magicLZ4):
		return config.CompressionLZ4
	default:
		return config.CompressionNone
	}
}

func decompress(r io.Reader, comp config.Compression) (io.Reader, func(), error) {
	switch comp {
	case config.CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case config.CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	case config.CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case config.CompressionNone:
		return r, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %q", comp)
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, destDir string) error {
	target, err := safeJoin(destDir, hdr.Name)
	if err != nil {
		return err
	}
	mode := os.FileMode(hdr.Mode).Perm()
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0o700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return fmt.Errorf("create %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", hdr.Name, err)
		}
		return f.Close()
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) {
			return fmt.Errorf("absolute symlink target in archive: %s -> %s", hdr.Name, hdr.Linkname)
		}
		if _, err := safeJoin(destDir, filepath.Join(filepath.Dir(hdr.Name), hdr.Linkname)); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		src, err := safeJoin(destDir, hdr.Linkname)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Link(src, target)
	default:
		// Device nodes, fifos and PAX globals are not meaningful for toolchain archives.
		return nil
	}
}

// safeJoin resolves name under root and rejects results outside root.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, name)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, nil
}
