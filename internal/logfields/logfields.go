package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStep       = "step"
	KeyDurationMS = "duration_ms"
	KeyURL        = "url"
	KeyFile       = "file"
	KeyPath       = "path"
	KeyArch       = "arch"
	KeyAlgorithm  = "algorithm"
	KeyDigest     = "digest"
	KeyExpected   = "expected"
	KeyActual     = "actual"
	KeyAttempt    = "attempt"
	KeySequence   = "sequence"
	KeyState      = "state"
	KeyCommand    = "command"
	KeyBundle     = "bundle"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Step(name string) slog.Attr         { return slog.String(KeyStep, name) }
func Duration(d time.Duration) slog.Attr { return slog.Int64(KeyDurationMS, d.Milliseconds()) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func File(name string) slog.Attr         { return slog.String(KeyFile, name) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func Arch(a string) slog.Attr            { return slog.String(KeyArch, a) }
func Algorithm(a string) slog.Attr       { return slog.String(KeyAlgorithm, a) }
func Digest(d string) slog.Attr          { return slog.String(KeyDigest, d) }
func Expected(d string) slog.Attr        { return slog.String(KeyExpected, d) }
func Actual(d string) slog.Attr          { return slog.String(KeyActual, d) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func Sequence(n int) slog.Attr           { return slog.Int(KeySequence, n) }
func State(s string) slog.Attr           { return slog.String(KeyState, s) }
func Command(c string) slog.Attr         { return slog.String(KeyCommand, c) }
func Bundle(name string) slog.Attr       { return slog.String(KeyBundle, name) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
