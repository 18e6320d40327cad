package logfields

import (
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r1", RunID("r1")},
		{"Step", KeyStep, "configure", Step("configure")},
		{"URL", KeyURL, "https://example.invalid/a", URL("https://example.invalid/a")},
		{"File", KeyFile, "part.001", File("part.001")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Arch", KeyArch, "x64", Arch("x64")},
		{"Algorithm", KeyAlgorithm, "sha512", Algorithm("sha512")},
		{"Digest", KeyDigest, "ab", Digest("ab")},
		{"Expected", KeyExpected, "aa", Expected("aa")},
		{"Actual", KeyActual, "bb", Actual("bb")},
		{"State", KeyState, "VERIFIED", State("VERIFIED")},
		{"Command", KeyCommand, "ninja", Command("ninja")},
		{"Bundle", KeyBundle, "win.zip", Bundle("win.zip")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric helpers.
func TestNumericHelpers(t *testing.T) {
	if v := Attempt(2); v.Key != KeyAttempt || v.Value.Int64() != 2 {
		t.Fatalf("Attempt mismatch: %v", v)
	}
	if v := Sequence(7); v.Key != KeySequence || v.Value.Int64() != 7 {
		t.Fatalf("Sequence mismatch: %v", v)
	}
	if v := Duration(1500 * time.Millisecond); v.Key != KeyDurationMS || v.Value.Int64() != 1500 {
		t.Fatalf("Duration mismatch: %v", v)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
