package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringDefaults(t *testing.T) {
	assert.Equal(t, "crossbuild unknown (commit unknown, built unknown)", String())
}

func TestStringUsesLinkerValues(t *testing.T) {
	v, c, b := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = v, c, b })

	Version, GitCommit, BuildTime = "v1.2.0", "3f9c2ab", "2026-10-19T08:00:00Z"
	assert.Equal(t, "crossbuild v1.2.0 (commit 3f9c2ab, built 2026-10-19T08:00:00Z)", String())
}
