package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type arch string

var archs = New(map[arch][]string{
	"x64":   {"amd64", "x86_64"},
	"arm64": {"aarch64"},
})

func TestNormalize(t *testing.T) {
	assert.Equal(t, arch("x64"), archs.Normalize("x64"))
	assert.Equal(t, arch("x64"), archs.Normalize("  AMD64 "))
	assert.Equal(t, arch("arm64"), archs.Normalize("AArch64"))
	assert.Equal(t, arch(""), archs.Normalize("mips"))
	assert.Equal(t, arch(""), archs.Normalize(""))
}

func TestParse(t *testing.T) {
	v, err := archs.Parse("x86_64")
	require.NoError(t, err)
	assert.Equal(t, arch("x64"), v)

	_, err = archs.Parse("mips")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid options: arm64, x64")
}

func TestNamesIsACopy(t *testing.T) {
	names := archs.Names()
	assert.Equal(t, []string{"arm64", "x64"}, names)
	names[0] = "changed"
	assert.Equal(t, []string{"arm64", "x64"}, archs.Names())
}
