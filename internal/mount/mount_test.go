package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShadowPathNamesASibling(t *testing.T) {
	p, err := ShadowPath("/mnt/target")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/__chaosfs__target__", p)
}

func TestShadowPathRefusesRoot(t *testing.T) {
	_, err := ShadowPath("/")
	assert.Error(t, err)
}

func TestNonRootAllowsExactMountPoint(t *testing.T) {
	info := &Info{mountPoints: []string{"/", "/mnt/target", "/proc"}}
	assert.True(t, info.NonRoot("/mnt/target"))
}

func TestNonRootRefusesNonMountPointDirectory(t *testing.T) {
	info := &Info{mountPoints: []string{"/", "/mnt"}}
	assert.False(t, info.NonRoot("/mnt/target"))
}

func TestNonRootSubstringMatchIsDeliberatelyCoarse(t *testing.T) {
	// A mount point that merely contains path as a substring still
	// permits the injection, matching the original's coarser-than-exact
	// guard (see DESIGN.md).
	info := &Info{mountPoints: []string{"/mnt/target/sub"}}
	assert.True(t, info.NonRoot("/mnt/target"))
}
