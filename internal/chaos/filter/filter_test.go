package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultsToAllMethods(t *testing.T) {
	f, err := Build(Config{Path: "/data/*", Percent: 100})
	require.NoError(t, err)

	assert.True(t, f.methods.Has(Read))
	assert.True(t, f.methods.Has(Write))
	assert.True(t, f.methods.Has(Bmap))
}

func TestBuildRejectsUnknownMethod(t *testing.T) {
	_, err := Build(Config{Path: "/data/*", Methods: []string{"bogus"}, Percent: 100})
	assert.Error(t, err)
}

func TestMatchRequiresPathMethodAndProbability(t *testing.T) {
	f, err := Build(Config{Path: "/data/*.txt", Methods: []string{"Read", "Write"}, Percent: 100})
	require.NoError(t, err)

	assert.True(t, f.Match(Read, "/data/foo.txt"))
	assert.False(t, f.Match(Read, "/data/foo.bin"))
	assert.False(t, f.Match(Open, "/data/foo.txt"))
}

func TestMatchZeroPercentNeverFires(t *testing.T) {
	f, err := Build(Config{Path: "/data/*", Percent: 0})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.False(t, f.Match(Read, "/data/foo"))
	}
}

func TestParseMethodCaseInsensitive(t *testing.T) {
	m, err := ParseMethod("ReAdDiR")
	require.NoError(t, err)
	assert.Equal(t, ReadDir, m)
}
