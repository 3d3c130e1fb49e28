package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandDeclaresExpectedFlags(t *testing.T) {
	flags := rootCmd.Flags()

	for _, name := range []string{"pid", "path", "verbose", "log-format", "foreground", "metrics-addr"} {
		assert.NotNil(t, flags.Lookup(name), "expected --%s to be registered", name)
	}
}

func TestForegroundDefaultsToTrue(t *testing.T) {
	f := rootCmd.Flags().Lookup("foreground")
	require.NotNil(t, f)
	assert.Equal(t, "true", f.DefValue)
}

func TestPidAndPathAreRequired(t *testing.T) {
	annotations := rootCmd.Flags().Lookup("pid").Annotations
	assert.Contains(t, annotations, "cobra_annotation_bash_completion_one_required_flag")

	annotations = rootCmd.Flags().Lookup("path").Annotations
	assert.Contains(t, annotations, "cobra_annotation_bash_completion_one_required_flag")
}
