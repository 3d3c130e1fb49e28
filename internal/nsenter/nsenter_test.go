package nsenter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReturnsErrorForMissingNamespace(t *testing.T) {
	called := false
	err := Run(-1, func() error {
		called = true
		return nil
	})

	assert.Error(t, err)
	assert.False(t, called, "f must not run when entering the namespace failed")
}

func TestRunDeliversEntryErrorInsteadOfClosuresError(t *testing.T) {
	// A pid with no /proc/<pid>/ns/mnt still exercises the channel
	// handoff path all the way to enterAndRun failing before f runs.
	boom := errors.New("boom")
	err := Run(-1, func() error {
		return boom
	})
	assert.Error(t, err)
	assert.NotEqual(t, boom, err)
}
