package tracer

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoTranslatesNegativeRange(t *testing.T) {
	assert.Equal(t, syscall.ENOENT, Errno(uint64(int64(-2))))
	assert.Equal(t, syscall.EIO, Errno(uint64(int64(-5))))
}

func TestErrnoNilOnSuccessValues(t *testing.T) {
	assert.NoError(t, Errno(0))
	assert.NoError(t, Errno(4096))
	assert.NoError(t, Errno(uint64(int64(-4096))))
}
