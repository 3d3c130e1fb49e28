package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolvesShadowPath(t *testing.T) {
	o, err := New(Config{PID: 1234, Path: "/mnt/target"})
	require.NoError(t, err)
	assert.Equal(t, "/mnt/__chaosfs__target__", o.shadowPath)
}

func TestNewRejectsRootPath(t *testing.T) {
	_, err := New(Config{PID: 1234, Path: "/"})
	assert.Error(t, err)
}

func TestUnwindRunsUndoInReverseOrder(t *testing.T) {
	o := &Orchestrator{}
	var order []int
	o.pushUndo(func() { order = append(order, 1) })
	o.pushUndo(func() { order = append(order, 2) })
	o.pushUndo(func() { order = append(order, 3) })

	o.unwind()

	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Nil(t, o.undo)
}

func TestUnwindOfEmptyStackIsANoop(t *testing.T) {
	o := &Orchestrator{}
	assert.NotPanics(t, func() { o.unwind() })
}
