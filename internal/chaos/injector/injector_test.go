package injector

import (
	"context"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/chaos/reply"
)

func TestDecodeConfigsTaggedUnion(t *testing.T) {
	body := `[
		{"type":"latency","path":"/data/*","percent":100,"latency":"10ms"},
		{"type":"fault","path":"/data/*","percent":100,"faults":[{"errno":5,"weight":1}]},
		{"type":"attrOverride","path":"/data/*","percent":100,"size":42}
	]`

	configs, err := DecodeConfigs(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, configs, 3)

	assert.Equal(t, "latency", configs[0].Type)
	assert.Equal(t, 10*time.Millisecond, configs[0].Latency.Latency)

	assert.Equal(t, "fault", configs[1].Type)
	assert.Equal(t, 5, configs[1].Fault.Faults[0].Errno)

	assert.Equal(t, "attrOverride", configs[2].Type)
	require.NotNil(t, configs[2].AttrOverride.Size)
	assert.EqualValues(t, 42, *configs[2].AttrOverride.Size)
}

func TestFaultInjectorReturnsConfiguredErrno(t *testing.T) {
	fi, err := BuildFault(FaultsConfig{
		Config: filter.Config{Path: "/data/*", Percent: 100},
		Faults: []FaultConfig{{Errno: int(syscall.EIO), Weight: 1}},
	})
	require.NoError(t, err)

	err = fi.Inject(context.Background(), filter.Open, "/data/foo")
	assert.Equal(t, syscall.EIO, err)
}

func TestFaultInjectorNoMatchIsNoop(t *testing.T) {
	fi, err := BuildFault(FaultsConfig{
		Config: filter.Config{Path: "/data/*", Percent: 0},
		Faults: []FaultConfig{{Errno: int(syscall.EIO), Weight: 1}},
	})
	require.NoError(t, err)

	err = fi.Inject(context.Background(), filter.Open, "/data/foo")
	assert.NoError(t, err)
}

func TestLatencyInjectorSleeps(t *testing.T) {
	li, err := BuildLatency(LatencyConfig{
		Config:  filter.Config{Path: "/data/*", Percent: 100},
		Latency: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	err = li.Inject(context.Background(), filter.Read, "/data/foo")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestLatencyInjectorRespectsContextCancellation(t *testing.T) {
	li, err := BuildLatency(LatencyConfig{
		Config:  filter.Config{Path: "/data/*", Percent: 100},
		Latency: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = li.Inject(ctx, filter.Read, "/data/foo")
	assert.Error(t, err)
}

func TestAttrOverrideOnlyTouchesConfiguredFields(t *testing.T) {
	size := uint64(99)
	ao, err := BuildAttrOverride(AttrOverrideConfig{Path: "/data/*", Percent: 100, Size: &size})
	require.NoError(t, err)

	original := reply.Attr{Ino: 7, Size: 1, UID: 1000}
	entry := reply.NewEntry(original, 0)
	r := reply.OfEntry(entry)

	err = ao.InjectReply(filter.Lookup, "/data/foo", &r)
	require.NoError(t, err)

	assert.EqualValues(t, 99, entry.Attr.Size)
	assert.EqualValues(t, 7, entry.Attr.Ino)
	assert.EqualValues(t, 1000, entry.Attr.UID)
}

func TestMultiInjectorShortCircuitsOnFirstFault(t *testing.T) {
	fi1, err := BuildFault(FaultsConfig{
		Config: filter.Config{Path: "/data/*", Percent: 100},
		Faults: []FaultConfig{{Errno: int(syscall.EIO), Weight: 1}},
	})
	require.NoError(t, err)
	fi2, err := BuildFault(FaultsConfig{
		Config: filter.Config{Path: "/data/*", Percent: 100},
		Faults: []FaultConfig{{Errno: int(syscall.ENOSPC), Weight: 1}},
	})
	require.NoError(t, err)

	m := &MultiInjector{injectors: []Injector{fi1, fi2}}
	err = m.Inject(context.Background(), filter.Open, "/data/foo")
	assert.Equal(t, syscall.EIO, err)
}

func TestMultiInjectorRunsAllReplyInjectorsInOrder(t *testing.T) {
	size := uint64(10)
	ino := uint64(55)
	ao1, err := BuildAttrOverride(AttrOverrideConfig{Path: "/data/*", Percent: 100, Size: &size})
	require.NoError(t, err)
	ao2, err := BuildAttrOverride(AttrOverrideConfig{Path: "/data/*", Percent: 100, Ino: &ino})
	require.NoError(t, err)

	m := &MultiInjector{injectors: []Injector{ao1, ao2}}

	entry := reply.NewEntry(reply.Attr{}, 0)
	r := reply.OfEntry(entry)
	err = m.InjectReply(filter.Lookup, "/data/foo", &r)
	require.NoError(t, err)

	assert.EqualValues(t, 10, entry.Attr.Size)
	assert.EqualValues(t, 55, entry.Attr.Ino)
}
