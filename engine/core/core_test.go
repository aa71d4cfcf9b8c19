package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPoolReusesReleasedSlots(t *testing.T) {
	p := NewIDPool(4)
	a := p.Acquire("a")
	b := p.Acquire("b")
	c := p.Acquire("c")
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{a, b, c})

	require.NoError(t, p.Release(b))
	assert.Nil(t, p.Owner(b))
	assert.Equal(t, uint32(1), p.Acquire("d"))
	assert.Equal(t, "d", p.Owner(1))
	assert.Equal(t, 3, p.Len())
}

func TestIDPoolReleaseOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(testLogSink{})

	p := NewIDPool(0)
	assert.Error(t, p.Release(3))
	assert.Contains(t, buf.String(), "out of range")
}

func TestMetricsFrameCounters(t *testing.T) {
	m := NewMetrics()
	m.AddUpload(128)
	m.AddUpload(64)
	m.AddDispatch()
	m.AddIndirectDraw()
	m.AddIndirectDraw()

	up, disp, draws := m.Frame()
	assert.Equal(t, uint64(192), up)
	assert.Equal(t, uint32(1), disp)
	assert.Equal(t, uint32(2), draws)

	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	up, disp, draws = m.Frame()
	assert.Zero(t, up)
	assert.Zero(t, disp)
	assert.Zero(t, draws)
	assert.InDelta(t, 16.0, m.FrameTime(), 0.001)
}

func TestClockElapsed(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	c.Update()
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)
	c.Stop()
}

type testLogSink struct{}

func (testLogSink) Write(p []byte) (int, error) { return len(p), nil }

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	var calls []string
	first, second := "first", "second"

	require.True(t, bus.Register(EventSceneRebuilt, first, func(code EventCode, _ interface{}, payload interface{}) bool {
		calls = append(calls, first)
		return payload.(uint64) > 10
	}))
	require.True(t, bus.Register(EventSceneRebuilt, second, func(EventCode, interface{}, interface{}) bool {
		calls = append(calls, second)
		return true
	}))
	assert.False(t, bus.Register(EventSceneRebuilt, first, nil))

	assert.True(t, bus.Fire(EventSceneRebuilt, nil, uint64(1)))
	assert.Equal(t, []string{first, second}, calls)

	calls = nil
	assert.True(t, bus.Fire(EventSceneRebuilt, nil, uint64(11)))
	assert.Equal(t, []string{first}, calls)

	assert.True(t, bus.Unregister(EventSceneRebuilt, first))
	assert.False(t, bus.Unregister(EventSceneRebuilt, first))
	assert.False(t, bus.Fire(EventApplicationQuit, nil, nil))
}
