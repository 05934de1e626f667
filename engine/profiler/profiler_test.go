package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProfilerReportsAfterInterval(t *testing.T) {
	p := NewProfiler(20 * time.Millisecond)
	require.False(t, p.Tick())

	time.Sleep(25 * time.Millisecond)
	require.True(t, p.Tick())

	s := p.Last()
	require.Greater(t, s.TicksPerSecond, float64(0))
	require.Greater(t, s.SysMB, float64(0))
	require.False(t, p.Tick())
}

func TestProfilerDefaultInterval(t *testing.T) {
	require.Equal(t, time.Second, NewProfiler(0).updateInterval)
}
