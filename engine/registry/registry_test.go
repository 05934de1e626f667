package registry

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func requireSlotInvariants(t *testing.T, r Registry) {
	live := r.Live()
	seen := make(map[int]EntityID, len(live))
	for e, slot := range live {
		require.GreaterOrEqual(t, slot, 0)
		require.Less(t, slot, r.Capacity())
		other, dup := seen[slot]
		require.False(t, dup, "slot %d held by %d and %d", slot, e, other)
		seen[slot] = e
	}
	require.Equal(t, len(live), r.Len())
}

func TestRegistryCapacityScenario(t *testing.T) {
	r := NewRegistry(4)

	for i, e := range []EntityID{'A', 'B', 'C', 'D'} {
		slot, ok := r.Acquire(e)
		require.True(t, ok)
		require.Equal(t, i, slot)
	}
	requireSlotInvariants(t, r)

	slot, ok := r.Acquire('E')
	require.False(t, ok)
	require.Equal(t, -1, slot)
	_, ok = r.Slot('E')
	require.False(t, ok)

	require.True(t, r.Release('B'))
	requireSlotInvariants(t, r)

	slot, ok = r.Acquire('E')
	require.True(t, ok)
	require.Equal(t, 1, slot)
	require.Equal(t, 4, r.Len())
	requireSlotInvariants(t, r)
}

func TestRegistryAcquireIsIdempotent(t *testing.T) {
	r := NewRegistry(2)

	first, ok := r.Acquire(7)
	require.True(t, ok)
	r.SetInput(first, Record{SurfaceIndex: 3, CoverageDepth: 1})

	second, ok := r.Acquire(7)
	require.True(t, ok)
	require.Equal(t, first, second)
	require.Equal(t, 1, r.Len())
	require.Equal(t, int32(3), r.Input()[first].SurfaceIndex)
}

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry(2)

	slot, _ := r.Acquire(1)
	r.SetInput(slot, Record{W: mgl32.Vec3{1, 2, 3}, SurfaceIndex: 0, CoverageDepth: 0.5})
	out := append([]Record(nil), r.Output()...)
	out[slot] = Record{SurfaceIndex: 0, CoverageDepth: 0.5}
	require.NoError(t, r.CommitOutput(out, r.Generations()))

	require.True(t, r.Release(1))
	require.Equal(t, SentinelRecord(), r.Input()[slot])
	require.Equal(t, SentinelRecord(), r.Output()[slot])
	require.False(t, r.Release(1))
	require.False(t, r.Release(99))
	require.Zero(t, r.Len())
}

func TestRegistryCommitOutput(t *testing.T) {
	r := NewRegistry(3)
	slot, _ := r.Acquire(1)

	t.Run("size mismatch leaves output untouched", func(t *testing.T) {
		err := r.CommitOutput([]Record{{SurfaceIndex: 2}}, r.Generations())
		require.Error(t, err)
		require.Equal(t, SentinelRecord(), r.Output()[slot])
	})

	t.Run("generation snapshot size mismatch", func(t *testing.T) {
		out := []Record{{}, {}, {}}
		require.Error(t, r.CommitOutput(out, nil))
		require.Equal(t, SentinelRecord(), r.Output()[slot])
	})

	t.Run("untracked slots are reset", func(t *testing.T) {
		out := []Record{
			{SurfaceIndex: 1, CoverageDepth: 0.25},
			{SurfaceIndex: 1, CoverageDepth: 0.25},
			{SurfaceIndex: 1, CoverageDepth: 0.25},
		}
		require.NoError(t, r.CommitOutput(out, r.Generations()))
		for i, rec := range r.Output() {
			if i == slot {
				require.Equal(t, float32(0.25), rec.CoverageDepth)
				continue
			}
			require.Equal(t, SentinelRecord(), rec)
		}
	})
}

func TestRegistryZeroCapacity(t *testing.T) {
	r := NewRegistry(-1)
	require.Zero(t, r.Capacity())
	_, ok := r.Acquire(1)
	require.False(t, ok)
	require.Empty(t, r.Input())
	require.NoError(t, r.CommitOutput(nil, nil))
}

func TestRecordSentinel(t *testing.T) {
	rec := SentinelRecord()
	require.Equal(t, NoSurface, rec.SurfaceIndex)
	require.Zero(t, rec.CoverageDepth)
	require.False(t, rec.OnSurface())
	require.True(t, Record{}.OnSurface())
}

func TestRegistryStaleGenerationIsDiscarded(t *testing.T) {
	r := NewRegistry(2)
	b, _ := r.Acquire('B')
	r.SetInput(b, Record{W: mgl32.Vec3{1, 2, 3}, SurfaceIndex: 0, UV: mgl32.Vec2{0.5, 0.5}})
	inFlight := r.Generations()

	require.True(t, r.Release('B'))
	e, ok := r.Acquire('E')
	require.True(t, ok)
	require.Equal(t, b, e)
	require.NotEqual(t, inFlight[e], r.Generations()[e])

	out := []Record{SentinelRecord(), SentinelRecord()}
	out[e] = Record{W: mgl32.Vec3{1, 2, 3}, SurfaceIndex: 0, UV: mgl32.Vec2{0.5, 0.5}, CoverageDepth: 0.9}
	require.NoError(t, r.CommitOutput(out, inFlight))
	require.Equal(t, SentinelRecord(), r.Output()[e])

	out[e].CoverageDepth = 0.4
	require.NoError(t, r.CommitOutput(out, r.Generations()))
	require.Equal(t, float32(0.4), r.Output()[e].CoverageDepth)
}

func TestRegistryResetSlot(t *testing.T) {
	r := NewRegistry(1)
	slot, _ := r.Acquire(3)
	r.SetInput(slot, Record{SurfaceIndex: 0})
	require.NoError(t, r.CommitOutput([]Record{{SurfaceIndex: 0, CoverageDepth: 1}}, r.Generations()))
	before := r.Generations()

	r.ResetSlot(slot)
	r.ResetSlot(-1)
	r.ResetSlot(5)

	require.Equal(t, SentinelRecord(), r.Input()[slot])
	require.Equal(t, SentinelRecord(), r.Output()[slot])
	require.Equal(t, before[slot]+1, r.Generations()[slot])
	got, ok := r.Slot(3)
	require.True(t, ok)
	require.Equal(t, slot, got)
}

func TestRegistryRandomSequences(t *testing.T) {
	const capacity = 8
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry(capacity)
	tracked := map[EntityID]bool{}

	for step := 0; step < 5000; step++ {
		e := EntityID(rng.Intn(20))
		if rng.Intn(2) == 0 {
			wasTracked := tracked[e]
			slot, ok := r.Acquire(e)
			switch {
			case wasTracked:
				require.True(t, ok)
			case len(tracked) == capacity:
				require.False(t, ok)
			default:
				require.True(t, ok)
				tracked[e] = true
				require.Equal(t, SentinelRecord(), r.Input()[slot], "step %d", step)
				require.Equal(t, SentinelRecord(), r.Output()[slot], "step %d", step)
			}
			if ok {
				r.SetInput(slot, Record{W: mgl32.Vec3{float32(e), 0, 0}, SurfaceIndex: int32(e)})
			}
		} else {
			require.Equal(t, tracked[e], r.Release(e))
			delete(tracked, e)
		}

		require.Equal(t, len(tracked), r.Len())
		requireSlotInvariants(t, r)
	}
}
