package registry

import (
	"maps"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	// ErrTypeCapacityExhausted marks entities left untracked because every slot is in use.
	ErrTypeCapacityExhausted = "registry-capacity-exhausted"
	// ErrTypeOutputSize marks readbacks whose length does not match the registry capacity.
	ErrTypeOutputSize = "registry-output-size"
)

// registry is the implementation of the Registry interface.
type registry struct {
	capacity int
	slots    map[EntityID]int
	free     []int
	input    []Record
	output   []Record

	// generations changes whenever a slot changes owner, so readbacks started before can be recognized.
	generations []uint64
}

// Registry maps tracked entities to a fixed set of sample slots and owns the input and output record arrays.
// It is the only component that creates or frees slots. It is not safe for concurrent use; the simulation
// loop owns it.
type Registry interface {
	// Acquire returns the entity's slot, assigning a free one if the entity is not tracked yet.
	// A newly assigned slot starts with sentinel input and output records.
	// When no slot is free the entity stays untracked and a warning is logged.
	//
	// Parameters:
	//   - e: the entity to track
	//
	// Returns:
	//   - int: the slot index
	//   - bool: whether the entity is tracked
	Acquire(e EntityID) (int, bool)

	// Release frees the entity's slot, resetting both of its records to sentinel. Untracked entities are ignored.
	//
	// Parameters:
	//   - e: the entity to stop tracking
	//
	// Returns:
	//   - bool: whether the entity was tracked
	Release(e EntityID) bool

	// Slot returns the entity's slot.
	Slot(e EntityID) (int, bool)

	// Capacity returns the fixed number of slots.
	Capacity() int

	// Len returns the number of tracked entities.
	Len() int

	// Input returns the input record array. It is the dispatcher's upload source.
	Input() []Record

	// Output returns the output record array, holding the latest completed readback.
	Output() []Record

	// SetInput overwrites the input record of slot.
	SetInput(slot int, r Record)

	// ResetInput sets the input record of slot to the sentinel.
	ResetInput(slot int)

	// ResetSlot resets both records of slot to the sentinel and starts a new generation, so readbacks already
	// in flight no longer apply to it. The slot keeps its entity.
	ResetSlot(slot int)

	// Generations returns a snapshot of the per-slot generation counters. A slot's generation changes on
	// Acquire, Release and ResetSlot.
	Generations() []uint64

	// CommitOutput replaces the whole output array with a completed readback.
	// Records of slots that are no longer tracked, or whose generation differs from the one captured when
	// the readback was started, are reset to sentinel.
	//
	// Parameters:
	//   - records: the readback, one record per slot
	//   - generations: the Generations snapshot taken when the readback's input was uploaded
	//
	// Returns:
	//   - error: when the readback or snapshot does not hold exactly Capacity entries; output is left untouched
	CommitOutput(records []Record, generations []uint64) error

	// Live returns a snapshot of the tracked entities and their slots.
	Live() map[EntityID]int
}

var _ Registry = &registry{}

// NewRegistry creates a registry with capacity slots, all free and holding sentinel records.
//
// Parameters:
//   - capacity: the fixed number of slots, values < 0 are treated as 0
//
// Returns:
//   - Registry: the registry
func NewRegistry(capacity int) Registry {
	capacity = max(capacity, 0)
	r := &registry{
		capacity: capacity,
		slots:    make(map[EntityID]int, capacity),
		free:     make([]int, capacity),
		input:    make([]Record, capacity),
		output:   make([]Record, capacity),

		generations: make([]uint64, capacity),
	}
	// Stack top is the end of the slice, so slot 0 is handed out first.
	for i := range capacity {
		r.free[i] = capacity - 1 - i
		r.input[i] = SentinelRecord()
		r.output[i] = SentinelRecord()
	}
	instrumentSlotsInUse(0)
	return r
}

func (r *registry) Acquire(e EntityID) (int, bool) {
	if slot, ok := r.slots[e]; ok {
		return slot, true
	}
	if len(r.free) == 0 {
		logs.Warn(errors.New("no free entity slot").
			WithTag("entity", uint64(e)).
			WithTag("capacity", r.capacity).
			WithType(ErrTypeCapacityExhausted))
		instrumentSlotExhausted()
		return -1, false
	}

	slot := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	r.slots[e] = slot
	r.ResetSlot(slot)
	instrumentSlotsInUse(len(r.slots))
	return slot, true
}

func (r *registry) Release(e EntityID) bool {
	slot, ok := r.slots[e]
	if !ok {
		return false
	}
	r.ResetSlot(slot)
	r.free = append(r.free, slot)
	delete(r.slots, e)
	instrumentSlotsInUse(len(r.slots))
	return true
}

func (r *registry) Slot(e EntityID) (int, bool) {
	slot, ok := r.slots[e]
	return slot, ok
}

func (r *registry) Capacity() int {
	return r.capacity
}

func (r *registry) Len() int {
	return len(r.slots)
}

func (r *registry) Input() []Record {
	return r.input
}

func (r *registry) Output() []Record {
	return r.output
}

func (r *registry) SetInput(slot int, rec Record) {
	if slot < 0 || slot >= r.capacity {
		return
	}
	r.input[slot] = rec
}

func (r *registry) ResetInput(slot int) {
	r.SetInput(slot, SentinelRecord())
}

func (r *registry) ResetSlot(slot int) {
	if slot < 0 || slot >= r.capacity {
		return
	}
	r.input[slot] = SentinelRecord()
	r.output[slot] = SentinelRecord()
	r.generations[slot]++
}

func (r *registry) Generations() []uint64 {
	return slices.Clone(r.generations)
}

func (r *registry) CommitOutput(records []Record, generations []uint64) error {
	if len(records) != r.capacity || len(generations) != r.capacity {
		return errors.New("readback size does not match registry capacity").
			WithTag("records", len(records)).
			WithTag("generations", len(generations)).
			WithTag("capacity", r.capacity).
			WithType(ErrTypeOutputSize)
	}
	copy(r.output, records)

	// A slot freed or handed to another entity while its readback was in flight must not expose the
	// old owner's sample.
	used := make([]bool, r.capacity)
	for _, slot := range r.slots {
		used[slot] = true
	}
	for i, ok := range used {
		if !ok || generations[i] != r.generations[i] {
			r.output[i] = SentinelRecord()
		}
	}
	return nil
}

func (r *registry) Live() map[EntityID]int {
	return maps.Clone(r.slots)
}
