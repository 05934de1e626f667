package dispatcher

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// cpuDevice runs the sample kernel on a goroutine per dispatch.
type cpuDevice struct {
	mu     *sync.Mutex
	params KernelParams
	masks  *bake.MaskArray
}

// NewCPUDevice creates a software Device.
func NewCPUDevice() Device {
	return &cpuDevice{
		mu: &sync.Mutex{},
	}
}

var _ Device = &cpuDevice{}

func (d *cpuDevice) SetParams(params KernelParams) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = params
}

func (d *cpuDevice) BindMasks(masks *bake.MaskArray) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.masks = masks
	return nil
}

func (d *cpuDevice) Dispatch(input []registry.Record) (<-chan ReadbackResult, error) {
	d.mu.Lock()
	masks := d.masks
	params := d.params
	d.mu.Unlock()

	if masks == nil {
		return nil, errors.New("no mask array bound").
			WithType(ErrTypeMisconfigured)
	}

	snapshot := append([]registry.Record(nil), input...)
	ch := make(chan ReadbackResult, 1)
	go func() {
		out := make([]registry.Record, len(snapshot))
		for i, r := range snapshot {
			out[i] = sampleRecord(r, masks, params)
		}
		ch <- ReadbackResult{Records: out}
	}()
	return ch, nil
}

func (d *cpuDevice) Poll() {}

func (d *cpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.masks = nil
}
