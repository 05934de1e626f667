package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	slotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coverage_slots_in_use",
		Help: "The number of entity sample slots in use.",
	})

	slotExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_slot_exhausted_total",
		Help: "The total number of entities left untracked because every sample slot was in use.",
	})
)

func instrumentSlotsInUse(n int) {
	slotsInUse.Set(float64(n))
}

func instrumentSlotExhausted() {
	slotExhaustedTotal.Inc()
}
