package bake

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"

	resultBaked   = "baked"
	resultSkipped = "skipped"
	resultFailed  = "failed"
)

var (
	bakeStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_bake_steps_total",
		Help: "The total number of mask bake steps by result.",
	}, []string{resultLabel})
)

func instrumentBakeStep(result string) {
	bakeStepsTotal.
		With(prometheus.Labels{resultLabel: result}).
		Inc()
}
