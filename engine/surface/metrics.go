package surface

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindLabel = "kind"
)

var (
	surfacesBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_surfaces_built_total",
		Help: "The total number of ground surfaces built.",
	}, []string{kindLabel})

	candidatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_candidates_skipped_total",
		Help: "The total number of surface candidates skipped for missing geometry.",
	}, []string{kindLabel})
)

func instrumentSurfaceBuilt(k Kind) {
	surfacesBuilt.
		With(prometheus.Labels{kindLabel: k.String()}).
		Inc()
}

func instrumentCandidateSkipped(k Kind) {
	candidatesSkipped.
		With(prometheus.Labels{kindLabel: k.String()}).
		Inc()
}
