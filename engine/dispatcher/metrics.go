package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_dispatch_total",
		Help: "The total number of sample kernel dispatches.",
	})

	readbackErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_readback_errors_total",
		Help: "The total number of sample readbacks that completed with an error.",
	})
)

func instrumentDispatch() {
	dispatchTotal.Inc()
}

func instrumentReadbackError() {
	readbackErrorsTotal.Inc()
}
