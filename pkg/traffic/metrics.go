package traffic

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcd/bluegreen/pkg/color"
	fluxmetrics "github.com/fluxcd/bluegreen/pkg/metrics"
)

var (
	activeColor = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "bluegreen",
		Subsystem: "traffic",
		Name:      "active",
		Help:      "Whether a slot is the one the service selects.",
	}, []string{fluxmetrics.LabelColor})
)

func observeActive(c color.Color) {
	activeColor.With(fluxmetrics.LabelColor, string(c)).Set(1)
	activeColor.With(fluxmetrics.LabelColor, string(c.Other())).Set(0)
}
