package release

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcd/bluegreen/pkg/color"
	fluxmetrics "github.com/fluxcd/bluegreen/pkg/metrics"
)

var (
	releaseDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "bluegreen",
		Subsystem: "release",
		Name:      "duration_seconds",
		Help:      "Duration of whole releases, in seconds.",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 900, 1800, 3600},
	}, []string{fluxmetrics.LabelColor, fluxmetrics.LabelSuccess})
	stageDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "bluegreen",
		Subsystem: "release",
		Name:      "stage_duration_seconds",
		Help:      "Duration in seconds of each stage of a release.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 900},
	}, []string{fluxmetrics.LabelStage})
)

func NewStageTimer(stage Stage) *metrics.Timer {
	return metrics.NewTimer(stageDuration.With(fluxmetrics.LabelStage, string(stage)))
}

func ObserveRelease(start time.Time, success bool, c color.Color) {
	releaseDuration.With(
		fluxmetrics.LabelColor, string(c),
		fluxmetrics.LabelSuccess, fmt.Sprint(success),
	).Observe(time.Since(start).Seconds())
}
