package kubernetes

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/bluegreen/pkg/metrics"
)

var (
	requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "bluegreen",
		Subsystem: "cluster",
		Name:      "request_duration_seconds",
		Help:      "Duration of control plane requests, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelVerb, fluxmetrics.LabelKind, fluxmetrics.LabelSuccess})
)

func observeRequest(verb, kind string, start time.Time, err error) {
	requestDuration.With(
		fluxmetrics.LabelVerb, verb,
		fluxmetrics.LabelKind, kind,
		fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
	).Observe(time.Since(start).Seconds())
}
