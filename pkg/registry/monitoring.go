package registry

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/opencontainers/go-digest"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/bluegreen/pkg/metrics"
)

const RequestKindDigest = "digest"

var (
	remoteDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "bluegreen",
		Subsystem: "registry",
		Name:      "request_duration_seconds",
		Help:      "Duration of remote registry requests, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelKind, fluxmetrics.LabelRegistry, fluxmetrics.LabelSuccess})
)

type instrumentedClient struct {
	next     Client
	registry string
}

func NewInstrumentedClient(next Client, registry string) Client {
	return &instrumentedClient{next: next, registry: registry}
}

func (m *instrumentedClient) Digest(ctx context.Context, tag string) (res digest.Digest, err error) {
	start := time.Now()
	res, err = m.next.Digest(ctx, tag)
	remoteDuration.With(
		fluxmetrics.LabelKind, RequestKindDigest,
		fluxmetrics.LabelRegistry, m.registry,
		fluxmetrics.LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(start).Seconds())
	return
}
