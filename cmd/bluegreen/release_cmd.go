package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fluxcd/bluegreen/pkg/build"
	"github.com/fluxcd/bluegreen/pkg/cluster"
	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/config"
	"github.com/fluxcd/bluegreen/pkg/deploy"
	"github.com/fluxcd/bluegreen/pkg/gate"
	"github.com/fluxcd/bluegreen/pkg/image"
	"github.com/fluxcd/bluegreen/pkg/manifest"
	"github.com/fluxcd/bluegreen/pkg/registry"
	"github.com/fluxcd/bluegreen/pkg/registry/middleware"
	"github.com/fluxcd/bluegreen/pkg/release"
	"github.com/fluxcd/bluegreen/pkg/rollout"
	"github.com/fluxcd/bluegreen/pkg/traffic"
)

type releaseOpts struct {
	*rootOpts
}

func newRelease(parent *rootOpts) *releaseOpts {
	return &releaseOpts{rootOpts: parent}
}

func (opts *releaseOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Build, deploy and switch traffic to a new release",
		Example: makeExample(
			"bluegreen release -a myapp -f k8s/deployment.yaml --build-id 42 --push",
			"BUILD_NUMBER=42 bluegreen release --config bluegreen.yaml --confirm=http",
		),
		RunE: opts.RunE,
	}
}

func (opts *releaseOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	cfg := opts.cfg
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}
	logger := log.With(opts.logger, "app", cfg.App)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 2)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-c:
			logger.Log("signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.ListenMetrics != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Log("addr", cfg.ListenMetrics, "serving", "metrics")
			errc <- http.ListenAndServe(cfg.ListenMetrics, mux)
		}()
	}

	k8s, err := opts.cluster()
	if err != nil {
		return err
	}

	confirmer, err := opts.confirmer(errc, logger)
	if err != nil {
		return err
	}

	orchestrator, err := newOrchestrator(cfg, k8s, confirmer, logger)
	if err != nil {
		return err
	}

	type outcome struct {
		res release.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := orchestrator.Run(ctx, cfg.BuildID)
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case err := <-errc:
		// a listener failed; stop the release where it is
		logger.Log("listener", "failed", "err", err)
		cancel()
		out = <-done
	}
	if out.err != nil {
		return out.err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "released build %d as %s (%s) in %s\n",
		cfg.BuildID, out.res.Release.Color, out.res.Release.Image, out.res.Took.Round(time.Millisecond))
	return nil
}

// confirmer makes the Confirmer the config asks for. For the HTTP
// gate this starts its listener, which reports on errc if it fails.
func (opts *releaseOpts) confirmer(errc chan<- error, logger log.Logger) (gate.Confirmer, error) {
	cfg := opts.cfg
	switch cfg.Confirm {
	case gate.ModeAuto:
		return gate.Auto{}, nil
	case gate.ModeHTTP:
		server := gate.NewServer(cfg.ConfirmToken, getVersion(), log.With(logger, "component", "gate"))
		go func() {
			logger.Log("addr", cfg.ConfirmListen, "serving", "approval API")
			errc <- http.ListenAndServe(cfg.ConfirmListen, server.Handler())
		}()
		return server, nil
	default:
		return &gate.Prompt{In: os.Stdin, Out: os.Stderr}, nil
	}
}

// newOrchestrator wires every release stage from the config.
func newOrchestrator(cfg config.Config, k8s cluster.Cluster, confirmer gate.Confirmer, logger log.Logger) (*release.Orchestrator, error) {
	resolver, err := color.NewResolver(cfg.Resolver, k8s, cfg.App, cfg.Service, cfg.ColorLabel, log.With(logger, "component", "resolver"))
	if err != nil {
		return nil, err
	}
	publisher, err := newPublisher(cfg, log.With(logger, "component", "publisher"))
	if err != nil {
		return nil, err
	}
	manifests := manifest.Source{
		DeploymentPath: cfg.DeploymentManifest,
		ServicePath:    cfg.ServiceManifest,
	}
	return &release.Orchestrator{
		Resolver:  resolver,
		Publisher: publisher,
		Deployer: &deploy.Deployer{
			Cluster:   k8s,
			Manifests: manifests,
			App:       cfg.App,
			LabelKey:  cfg.ColorLabel,
			Container: cfg.Container,
			Logger:    log.With(logger, "component", "deployer"),
		},
		Waiter: &rollout.Waiter{
			Cluster:      k8s,
			PollInterval: cfg.RolloutPollInterval,
			Logger:       log.With(logger, "component", "rollout"),
		},
		Switcher: &traffic.Switcher{
			Cluster:   k8s,
			Manifests: manifests,
			Service:   cfg.Service,
			LabelKey:  cfg.ColorLabel,
			Confirmer: confirmer,
			Window:    cfg.ConfirmWindow,
			Logger:    log.With(logger, "component", "switcher"),
		},
		RolloutTimeout: cfg.RolloutTimeout,
		Logger:         logger,
	}, nil
}

// newPublisher makes the image publisher: docker builds, then either
// a push (checked against the registry if asked) or a load command.
func newPublisher(cfg config.Config, logger log.Logger) (*build.Publisher, error) {
	repo, err := image.ParseName(cfg.Image)
	if err != nil {
		return nil, err
	}
	p := &build.Publisher{
		Builder: &build.DockerCLI{
			Binary:     cfg.Docker,
			Dockerfile: cfg.Dockerfile,
			Logger:     logger,
		},
		Repository: repo,
		ContextDir: cfg.BuildContext,
		Push:       cfg.Push,
		Logger:     logger,
	}

	switch {
	case cfg.Push && cfg.VerifyPush:
		creds, err := registry.CredentialsFromFile(cfg.DockerConfig)
		if err != nil {
			return nil, err
		}
		registryLogger := log.With(logger, "component", "registry")
		p.Verifier = &registry.Verifier{
			Factory: &registry.RemoteClientFactory{
				Logger: registryLogger,
				Limiters: &middleware.RateLimiters{
					RPS:    cfg.RegistryRPS,
					Burst:  cfg.RegistryBurst,
					Logger: registryLogger,
				},
				Trace:         cfg.RegistryTrace,
				InsecureHosts: cfg.RegistryInsecureHost,
			},
			Credentials: creds,
			Logger:      registryLogger,
		}
	case !cfg.Push && cfg.LoadCommand != "":
		loader, err := build.NewCommandLoader(cfg.LoadCommand, logger)
		if err != nil {
			return nil, err
		}
		p.Loader = loader
	}
	return p, nil
}
