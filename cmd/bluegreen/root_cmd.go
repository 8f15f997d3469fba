package main

import (
	"flag"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/klog"

	"github.com/fluxcd/bluegreen/pkg/cluster/kubernetes"
	"github.com/fluxcd/bluegreen/pkg/config"
)

type rootOpts struct {
	viper      *viper.Viper
	configFile string
	logOut     io.Writer

	cfg    config.Config
	logger log.Logger
}

func newRoot() *rootOpts {
	return &rootOpts{viper: viper.New(), logOut: os.Stderr}
}

var rootLongHelp = strings.TrimSpace(`
bluegreen releases an application into whichever of its two slots,
blue or green, is not taking traffic; waits for it to be ready; and
then, once confirmed, points the Service at it and removes the other.

Workflow:
  bluegreen release -a myapp -f k8s/deployment.yaml --build-id 42 --push  # Build, push and release build 42.
  bluegreen status -a myapp                                               # Which slot is live?
  bluegreen approve --confirm-url http://ci-runner:3031                   # Let a waiting release switch traffic.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "bluegreen",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML config file; flags and the environment override what it says")

	bail := func(err error) {
		panic(err)
	}
	defineConfigFlags(cmd.PersistentFlags(), opts.viper, bail)
	if err := bindConfigEnv(opts.viper); err != nil {
		bail(err)
	}
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(opts.viper, opts.configFile)
	if err != nil {
		return err
	}
	opts.cfg = cfg

	opts.logger = newLogger(opts.cfg.LogFormat, opts.logOut)
	initKlog(opts.cfg.K8sVerbosity)
	return nil
}

// newLogger makes the process logger: logfmt, or JSON if asked for.
func newLogger(format string, out io.Writer) log.Logger {
	var logger log.Logger
	switch format {
	case "json":
		logger = log.NewJSONLogger(log.NewSyncWriter(out))
	default:
		logger = log.NewLogfmtLogger(log.NewSyncWriter(out))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	return logger
}

// initKlog sends client-go's own logging to stderr at the verbosity
// given.
func initKlog(verbosity int) {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	fs.Set("logtostderr", "true")
	fs.Set("v", strconv.Itoa(verbosity))
}

// cluster connects to the cluster named by the kubernetes settings.
func (opts *rootOpts) cluster() (*kubernetes.Cluster, error) {
	restConfig, namespace, err := kubernetes.ClientConfig(opts.cfg.K8sKubeconfig, opts.cfg.K8sMaster, opts.cfg.K8sNamespace)
	if err != nil {
		return nil, err
	}
	client, err := k8sclient.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	var applier kubernetes.Applier
	if opts.cfg.Kubectl != "" {
		applier = kubernetes.NewKubectl(opts.cfg.Kubectl, restConfig, namespace)
	}
	logger := log.With(opts.logger, "component", "cluster", "namespace", namespace)
	return kubernetes.NewCluster(client, namespace, applier, logger), nil
}

func makeExample(examples ...string) string {
	return "  " + strings.Join(examples, "\n  ")
}
