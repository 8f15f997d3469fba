package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/config"
	"github.com/fluxcd/bluegreen/pkg/gate"
	"github.com/fluxcd/bluegreen/pkg/release"
	"github.com/fluxcd/bluegreen/pkg/rollout"
	"github.com/fluxcd/bluegreen/pkg/traffic"
)

// defineConfigFlags defines the flags that can also be set in a
// config file or the environment, and binds each to the config field
// of the same name in v.
func defineConfigFlags(fs *pflag.FlagSet, v *viper.Viper, bail func(error)) {

	bind := func(fieldName, flagName string) error {
		configStruct := reflect.TypeOf(config.Config{})
		field, ok := configStruct.FieldByName(fieldName)
		if !ok {
			return fmt.Errorf("attempt to bind a flag to a field not present in config.Config, %q", fieldName)
		}
		// this follows github.com/mitchellh/mapstructure, except that
		// a field marked `mapstructure:"-"` is an error here
		mappedName := field.Name
		if namePart := strings.Split(field.Tag.Get("mapstructure"), ",")[0]; namePart != "" {
			if namePart == "-" {
				return fmt.Errorf(`attempt to bind a flag to a config field tagged as ignored, %q`, field.Name)
			}
			mappedName = namePart
		}
		return v.BindPFlag(mappedName, fs.Lookup(flagName))
	}

	bindOrBail := func(fieldName, flagName string) {
		if err := bind(fieldName, flagName); err != nil {
			bail(err)
		}
	}

	defineString := func(fieldName, flagName, def, desc string) {
		fs.String(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineStringP := func(fieldName, flagName, short, def, desc string) {
		fs.StringP(flagName, short, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineStringSlice := func(fieldName, flagName string, def []string, desc string) {
		fs.StringSlice(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineBool := func(fieldName, flagName string, def bool, desc string) {
		fs.Bool(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineDuration := func(fieldName, flagName string, def time.Duration, desc string) {
		fs.Duration(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineInt := func(fieldName, flagName string, def int, desc string) {
		fs.Int(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineFloat64 := func(fieldName, flagName string, def float64, desc string) {
		fs.Float64(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineString("LogFormat", "log-format", "fmt", "change the log format (fmt or json)")
	defineString("ListenMetrics", "listen-metrics", "", "listen address for /metrics endpoint; not served if empty")

	defineInt("BuildID", "build-id", 0, fmt.Sprintf("monotonically increasing build number; defaults to $%s", config.EnvBuildNumber))

	// the application
	defineStringP("App", "app", "a", "", "name of the application; the slots are <app>-blue and <app>-green")
	defineString("Service", "service", "", "name of the Service routing traffic to the live slot; defaults to the app name")
	defineString("Container", "container", "", "container to set the release image on; defaults to the first container")
	defineString("ColorLabel", "color-label", "color", "label key carrying the slot color on pods and in the Service selector")
	defineString("Resolver", "resolver", color.StrategySelector, fmt.Sprintf("how to decide the target color (one of {%s})", strings.Join([]string{color.StrategySelector, color.StrategyBlueReplicas}, ",")))

	// manifests
	defineStringP("DeploymentManifest", "deployment-manifest", "f", "", "path to the canonical Deployment manifest")
	defineString("ServiceManifest", "service-manifest", "", "path to the Service manifest; defaults to the Deployment manifest file")

	// building and publishing
	defineStringP("Image", "image", "i", "", "image repository to build into; defaults to the app name")
	defineString("BuildContext", "build-context", ".", "directory given to the image build")
	defineString("Dockerfile", "dockerfile", "", "Dockerfile to build with; defaults to the one in the build context")
	defineString("Docker", "docker", "docker", "docker CLI to build, tag and push with")
	defineBool("Push", "push", false, "push the build and color tags to the registry")
	defineBool("VerifyPush", "verify-push", true, "after pushing, check the registry serves the build tag")
	defineString("LoadCommand", "load-command", "", "command to make a local image available to the cluster instead of pushing, e.g. 'kind load docker-image'; the image is appended")

	// registry
	defineString("DockerConfig", "docker-config", "", "path to a docker config to use for image registry credentials")
	defineFloat64("RegistryRPS", "registry-rps", 50, "maximum registry requests per second per host")
	defineInt("RegistryBurst", "registry-burst", 10, "maximum registry requests in a burst per host")
	defineBool("RegistryTrace", "registry-trace", false, "output trace of image registry requests to log")
	defineStringSlice("RegistryInsecureHost", "registry-insecure-host", []string{}, "let these registry hosts skip TLS host verification and fall back to using HTTP instead of HTTPS; this allows man-in-the-middle attacks, so use with extreme caution")

	// rollout
	defineDuration("RolloutTimeout", "rollout-timeout", release.DefaultRolloutTimeout, "how long to wait for the target slot to become ready")
	defineDuration("RolloutPollInterval", "rollout-poll-interval", rollout.DefaultPollInterval, "how often to check the target slot while waiting")

	// confirmation
	defineString("Confirm", "confirm", gate.ModePrompt, fmt.Sprintf("how the traffic switch is confirmed (one of {%s})", strings.Join([]string{gate.ModePrompt, gate.ModeHTTP, gate.ModeAuto}, ",")))
	defineDuration("ConfirmWindow", "confirm-window", traffic.DefaultWindow, "how long to wait for confirmation before giving up on the switch")
	defineString("ConfirmListen", "confirm-listen", ":3031", "listen address of the approval API when --confirm=http")
	defineString("ConfirmURL", "confirm-url", "http://localhost:3031", "base URL of a release's approval API, for approve and reject")
	defineString("ConfirmToken", "confirm-token", "", fmt.Sprintf("bearer token for the approval API; defaults to $%s", config.EnvConfirmToken))

	// kubernetes
	defineString("K8sKubeconfig", "kubeconfig", "", "path to a kubeconfig; defaults to $KUBECONFIG, ~/.kube/config or the in-cluster config")
	defineString("K8sMaster", "master", "", "address of the Kubernetes API server; overrides any value in kubeconfig")
	defineStringP("K8sNamespace", "namespace", "n", "", "namespace to release into; defaults to the kubeconfig context's")
	defineInt("K8sVerbosity", "k8s-verbosity", 0, "klog verbosity level")
	defineString("Kubectl", "kubectl", "", "apply manifests with this kubectl binary instead of the API client")
}

// bindConfigEnv lets the environment supply settings that CI systems
// usually provide that way.
func bindConfigEnv(v *viper.Viper) error {
	if err := v.BindEnv("buildId", config.EnvBuildNumber); err != nil {
		return err
	}
	return v.BindEnv("confirmToken", config.EnvConfirmToken)
}

// loadConfig merges the config file (if one is given), the
// environment and the flags, in rising order of precedence.
func loadConfig(v *viper.Viper, path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(config.ConfigType)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config file %s: %s", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if path != "" {
		if err := cfg.IsValid(); err != nil {
			return cfg, fmt.Errorf("%s: %s", path, err)
		}
	}
	if err := cfg.Complete(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
