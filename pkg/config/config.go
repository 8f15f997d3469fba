// Package config is the configuration of a bluegreen release, as it
// may be given in a config file, flags or the environment.
package config

import (
	"fmt"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/gate"
)

const (
	ConfigType             = "yaml"
	BluegreenConfigVersion = "v1"

	// EnvBuildNumber is the CI build counter, used when no build id
	// is given as a flag.
	EnvBuildNumber  = "BUILD_NUMBER"
	EnvConfirmToken = "BLUEGREEN_CONFIRM_TOKEN"
)

type Config struct {
	// This is expected to be present in a config file (and will not
	// correspond to a flag). If it is not equal to
	// BluegreenConfigVersion above, the file is considered invalid.
	ConfigVersion string `mapstructure:"bluegreenConfigVersion"`

	LogFormat     string `mapstructure:"logFormat"`
	ListenMetrics string `mapstructure:"listenMetrics"`

	BuildID int `mapstructure:"buildId"`

	App        string `mapstructure:"app"`
	Service    string `mapstructure:"service"`
	Container  string `mapstructure:"container"`
	ColorLabel string `mapstructure:"colorLabel"`
	Resolver   string `mapstructure:"resolver"`

	DeploymentManifest string `mapstructure:"deploymentManifest"`
	ServiceManifest    string `mapstructure:"serviceManifest"`

	Image        string `mapstructure:"image"`
	BuildContext string `mapstructure:"buildContext"`
	Dockerfile   string `mapstructure:"dockerfile"`
	Docker       string `mapstructure:"docker"`
	Push         bool   `mapstructure:"push"`
	VerifyPush   bool   `mapstructure:"verifyPush"`
	LoadCommand  string `mapstructure:"loadCommand"`

	DockerConfig         string   `mapstructure:"dockerConfig"`
	RegistryRPS          float64  `mapstructure:"registryRps"`
	RegistryBurst        int      `mapstructure:"registryBurst"`
	RegistryTrace        bool     `mapstructure:"registryTrace"`
	RegistryInsecureHost []string `mapstructure:"registryInsecureHost"`

	RolloutTimeout      time.Duration `mapstructure:"rolloutTimeout"`
	RolloutPollInterval time.Duration `mapstructure:"rolloutPollInterval"`

	Confirm       string        `mapstructure:"confirm"`
	ConfirmWindow time.Duration `mapstructure:"confirmWindow"`
	ConfirmListen string        `mapstructure:"confirmListen"`
	ConfirmURL    string        `mapstructure:"confirmUrl"`
	ConfirmToken  string        `mapstructure:"confirmToken"`

	K8sKubeconfig string `mapstructure:"k8sKubeconfig"`
	K8sMaster     string `mapstructure:"k8sMaster"`
	K8sNamespace  string `mapstructure:"k8sNamespace"`
	K8sVerbosity  int    `mapstructure:"k8sVerbosity"`
	Kubectl       string `mapstructure:"kubectl"`
}

// IsValid checks a config read from a file is meant for bluegreen.
func (c Config) IsValid() error {
	if c.ConfigVersion != BluegreenConfigVersion {
		return fmt.Errorf("config file is expected to include `bluegreenConfigVersion: %s` to mark it as a bluegreen config", BluegreenConfigVersion)
	}
	return nil
}

// Complete fills in the settings which default to other settings:
// the Service and the image repository are named after the app, and
// the Service manifest is looked for alongside the Deployment.
func (c *Config) Complete() error {
	return mergo.Merge(c, Config{
		Service:         c.App,
		Image:           c.App,
		ServiceManifest: c.DeploymentManifest,
	})
}

// Validate checks the settings needed for a release.
func (c Config) Validate() error {
	switch {
	case c.App == "":
		return errors.New("--app is required")
	case c.DeploymentManifest == "":
		return errors.New("--deployment-manifest is required")
	case c.ColorLabel == "":
		return errors.New("--color-label must not be empty")
	case c.BuildID < 1:
		return fmt.Errorf("a build id of 1 or more is required; use --build-id or set $%s", EnvBuildNumber)
	}
	switch c.Resolver {
	case color.StrategySelector, color.StrategyBlueReplicas:
	default:
		return fmt.Errorf("--resolver must be %q or %q, not %q", color.StrategySelector, color.StrategyBlueReplicas, c.Resolver)
	}
	switch c.Confirm {
	case gate.ModePrompt, gate.ModeAuto:
	case gate.ModeHTTP:
		if c.ConfirmListen == "" {
			return errors.New("--confirm=http needs --confirm-listen")
		}
	default:
		return fmt.Errorf("--confirm must be one of %q, %q or %q, not %q", gate.ModePrompt, gate.ModeHTTP, gate.ModeAuto, c.Confirm)
	}
	if c.Push && c.LoadCommand != "" {
		return errors.New("--push and --load-command cannot be used together")
	}
	return nil
}
