package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/bluegreen/pkg/config"
	"github.com/fluxcd/bluegreen/pkg/release"
)

func TestDefineEverything(t *testing.T) {
	flags := pflag.NewFlagSet("testflags", pflag.ContinueOnError)
	defineConfigFlags(flags, viper.New(), func(err error) {
		t.Error(err)
	})
}

func setenv(t *testing.T, key, value string) func() {
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	return func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	}
}

func parse(t *testing.T, args ...string) *viper.Viper {
	v := viper.New()
	fs := pflag.NewFlagSet("testflags", pflag.ContinueOnError)
	defineConfigFlags(fs, v, func(err error) {
		t.Fatal(err)
	})
	require.NoError(t, bindConfigEnv(v))
	require.NoError(t, fs.Parse(args))
	return v
}

func TestLoadConfigFlags(t *testing.T) {
	defer setenv(t, config.EnvBuildNumber, "")()

	v := parse(t, "--app", "myapp", "-f", "k8s/deployment.yaml", "--build-id", "4", "--registry-insecure-host", "localhost:5000")
	cfg, err := loadConfig(v, "")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.BuildID)
	assert.Equal(t, "myapp", cfg.Service)
	assert.Equal(t, "myapp", cfg.Image)
	assert.Equal(t, "k8s/deployment.yaml", cfg.ServiceManifest)
	assert.Equal(t, "color", cfg.ColorLabel)
	assert.Equal(t, "selector", cfg.Resolver)
	assert.Equal(t, "prompt", cfg.Confirm)
	assert.Equal(t, release.DefaultRolloutTimeout, cfg.RolloutTimeout)
	assert.True(t, cfg.VerifyPush)
	assert.Equal(t, []string{"localhost:5000"}, cfg.RegistryInsecureHost)
}

func writeConfig(t *testing.T, content string) (string, func()) {
	dir, err := ioutil.TempDir("", "bluegreen-config")
	require.NoError(t, err)
	path := filepath.Join(dir, "bluegreen.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0600))
	return path, func() { os.RemoveAll(dir) }
}

func TestLoadConfigFile(t *testing.T) {
	path, cleanup := writeConfig(t, `
bluegreenConfigVersion: v1
app: shop
service: shop-web
deploymentManifest: k8s/shop.yaml
rolloutTimeout: 2m
confirm: auto
`)
	defer cleanup()
	defer setenv(t, config.EnvBuildNumber, "17")()
	defer setenv(t, config.EnvConfirmToken, "s3cret")()

	// flags beat the file, and the environment beats the file
	v := parse(t, "--service", "shop-api")
	cfg, err := loadConfig(v, path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "shop", cfg.App)
	assert.Equal(t, "shop-api", cfg.Service)
	assert.Equal(t, 2*time.Minute, cfg.RolloutTimeout)
	assert.Equal(t, "auto", cfg.Confirm)
	assert.Equal(t, 17, cfg.BuildID)
	assert.Equal(t, "s3cret", cfg.ConfirmToken)

	// the flag beats the environment
	v = parse(t, "--build-id", "18")
	cfg, err = loadConfig(v, path)
	require.NoError(t, err)
	assert.Equal(t, 18, cfg.BuildID)
}

func TestLoadConfigFileNotForUs(t *testing.T) {
	path, cleanup := writeConfig(t, `
app: shop
`)
	defer cleanup()

	_, err := loadConfig(parse(t), path)
	assert.Error(t, err)

	_, err = loadConfig(parse(t), filepath.Join(filepath.Dir(path), "missing.yaml"))
	assert.Error(t, err)
}
