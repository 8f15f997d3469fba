package kubernetes

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	rest "k8s.io/client-go/rest"
)

// Kubectl applies manifests by piping them to `kubectl apply`, using
// the same connection details as the API client.
type Kubectl struct {
	exe       string
	config    *rest.Config
	namespace string
}

func NewKubectl(exe string, config *rest.Config, namespace string) *Kubectl {
	return &Kubectl{
		exe:       exe,
		config:    config,
		namespace: namespace,
	}
}

func (c *Kubectl) connectArgs() []string {
	var args []string
	if c.config.Host != "" {
		args = append(args, fmt.Sprintf("--server=%s", c.config.Host))
	}
	if c.config.Username != "" {
		args = append(args, fmt.Sprintf("--username=%s", c.config.Username))
	}
	if c.config.Password != "" {
		args = append(args, fmt.Sprintf("--password=%s", c.config.Password))
	}
	tls := c.config.TLSClientConfig
	for _, f := range []struct{ flag, value string }{
		{"--client-certificate", tls.CertFile},
		{"--certificate-authority", tls.CAFile},
		{"--client-key", tls.KeyFile},
	} {
		if f.value != "" {
			args = append(args, f.flag+"="+f.value)
		}
	}
	if c.config.BearerToken != "" {
		args = append(args, fmt.Sprintf("--token=%s", c.config.BearerToken))
	}
	if c.namespace != "" {
		args = append(args, fmt.Sprintf("--namespace=%s", c.namespace))
	}
	return args
}

func (c *Kubectl) Apply(ctx context.Context, logger log.Logger, def []byte) error {
	return c.doCommand(ctx, logger, def, "apply")
}

func (c *Kubectl) doCommand(ctx context.Context, logger log.Logger, stdin []byte, args ...string) error {
	args = append(append(c.connectArgs(), args...), "-f", "-")
	cmd := exec.CommandContext(ctx, c.exe, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout := &bytes.Buffer{}
	cmd.Stdout = stdout

	begin := time.Now()
	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		err = errors.Wrap(errors.New(msg), "running kubectl")
	}

	logger.Log("cmd", "kubectl "+strings.Join(args[len(args)-3:], " "), "took", time.Since(begin), "err", err, "output", strings.TrimSpace(stdout.String()))
	return err
}
