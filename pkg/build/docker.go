package build

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/image"
)

const defaultDocker = "docker"

// DockerCLI builds, tags and pushes images by running the docker
// client, so whatever daemon and credentials docker is configured
// with are used.
type DockerCLI struct {
	// Binary defaults to `docker` on the PATH.
	Binary string
	// Dockerfile is passed as --file when set; otherwise docker looks
	// in the context directory.
	Dockerfile string
	Logger     log.Logger
}

func (d *DockerCLI) Build(ctx context.Context, contextDir string, ref image.Ref) error {
	args := []string{"build", "--tag", ref.String()}
	if d.Dockerfile != "" {
		args = append(args, "--file", d.Dockerfile)
	}
	return d.doCommand(ctx, append(args, contextDir)...)
}

func (d *DockerCLI) Tag(ctx context.Context, src, dst image.Ref) error {
	return d.doCommand(ctx, "tag", src.String(), dst.String())
}

func (d *DockerCLI) Push(ctx context.Context, ref image.Ref) error {
	return d.doCommand(ctx, "push", ref.String())
}

func (d *DockerCLI) doCommand(ctx context.Context, args ...string) error {
	binary := d.Binary
	if binary == "" {
		binary = defaultDocker
	}
	return runCommand(ctx, d.Logger, binary, args...)
}

// CommandLoader makes an image available to a cluster's container
// runtime without a registry, by running a command such as
// `kind load docker-image` with the image appended.
type CommandLoader struct {
	Command []string
	Logger  log.Logger
}

// NewCommandLoader splits a command line on whitespace.
func NewCommandLoader(commandLine string, logger log.Logger) (*CommandLoader, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("empty load command")
	}
	return &CommandLoader{Command: fields, Logger: logger}, nil
}

func (l *CommandLoader) Load(ctx context.Context, ref image.Ref) error {
	args := append(append([]string{}, l.Command[1:]...), ref.String())
	return runCommand(ctx, l.Logger, l.Command[0], args...)
}

func runCommand(ctx context.Context, logger log.Logger, binary string, args ...string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
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
		err = errors.Wrapf(errors.New(msg), "running %s", binary)
	}

	logger.Log("cmd", binary+" "+strings.Join(args, " "), "took", time.Since(begin), "err", err, "output", lastLine(stdout.String()))
	return err
}

// lastLine keeps logs short; docker build output is long, and only
// its end says anything useful.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
