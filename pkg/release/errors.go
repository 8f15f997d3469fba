package release

import (
	"errors"
	"fmt"

	fluxerr "github.com/fluxcd/bluegreen/pkg/errors"
)

// Kind classifies why a release stopped. A Kind is itself an error,
// so that errors.Is(err, release.TimedOut) works on anything a stage
// returns.
type Kind string

const (
	// ResolutionAmbiguous is logged; it never stops a release.
	ResolutionAmbiguous Kind = "ResolutionAmbiguous"
	BuildError          Kind = "BuildError"
	PublishError        Kind = "PublishError"
	ManifestError       Kind = "ManifestError"
	ApplyError          Kind = "ApplyError"
	ImageBindError      Kind = "ImageBindError"
	ReadinessError      Kind = "ReadinessError"
	TimedOut            Kind = "TimedOut"
	SwitchTimeout       Kind = "SwitchTimeout"
	SwitchRejected      Kind = "SwitchRejected"
	SwitchError         Kind = "SwitchError"
)

func (k Kind) Error() string {
	return string(k)
}

type Stage string

const (
	StageResolve Stage = "resolve"
	StagePublish Stage = "publish"
	StageDeploy  Stage = "deploy"
	StageAwait   Stage = "await"
	StageSwitch  Stage = "switch"
)

// Error is a failed release stage.
type Error struct {
	Stage Stage
	Kind  Kind
	Err   error
}

// Errorf makes an Error of the given kind; the stage is filled in by
// the orchestrator.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap makes an Error of the given kind from err.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of a stage error, or the empty Kind if err
// does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

var help = map[Kind]string{
	BuildError: `The image could not be built. Check the output of the image
builder in the log above; nothing has been changed in the cluster.
`,
	PublishError: `The image was built, but could not be made available to the
cluster. If pushing, check the registry credentials in your docker
config; otherwise check the load command. Nothing has been changed
in the cluster.
`,
	ManifestError: `The deployment manifest could not be read or turned into the
manifest for the target slot. The canonical manifest must contain one
apps/v1 Deployment named <app>-blue, labelled with the color label
set to blue. Nothing has been changed in the cluster.
`,
	ApplyError: `The cluster refused the manifests. The Service selector has not
been changed, so traffic is still going to the live slot.
`,
	ImageBindError: `The new image could not be set on the target deployment. The
Service selector has not been changed, so traffic is still going to
the live slot.
`,
	ReadinessError: `The target deployment could not be queried while waiting for it
to become ready. Traffic is still going to the live slot; the target
slot has been left as it is.
`,
	TimedOut: `The target deployment did not become ready in time. Traffic is
still going to the live slot; the target slot has been left running
so you can inspect it, e.g., with

    kubectl describe deployment <app>-<color>
`,
	SwitchTimeout: `Nobody confirmed the switch in time. The new slot is running and
ready, but traffic is still going to the live slot. Run the release
again to retry.
`,
	SwitchRejected: `The switch was rejected. The new slot is running and ready, but
traffic is still going to the live slot.
`,
	SwitchError: `Switching traffic or removing the old slot failed. Check which slot
the Service selects with

    bluegreen status

If the selector was patched, traffic is on the new slot and the old
slot may need deleting by hand.
`,
}

// MakeUserError turns a release failure into something to show the
// operator.
func MakeUserError(err error) *fluxerr.Error {
	var e *Error
	if !errors.As(err, &e) {
		return fluxerr.CoverAllError(err)
	}
	h, ok := help[e.Kind]
	if !ok {
		return fluxerr.CoverAllError(err)
	}
	typ := fluxerr.User
	switch e.Kind {
	case ReadinessError, SwitchError, PublishError:
		typ = fluxerr.Server
	}
	return &fluxerr.Error{
		Type: typ,
		Err:  err,
		Help: `The release stopped at stage "` + string(e.Stage) + `", with this message:

    ` + err.Error() + `

` + h,
	}
}
