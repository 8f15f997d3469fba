package http

import (
	"errors"

	fluxerr "github.com/fluxcd/bluegreen/pkg/errors"
)

var ErrorUnauthorized = &fluxerr.Error{
	Type: fluxerr.User,
	Help: `The request failed authentication

The approval endpoint was started with a token, and this request did
not carry it. Supply the same token with --confirm-token, or by
setting BLUEGREEN_CONFIRM_TOKEN.
`,
	Err: errors.New("request failed authentication"),
}

var ErrorNothingPending = &fluxerr.Error{
	Type: fluxerr.Missing,
	Help: `There is no release waiting for confirmation.

Either the release has not reached the switch yet, or the window for
confirming it has passed, or it has already been decided.
`,
	Err: errors.New("no release waiting for confirmation"),
}

func MakeBuildMismatch(expected, got string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Help: `The release waiting for confirmation is build ` + expected + `, not
build ` + got + `. Check which release you meant to decide with

    bluegreen approve --confirm-url <url> --build <build>
`,
		Err: errors.New("build mismatch"),
	}
}

func MakeAPINotFound(path string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Missing,
		Help: `The API endpoint requested is not supported by this server.

This indicates that your client (bluegreen approve/reject) is a
different version to the release waiting for confirmation. The path
requested was

    ` + path + `
`,
		Err: errors.New("API endpoint not found"),
	}
}
