package errors

import (
	"encoding/json"
	"errors"
)

// Error is how a failure is presented to whoever ran the release,
// whether at the terminal or through the approval API. The Type says
// whose move it is next:
//  - Server: something outside the release went wrong; trying again may work
//  - Missing: a thing that was named does not exist
//  - User: nothing will change until the operator changes something
type Error struct {
	Type Type
	// printed for the operator
	Help string `json:"help"`
	// the cause, for logs
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Help
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Type string

const (
	Server  Type = "server"
	Missing Type = "missing"
	User    Type = "user"
)

func IsMissing(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == Missing
}

type jsonError struct {
	Type string `json:"type"`
	Help string `json:"help"`
	Err  string `json:"error,omitempty"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	var errMsg string
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	return json.Marshal(jsonError{
		Type: string(e.Type),
		Help: e.Help,
		Err:  errMsg,
	})
}

func (e *Error) UnmarshalJSON(data []byte) error {
	var j jsonError
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.Type = Type(j.Type)
	e.Help = j.Help
	if j.Err != "" {
		e.Err = errors.New(j.Err)
	}
	return nil
}

// CoverAllError is for failures nobody wrote a help message for.
func CoverAllError(err error) *Error {
	return &Error{
		Type: User,
		Err:  err,
		Help: `Error: ` + err.Error() + `

There is no specific help for the error above. The release was stopped
at the stage named in the log; nothing that was already done has been
undone. Check the state of the cluster with

    bluegreen status

before running the release again.
`,
	}
}
