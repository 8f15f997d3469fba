// Package gate asks a human (or nobody) whether traffic may be
// switched to a newly deployed slot.
package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fluxcd/bluegreen/pkg/color"
)

const (
	ModePrompt = "prompt"
	ModeHTTP   = "http"
	ModeAuto   = "auto"
)

// Request describes the switch waiting for confirmation.
type Request struct {
	BuildID  int         `json:"buildID"`
	Service  string      `json:"service"`
	From     color.Color `json:"from"`
	To       color.Color `json:"to"`
	Deadline time.Time   `json:"deadline,omitempty"`
}

func (r Request) String() string {
	return fmt.Sprintf("switch service %s from %s to %s for build %d", r.Service, r.From, r.To, r.BuildID)
}

// Decision is the answer to a Request. BuildID, when given, must match
// the request being decided.
type Decision struct {
	BuildID int    `json:"buildID,omitempty"`
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

// Confirmer blocks until the request is decided or ctx is done; in
// the latter case it returns ctx.Err().
type Confirmer interface {
	Confirm(ctx context.Context, req Request) (Decision, error)
}

// Auto approves everything.
type Auto struct{}

func (Auto) Confirm(ctx context.Context, req Request) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	return Decision{BuildID: req.BuildID, Approve: true, Reason: "automatic"}, nil
}

// Prompt asks on a terminal. Only an answer of y or yes approves; an
// empty answer or end of input rejects.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p *Prompt) Confirm(ctx context.Context, req Request) (Decision, error) {
	question := req.String()
	question = strings.ToUpper(question[:1]) + question[1:]
	if req.Deadline.IsZero() {
		fmt.Fprintf(p.Out, "%s? [y/N] ", question)
	} else {
		fmt.Fprintf(p.Out, "%s (answer by %s)? [y/N] ", question, req.Deadline.Format(time.Kitchen))
	}

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)
	// A read from a terminal cannot be interrupted; if ctx is done
	// first, this goroutine is left to finish when the process exits.
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		answers <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.Out)
		return Decision{}, ctx.Err()
	case a := <-answers:
		if a.err != nil && a.err != io.EOF {
			return Decision{}, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return Decision{BuildID: req.BuildID, Approve: true, Reason: "confirmed at prompt"}, nil
		default:
			return Decision{BuildID: req.BuildID, Approve: false, Reason: "declined at prompt"}, nil
		}
	}
}
