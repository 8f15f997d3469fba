package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	transport "github.com/fluxcd/bluegreen/pkg/http"
	"github.com/fluxcd/bluegreen/pkg/http/client"
	"github.com/fluxcd/bluegreen/pkg/http/httperror"
)

// decideOpts backs both approve and reject.
type decideOpts struct {
	*rootOpts
	approve bool
	build   int
	reason  string
	timeout time.Duration
}

func newApprove(parent *rootOpts) *decideOpts {
	return &decideOpts{rootOpts: parent, approve: true}
}

func newReject(parent *rootOpts) *decideOpts {
	return &decideOpts{rootOpts: parent}
}

func (opts *decideOpts) Command() *cobra.Command {
	verb := "reject"
	if opts.approve {
		verb = "approve"
	}
	cmd := &cobra.Command{
		Use:   verb,
		Short: fmt.Sprintf("%s the traffic switch a release is waiting on", verb),
		Example: makeExample(
			fmt.Sprintf("bluegreen %s --confirm-url http://ci-runner:3031 --reason 'checked the dashboards'", verb),
			fmt.Sprintf("BLUEGREEN_CONFIRM_TOKEN=s3cret bluegreen %s --build 42", verb),
		),
		RunE: opts.RunE,
	}
	cmd.Flags().IntVar(&opts.build, "build", 0, "only decide if this build is the one waiting")
	cmd.Flags().StringVarP(&opts.reason, "reason", "m", "", "reason for the decision, logged by the release")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long to wait for the release to answer")
	return cmd
}

func (opts *decideOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	api := client.New(http.DefaultClient, transport.NewAPIRouter(), opts.cfg.ConfirmURL, client.Token(opts.cfg.ConfirmToken))

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	decide := api.Reject
	if opts.approve {
		decide = api.Approve
	}
	req, err := decide(ctx, opts.build, opts.reason)
	var apiErr *httperror.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.IsMissing():
		return fmt.Errorf("%s does not look like a bluegreen approval API: %s", opts.cfg.ConfirmURL, apiErr)
	case errors.As(err, &apiErr) && apiErr.IsUnavailable():
		return fmt.Errorf("approval API at %s is unavailable; has the release stopped waiting? %s", opts.cfg.ConfirmURL, apiErr)
	case err != nil:
		return err
	}
	verb := "rejected"
	if opts.approve {
		verb = "approved"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verb, req)
	return nil
}
