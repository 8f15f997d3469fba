package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fluxcd/bluegreen/pkg/color"
)

type statusOpts struct {
	*rootOpts
}

func newStatus(parent *rootOpts) *statusOpts {
	return &statusOpts{rootOpts: parent}
}

func (opts *statusOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show which slot is live, and the state of both slots",
		Example: makeExample("bluegreen status -a myapp -n production"),
		RunE:    opts.RunE,
	}
}

func (opts *statusOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.cfg.App == "" {
		return newUsageError("--app is required")
	}
	k8s, err := opts.cluster()
	if err != nil {
		return err
	}
	st, err := color.Describe(context.Background(), k8s, opts.cfg.App, opts.cfg.Service, opts.cfg.ColorLabel, opts.cfg.Container)
	if err != nil {
		return err
	}
	return st.Write(cmd.OutOrStdout())
}
