package main

import (
	"errors"
	"fmt"
	"os"

	fluxerr "github.com/fluxcd/bluegreen/pkg/errors"
	"github.com/fluxcd/bluegreen/pkg/release"
)

func main() {
	root := newRoot()
	rootCmd := root.Command()
	rootCmd.AddCommand(
		newRelease(root).Command(),
		newStatus(root).Command(),
		newApprove(root).Command(),
		newReject(root).Command(),
		newVersionCommand(),
	)

	if cmd, err := rootCmd.ExecuteC(); err != nil {
		switch err.(type) {
		case usageError:
			fmt.Fprintln(os.Stderr, "Error:", err)
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		default:
			var userErr *fluxerr.Error
			switch {
			case release.KindOf(err) != "":
				fmt.Fprintln(os.Stderr, release.MakeUserError(err).Help)
			case errors.As(err, &userErr) && userErr.Help != "":
				fmt.Fprintln(os.Stderr, userErr.Help)
			default:
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		}
		os.Exit(1)
	}
}
