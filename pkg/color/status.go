package color

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fluxcd/bluegreen/pkg/cluster"
)

// Slot is what the cluster says about one color's deployment.
type Slot struct {
	Color      Color
	Deployment string
	Present    bool
	Image      string
	Status     string
	Rollout    cluster.RolloutStatus
}

// Status is a snapshot of an application: which color the Service
// sends traffic to, and the state of both slots.
type Status struct {
	Service string
	// Live is empty if the Service is absent or selects neither color.
	Live  Color
	Slots []Slot
}

// Describe reads the current state of app from the cluster. Objects
// which are not there are reported as absent; any other error is
// returned.
func Describe(ctx context.Context, c cluster.Cluster, app, service, labelKey, container string) (Status, error) {
	st := Status{Service: service}
	svc, err := c.GetService(ctx, service)
	switch {
	case err == nil:
		if live := Color(svc.Selector[labelKey]); live.Valid() {
			st.Live = live
		}
	case !cluster.IsNotFound(err):
		return st, err
	}

	for _, col := range []Color{Blue, Green} {
		slot := Slot{Color: col, Deployment: DeploymentName(app, col)}
		d, err := c.GetDeployment(ctx, slot.Deployment)
		switch {
		case err == nil:
			slot.Present = true
			slot.Image = d.Image(container)
			slot.Status = d.Status
			slot.Rollout = d.Rollout
		case !cluster.IsNotFound(err):
			return st, err
		}
		st.Slots = append(st.Slots, slot)
	}
	return st, nil
}

// Write prints the status as a table.
func (st Status) Write(out io.Writer) error {
	live := string(st.Live)
	if live == "" {
		live = "(none)"
	}
	fmt.Fprintf(out, "SERVICE %s -> %s\n", st.Service, live)
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "COLOR\tDEPLOYMENT\tSTATUS\tREADY\tIMAGE\t")
	for _, s := range st.Slots {
		marker := ""
		if s.Color == st.Live {
			marker = "*"
		}
		if !s.Present {
			fmt.Fprintf(w, "%s%s\t%s\tabsent\t-\t-\t\n", s.Color, marker, s.Deployment)
			continue
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%d/%d\t%s\t\n", s.Color, marker, s.Deployment, s.Status, s.Rollout.Ready, s.Rollout.Desired, s.Image)
	}
	return w.Flush()
}
