package kubernetes

import (
	apiapps "k8s.io/api/apps/v1"
	apiv1 "k8s.io/api/core/v1"

	"github.com/fluxcd/bluegreen/pkg/cluster"
)

// deploymentErrors collects the messages of conditions which mean the
// rollout will not finish without help.
func deploymentErrors(d *apiapps.Deployment) []string {
	var errs []string
	for _, cond := range d.Status.Conditions {
		if (cond.Type == apiapps.DeploymentProgressing && cond.Status == apiv1.ConditionFalse) ||
			(cond.Type == apiapps.DeploymentReplicaFailure && cond.Status == apiv1.ConditionTrue) {
			errs = append(errs, cond.Message)
		}
	}
	return errs
}

func makeDeployment(d *apiapps.Deployment) cluster.Deployment {
	var desired int32 = 1
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	rollout := cluster.RolloutStatus{
		Desired:   desired,
		Updated:   d.Status.UpdatedReplicas,
		Ready:     d.Status.ReadyReplicas,
		Available: d.Status.AvailableReplicas,
		Outdated:  d.Status.Replicas - d.Status.UpdatedReplicas,
		Messages:  deploymentErrors(d),
	}

	status := cluster.StatusStarted
	// Until the controller has seen the latest spec, the counts are
	// about the previous one.
	if d.Status.ObservedGeneration >= d.Generation {
		status = cluster.StatusUpdating
		if rollout.Updated == rollout.Desired && rollout.Available == rollout.Desired && rollout.Outdated == 0 {
			status = cluster.StatusReady
		}
		if len(rollout.Messages) != 0 {
			status = cluster.StatusError
		}
	}

	var containers []cluster.Container
	for _, c := range d.Spec.Template.Spec.Containers {
		containers = append(containers, cluster.Container{Name: c.Name, Image: c.Image})
	}
	return cluster.Deployment{
		Name:       d.Name,
		Labels:     d.Labels,
		Containers: containers,
		Status:     status,
		Rollout:    rollout,
	}
}
