/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package reconciler implements the ReconcilerLoop: the glue between a
// watch/sweep trigger and the state machine, status codec, lock registry,
// and poll controller that do the actual work. It never trusts any
// in-memory state across calls; everything it needs is reconstructed from
// the resource it reads.
package reconciler

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	opreconciler "github.com/awslabs/operatorpkg/reconciler"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/annotation"
	"github.com/strimzi-contrib/rebalance-operator/pkg/config"
	"github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol"
	"github.com/strimzi-contrib/rebalance-operator/pkg/lock"
	"github.com/strimzi-contrib/rebalance-operator/pkg/metrics"
	"github.com/strimzi-contrib/rebalance-operator/pkg/poll"
	"github.com/strimzi-contrib/rebalance-operator/pkg/statemachine"
	"github.com/strimzi-contrib/rebalance-operator/pkg/status"
	"github.com/strimzi-contrib/rebalance-operator/pkg/validation"
)

// Loop implements the Reconcile(ctx, resource) contract of §4.3: exactly one
// status write per invocation unless the desired status is unchanged.
// Validation and optimization-service errors are folded into a NotReady
// condition rather than returned; errors from reading or writing the
// resource through the Kubernetes client (and a cancelled ctx while waiting
// for the lock) are returned to the caller.
type Loop struct {
	Client             client.Client
	OptimizationClient cruisecontrol.OptimizationClient
	Locks              *lock.Registry
	Polls              *poll.Controller
	Config             config.Config
	Log                logr.Logger

	// Events records state-transition events against the resource. It is
	// optional; a nil recorder is a silent no-op.
	Events record.EventRecorder

	// PollContext is the long-lived context under which started poll timers
	// run. It must outlive any single Reconcile call, so it is the
	// manager's root context rather than the ctx passed to Reconcile (which
	// controller-runtime may cancel once this call returns).
	PollContext context.Context
}

// Reconcile is the ReconcilerLoop entry point. resource is nil for a delete
// event, in which case the loop only stops any poll timer for key.
func (l *Loop) Reconcile(ctx context.Context, key types.NamespacedName, resource *v1alpha1.KafkaRebalance) (opreconciler.Result, error) {
	if resource == nil {
		l.Polls.Stop(key)
		return opreconciler.Result{}, nil
	}

	handle, err := l.Locks.Acquire(ctx, key, l.Config.LockTimeout)
	if err != nil {
		var timeoutErr *lock.TimeoutError
		if errors.As(err, &timeoutErr) {
			l.Log.V(1).Info("dropping event, could not acquire lock in time", "key", key)
			metrics.LockTimeoutsTotal.Inc(nil)
			return opreconciler.Result{}, nil
		}
		return opreconciler.Result{}, err
	}
	defer l.Locks.Release(handle)

	var current v1alpha1.KafkaRebalance
	if err := l.Client.Get(ctx, key, &current); err != nil {
		if apierrors.IsNotFound(err) {
			l.Polls.Stop(key)
			return opreconciler.Result{}, nil
		}
		return opreconciler.Result{}, err
	}

	warnings := validation.Warnings(&current)

	if annotation.IsPaused(current.Annotations) {
		builder := status.NewBuilder(current.Generation).WithPaused(true)
		for _, w := range warnings {
			builder = builder.WithWarning(w)
		}
		return l.writeStatus(ctx, key, builder.Build())
	}

	cmd := annotation.Decode(current.Annotations)

	currentState, stateErr := status.CurrentState(current.Status)
	var aggregate error
	if stateErr != nil {
		aggregate = multierr.Append(aggregate, stateErr)
	}
	if verr := validation.ValidateCluster(ctx, l.Client, &current, l.Config.ClusterSelectorLabel); verr != nil {
		aggregate = multierr.Append(aggregate, verr)
	}

	var out statemachine.Output
	if aggregate != nil {
		out = statemachine.Output{
			NextState:          v1alpha1.StateNotReady,
			Reason:             "ValidationFailed",
			Message:            aggregate.Error(),
			SessionID:          current.Status.SessionID,
			OptimizationResult: current.Status.OptimizationResult,
			Poll:               statemachine.PollStop,
		}
	} else {
		out = statemachine.Step(ctx, l.OptimizationClient, statemachine.Input{
			Spec:               current.Spec,
			CurrentState:       currentState,
			SessionID:          current.Status.SessionID,
			OptimizationResult: current.Status.OptimizationResult,
			Annotation:         cmd,
			ConsecutiveErrors:  consecutiveErrorsFrom(current.Status),
			MaxAPIRetries:      l.Config.MaxAPIRetries,
		})
	}

	l.recordTransition(&current, currentState, out)

	builder := status.NewBuilder(current.Generation).
		WithState(out.NextState, out.Reason, out.Message).
		WithSessionID(out.SessionID).
		WithOptimizationResult(out.OptimizationResult)
	for _, w := range warnings {
		builder = builder.WithWarning(w)
	}

	result, err := l.writeStatus(ctx, key, builder.Build())
	if err != nil {
		return result, err
	}

	if out.AnnotationConsumed {
		if err := l.stripAnnotation(ctx, key); err != nil {
			l.Log.Error(err, "failed to strip consumed control annotation", "key", key)
		}
	}

	switch out.Poll {
	case statemachine.PollStart:
		l.Polls.Start(l.PollContext, key, out.NextState)
	case statemachine.PollStop:
		l.Polls.Stop(key)
	}

	return result, nil
}

// writeStatus re-reads the resource by name so a concurrent user edit is not
// overwritten, elides the write entirely when the desired status is
// unchanged, and otherwise issues exactly one status update.
func (l *Loop) writeStatus(ctx context.Context, key types.NamespacedName, desired v1alpha1.KafkaRebalanceStatus) (opreconciler.Result, error) {
	var fresh v1alpha1.KafkaRebalance
	if err := l.Client.Get(ctx, key, &fresh); err != nil {
		if apierrors.IsNotFound(err) {
			return opreconciler.Result{}, nil
		}
		return opreconciler.Result{}, err
	}
	if status.Equal(fresh.Status, desired) {
		return opreconciler.Result{}, nil
	}
	fresh.Status = desired
	if err := l.Client.Status().Update(ctx, &fresh); err != nil {
		return opreconciler.Result{}, err
	}
	return opreconciler.Result{}, nil
}

// stripAnnotation removes the control annotation only after it has driven a
// successful status write, per §6. The annotation-strip step is not atomic
// with the status write (§9): after a crash between the two, the annotation
// stays on the resource and the next reconciliation evaluates it against the
// newly written state. It is stripped then only if that state's transition
// consumes it (for example a leftover refresh on ProposalReady, which also
// requests a new proposal); otherwise it stays in place.
func (l *Loop) stripAnnotation(ctx context.Context, key types.NamespacedName) error {
	var fresh v1alpha1.KafkaRebalance
	if err := l.Client.Get(ctx, key, &fresh); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !annotation.Strip(fresh.Annotations) {
		return nil
	}
	return l.Client.Update(ctx, &fresh)
}

func (l *Loop) recordTransition(resource *v1alpha1.KafkaRebalance, from v1alpha1.StateName, out statemachine.Output) {
	if out.Reason == "TransportErrorRetrying" {
		metrics.PollRetriesTotal.Inc(nil)
	}
	if out.NextState == from {
		return
	}
	metrics.StateTransitionsTotal.Inc(map[string]string{
		metrics.LabelFromState: string(from),
		metrics.LabelToState:   string(out.NextState),
		metrics.LabelReason:    out.Reason,
	})
	if l.Events == nil {
		return
	}
	l.Events.Eventf(resource, "Normal", out.Reason, "%s -> %s: %s", from, out.NextState, out.Message)
}

// consecutiveErrorsPattern extracts the retry count the state machine embeds
// in a TransportErrorRetrying condition's message, e.g. "(3/5 consecutive)".
// This is how the consecutive-error counter survives across reconciliations
// without any in-memory state: it round-trips through the status the
// operator already wrote, consistent with §5's "no in-memory state that
// must survive a restart".
var consecutiveErrorsPattern = regexp.MustCompile(`\((\d+)/\d+ consecutive\)`)

func consecutiveErrorsFrom(s v1alpha1.KafkaRebalanceStatus) int {
	for _, c := range s.Conditions {
		if c.Reason != "TransportErrorRetrying" {
			continue
		}
		if m := consecutiveErrorsPattern.FindStringSubmatch(c.Message); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n
			}
		}
	}
	return 0
}
