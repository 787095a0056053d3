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

// Package statemachine implements the rebalance state machine: given the
// current state recorded in a KafkaRebalance's status, the decoded control
// annotation, and the resource's spec, it drives exactly one step against
// the optimization service and produces the next state.
package statemachine

import (
	"context"
	"errors"
	"fmt"

	"github.com/imdario/mergo"
	"github.com/samber/lo"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/annotation"
	"github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol"
)

// PollHint is returned alongside a next state and tells the caller whether
// the PollController should start, stop, or leave alone the timer for the
// resource.
type PollHint int

const (
	// PollNone means no timer is needed for the next state.
	PollNone PollHint = iota
	// PollStart means the PollController should have (or start) an active
	// timer for this resource.
	PollStart
	// PollStop means any active timer for this resource should be cancelled.
	PollStop
)

// Input is everything one Step call needs to decide the next state.
type Input struct {
	Spec                v1alpha1.KafkaRebalanceSpec
	CurrentState        v1alpha1.StateName
	SessionID           *string
	OptimizationResult  map[string]string
	Annotation          annotation.Command
	// ConsecutiveErrors counts prior failed attempts within the current
	// polling sequence. The reconciler keeps no in-memory copy: it parses the
	// count back out of the TransportErrorRetrying condition message that
	// Step wrote on the previous failure, and the count is gone once a later
	// status no longer carries that condition.
	ConsecutiveErrors int
	MaxAPIRetries     int
}

// Output is the result of one Step call.
type Output struct {
	NextState          v1alpha1.StateName
	Reason             string
	Message            string
	SessionID          *string
	OptimizationResult map[string]string
	ConsecutiveErrors  int
	Poll               PollHint
	// AnnotationConsumed is true when Annotation was acted upon and should be
	// stripped from the resource after a successful status write.
	AnnotationConsumed bool
}

// Step advances the state machine by exactly one external call (or zero,
// when the annotation/state combination is a no-op per the §4.1 transition
// table), given client as the OptimizationClient to use for that call.
func Step(ctx context.Context, client cruisecontrol.OptimizationClient, in Input) Output {
	switch in.CurrentState {
	case v1alpha1.StateNew, v1alpha1.StateReady, v1alpha1.StateStopped, v1alpha1.StateNotReady:
		return stepIdleState(ctx, client, in)
	case v1alpha1.StatePendingProposal:
		return stepPendingProposal(ctx, client, in)
	case v1alpha1.StateProposalReady:
		return stepProposalReady(ctx, client, in)
	case v1alpha1.StateRebalancing:
		return stepRebalancing(ctx, client, in)
	default:
		return Output{
			NextState: v1alpha1.StateNotReady,
			Reason:    "UnknownState",
			Message:   fmt.Sprintf("resource was in unrecognized state %q", in.CurrentState),
		}
	}
}

// stepIdleState handles New, Ready, Stopped, and NotReady, which all share
// the same rule: a "refresh" (or, for New, any non-stop annotation, which is
// treated identically to none) annotation requests a fresh dry-run proposal;
// everything else is a no-op.
func stepIdleState(ctx context.Context, client cruisecontrol.OptimizationClient, in Input) Output {
	// New treats every annotation except stop as a request to propose; the
	// other idle states (Ready, Stopped, NotReady) only react to refresh.
	triggersProposal := in.Annotation != annotation.Stop
	if in.CurrentState != v1alpha1.StateNew {
		triggersProposal = in.Annotation == annotation.Refresh
	}
	if !triggersProposal {
		return noop(in)
	}
	out := requestDryRunProposal(ctx, client, in)
	out.AnnotationConsumed = in.CurrentState != v1alpha1.StateNew
	return out
}

// stepPendingProposal handles §4.1.b: re-poll the dry-run proposal, or honor
// a stop request by cancelling polling without calling the service.
func stepPendingProposal(ctx context.Context, client cruisecontrol.OptimizationClient, in Input) Output {
	switch in.Annotation {
	case annotation.Stop:
		return Output{
			NextState:          v1alpha1.StateStopped,
			Reason:             "Stopped",
			Message:            "proposal polling cancelled by user",
			SessionID:          nil,
			OptimizationResult: in.OptimizationResult,
			Poll:               PollStop,
			AnnotationConsumed: true,
		}
	case annotation.None:
		return requestDryRunProposal(ctx, client, in)
	default:
		// approve and refresh are ignored while a proposal is already
		// pending; unknown is likewise left for a Warning condition.
		return noop(in)
	}
}

// stepProposalReady handles §4.1.c: approve executes, refresh recomputes the
// proposal; everything else is a no-op.
func stepProposalReady(ctx context.Context, client cruisecontrol.OptimizationClient, in Input) Output {
	switch in.Annotation {
	case annotation.Approve:
		out := executeProposal(ctx, client, in)
		out.AnnotationConsumed = true
		return out
	case annotation.Refresh:
		out := requestDryRunProposal(ctx, client, in)
		out.AnnotationConsumed = true
		return out
	default:
		return noop(in)
	}
}

// stepRebalancing handles §4.1.d: poll task status, or honor a stop by
// calling the service's stop endpoint.
func stepRebalancing(ctx context.Context, client cruisecontrol.OptimizationClient, in Input) Output {
	if in.Annotation == annotation.Stop {
		if err := client.StopExecution(ctx); err != nil {
			return classifyError(in, err, "stop")
		}
		return Output{
			NextState:          v1alpha1.StateStopped,
			Reason:             "Stopped",
			Message:            "rebalance execution stopped by user",
			SessionID:          nil,
			OptimizationResult: in.OptimizationResult,
			Poll:               PollStop,
			AnnotationConsumed: true,
		}
	}

	sessionID := lo.FromPtr(in.SessionID)
	if sessionID == "" {
		return Output{
			NextState: v1alpha1.StateNotReady,
			Reason:    "MissingSessionID",
			Message:   "resource was Rebalancing with no recorded sessionId",
		}
	}

	result, err := client.TaskStatus(ctx, sessionID)
	if err != nil {
		return classifyError(in, err, "poll task status")
	}

	switch result.State {
	case cruisecontrol.TaskActive:
		return Output{
			NextState:          v1alpha1.StateRebalancing,
			Reason:             "Active",
			Message:            "rebalance in progress",
			SessionID:          in.SessionID,
			OptimizationResult: in.OptimizationResult,
			ConsecutiveErrors:  0,
			Poll:               PollStart,
		}
	case cruisecontrol.TaskInExecution:
		merged, err := mergeSummary(in.OptimizationResult, result.Summary)
		if err != nil {
			return classifyError(in, fmt.Errorf("merging in-execution summary: %w", err), "merge summary")
		}
		return Output{
			NextState:          v1alpha1.StateRebalancing,
			Reason:             "InExecution",
			Message:            "rebalance in progress, summary updated",
			SessionID:          in.SessionID,
			OptimizationResult: merged,
			ConsecutiveErrors:  0,
			// The polling timer is cancelled on the tick that observes a
			// merged update so the reconciler can surface it; a later
			// reconciliation resumes polling (see §4.1.d).
			Poll: PollStop,
		}
	case cruisecontrol.TaskCompleted:
		return Output{
			NextState:          v1alpha1.StateReady,
			Reason:             "Completed",
			Message:            "rebalance completed",
			SessionID:          nil,
			OptimizationResult: coalesce(in.OptimizationResult, result.Summary),
			ConsecutiveErrors:  0,
			Poll:               PollStop,
		}
	case cruisecontrol.TaskCompletedErrors:
		return Output{
			NextState:          v1alpha1.StateNotReady,
			Reason:             "CompletedWithError",
			Message:            fmt.Sprintf("rebalance completed with error, cruise control task %s", result.TaskID),
			SessionID:          in.SessionID,
			OptimizationResult: coalesce(in.OptimizationResult, result.Summary),
			Poll:               PollStop,
		}
	default:
		return Output{
			NextState: v1alpha1.StateNotReady,
			Reason:    "UnrecognizedTaskState",
			Message:   fmt.Sprintf("cruise control returned unrecognized task state %q", result.State),
			Poll:      PollStop,
		}
	}
}

func requestDryRunProposal(ctx context.Context, client cruisecontrol.OptimizationClient, in Input) Output {
	result, err := client.Proposal(ctx, in.Spec, true, in.SessionID)
	if err != nil {
		return classifyError(in, err, "request dry-run proposal")
	}
	switch result.Outcome {
	case cruisecontrol.NotEnoughData:
		return Output{
			NextState:         v1alpha1.StatePendingProposal,
			Reason:            "NotEnoughData",
			Message:           "optimization service does not yet have enough data to propose a plan",
			SessionID:         nil,
			ConsecutiveErrors: 0,
			Poll:              PollStart,
		}
	case cruisecontrol.StillCalculating:
		return Output{
			NextState:         v1alpha1.StatePendingProposal,
			Reason:            "StillCalculating",
			Message:           "optimization service is still computing a proposal",
			SessionID:         lo.ToPtr(result.UserTaskID),
			ConsecutiveErrors: 0,
			Poll:              PollStart,
		}
	case cruisecontrol.SummaryPresent:
		return Output{
			NextState:          v1alpha1.StateProposalReady,
			Reason:             "ProposalReady",
			Message:            "optimization proposal computed",
			SessionID:          lo.ToPtr(result.UserTaskID),
			OptimizationResult: result.Summary,
			ConsecutiveErrors:  0,
			Poll:               PollStop,
		}
	default:
		return Output{
			NextState: v1alpha1.StateNotReady,
			Reason:    "UnrecognizedProposalOutcome",
			Message:   fmt.Sprintf("optimization service returned unrecognized outcome %q", result.Outcome),
		}
	}
}

func executeProposal(ctx context.Context, client cruisecontrol.OptimizationClient, in Input) Output {
	result, err := client.Proposal(ctx, in.Spec, false, nil)
	if err != nil {
		return classifyError(in, err, "execute proposal")
	}
	switch result.Outcome {
	case cruisecontrol.NotEnoughData:
		return Output{
			NextState:         v1alpha1.StatePendingProposal,
			Reason:            "NotEnoughData",
			Message:           "optimization service does not yet have enough data to execute a plan",
			SessionID:         nil,
			ConsecutiveErrors: 0,
			Poll:              PollStart,
		}
	case cruisecontrol.StillCalculating, cruisecontrol.SummaryPresent:
		return Output{
			NextState:          v1alpha1.StateRebalancing,
			Reason:             "Executing",
			Message:            "rebalance execution started",
			SessionID:          lo.ToPtr(result.UserTaskID),
			OptimizationResult: coalesce(in.OptimizationResult, result.Summary),
			ConsecutiveErrors:  0,
			Poll:               PollStart,
		}
	default:
		return Output{
			NextState: v1alpha1.StateNotReady,
			Reason:    "UnrecognizedProposalOutcome",
			Message:   fmt.Sprintf("optimization service returned unrecognized outcome %q", result.Outcome),
		}
	}
}

// classifyError folds a client error into the consecutive-error counter,
// failing to NotReady once MaxAPIRetries consecutive failures accumulate and
// otherwise asking the caller to keep the current state and try again later.
func classifyError(in Input, err error, op string) Output {
	var protoErr *cruisecontrol.ProtocolError
	if errors.As(err, &protoErr) {
		// Malformed/unexpected responses are not retried.
		return Output{
			NextState: v1alpha1.StateNotReady,
			Reason:    "ProtocolError",
			Message:   fmt.Sprintf("%s: %v", op, err),
			SessionID: in.SessionID,
			Poll:      PollStop,
		}
	}

	next := in.ConsecutiveErrors + 1
	maxRetries := in.MaxAPIRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if next >= maxRetries {
		return Output{
			NextState:         v1alpha1.StateNotReady,
			Reason:            "TransportErrorLimitExceeded",
			Message:           fmt.Sprintf("%s failed %d consecutive times: %v", op, next, err),
			SessionID:         in.SessionID,
			ConsecutiveErrors: next,
			Poll:              PollStop,
		}
	}
	return Output{
		NextState:          in.CurrentState,
		Reason:             "TransportErrorRetrying",
		Message:            fmt.Sprintf("%s failed (%d/%d consecutive): %v", op, next, maxRetries, err),
		SessionID:          in.SessionID,
		OptimizationResult: in.OptimizationResult,
		ConsecutiveErrors:  next,
		Poll:               PollStart,
	}
}

func noop(in Input) Output {
	poll := PollNone
	if in.CurrentState == v1alpha1.StateRebalancing || in.CurrentState == v1alpha1.StatePendingProposal {
		poll = PollStart
	}
	return Output{
		NextState:          in.CurrentState,
		SessionID:          in.SessionID,
		OptimizationResult: in.OptimizationResult,
		Poll:               poll,
	}
}

func coalesce(prev, next map[string]string) map[string]string {
	if len(next) > 0 {
		return next
	}
	return prev
}

// mergeSummary overlays the non-zero fields of next onto a copy of prev,
// per §4.1.d's "summary merged in" requirement for IN_EXECUTION polls.
func mergeSummary(prev, next map[string]string) (map[string]string, error) {
	merged := map[string]string{}
	for k, v := range prev {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, next, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
