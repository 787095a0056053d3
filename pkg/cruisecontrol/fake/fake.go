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

// Package fake provides a scriptable, in-memory cruisecontrol.OptimizationClient
// for use in statemachine, reconciler, and poll controller tests.
package fake

import (
	"context"
	"sync"

	"github.com/google/uuid"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol"
)

// Client is a fake cruisecontrol.OptimizationClient. Tests configure its
// behavior by setting the exported function fields before use; any left nil
// falls back to a successful, immediate-summary default. Calls are recorded
// for assertions.
type Client struct {
	mu sync.Mutex

	ProposalFn      func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error)
	TaskStatusFn    func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error)
	StopExecutionFn func(ctx context.Context) error

	ProposalCalls int
	PollCalls     int
	StopCalls     int
}

var _ cruisecontrol.OptimizationClient = (*Client)(nil)

func (f *Client) Proposal(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
	f.mu.Lock()
	f.ProposalCalls++
	f.mu.Unlock()
	if f.ProposalFn != nil {
		return f.ProposalFn(ctx, spec, dryrun, userTaskID)
	}
	return cruisecontrol.ProposalResult{
		UserTaskID: uuid.NewString(),
		Outcome:    cruisecontrol.SummaryPresent,
		Summary:    map[string]string{"dataToMoveMB": "0"},
	}, nil
}

func (f *Client) TaskStatus(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
	f.mu.Lock()
	f.PollCalls++
	f.mu.Unlock()
	if f.TaskStatusFn != nil {
		return f.TaskStatusFn(ctx, userTaskID)
	}
	return cruisecontrol.TaskStatusResult{
		State:   cruisecontrol.TaskCompleted,
		Summary: map[string]string{"dataToMoveMB": "0"},
		TaskID:  userTaskID,
	}, nil
}

func (f *Client) StopExecution(ctx context.Context) error {
	f.mu.Lock()
	f.StopCalls++
	f.mu.Unlock()
	if f.StopExecutionFn != nil {
		return f.StopExecutionFn(ctx)
	}
	return nil
}

// FailNTimes returns a ProposalFn-compatible closure that fails the first n
// calls with a transient TransportError before succeeding with SummaryPresent.
func FailNTimes(n int) func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
	var calls int
	return func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
		calls++
		if calls <= n {
			return cruisecontrol.ProposalResult{}, &cruisecontrol.TransportError{Op: "Proposal", Err: context.DeadlineExceeded}
		}
		return cruisecontrol.ProposalResult{UserTaskID: uuid.NewString(), Outcome: cruisecontrol.SummaryPresent, Summary: map[string]string{"dataToMoveMB": "0"}}, nil
	}
}

// TaskStatusFailNTimes returns a TaskStatusFn-compatible closure that fails
// the first n calls with a transient TransportError before completing.
func TaskStatusFailNTimes(n int) func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
	var calls int
	return func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
		calls++
		if calls <= n {
			return cruisecontrol.TaskStatusResult{}, &cruisecontrol.TransportError{Op: "TaskStatus", Err: context.DeadlineExceeded}
		}
		return cruisecontrol.TaskStatusResult{State: cruisecontrol.TaskCompleted, Summary: map[string]string{"dataToMoveMB": "0"}, TaskID: userTaskID}, nil
	}
}
