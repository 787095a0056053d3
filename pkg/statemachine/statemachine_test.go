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

package statemachine_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/annotation"
	"github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol"
	"github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol/fake"
	"github.com/strimzi-contrib/rebalance-operator/pkg/statemachine"
)

var _ = Describe("Step", func() {
	var client *fake.Client
	var ctx context.Context

	BeforeEach(func() {
		client = &fake.Client{}
		ctx = context.Background()
	})

	It("requests a dry-run proposal from New and lands on ProposalReady", func() {
		client.ProposalFn = func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
			Expect(dryrun).To(BeTrue())
			return cruisecontrol.ProposalResult{UserTaskID: "t-1", Outcome: cruisecontrol.SummaryPresent, Summary: map[string]string{"dataToMoveMB": "10"}}, nil
		}
		out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StateNew, Annotation: annotation.None, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StateProposalReady))
		Expect(*out.SessionID).To(Equal("t-1"))
		Expect(out.OptimizationResult).To(HaveKeyWithValue("dataToMoveMB", "10"))
		Expect(out.AnnotationConsumed).To(BeFalse())
	})

	It("stays PendingProposal while the service is still calculating", func() {
		client.ProposalFn = func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
			return cruisecontrol.ProposalResult{UserTaskID: "t-2", Outcome: cruisecontrol.StillCalculating}, nil
		}
		out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StateNew, Annotation: annotation.None, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StatePendingProposal))
		Expect(out.Poll).To(Equal(statemachine.PollStart))
	})

	It("executes on approve from ProposalReady", func() {
		sid := "t-2"
		client.ProposalFn = func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
			Expect(dryrun).To(BeFalse())
			return cruisecontrol.ProposalResult{UserTaskID: "t-2", Outcome: cruisecontrol.StillCalculating}, nil
		}
		out := statemachine.Step(ctx, client, statemachine.Input{
			CurrentState: v1alpha1.StateProposalReady, SessionID: &sid, Annotation: annotation.Approve, MaxAPIRetries: 5,
		})
		Expect(out.NextState).To(Equal(v1alpha1.StateRebalancing))
		Expect(out.AnnotationConsumed).To(BeTrue())
	})

	It("ignores approve/refresh while PendingProposal, without calling the service", func() {
		out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StatePendingProposal, Annotation: annotation.Approve, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StatePendingProposal))
		out = statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StatePendingProposal, Annotation: annotation.Refresh, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StatePendingProposal))
		Expect(client.ProposalCalls).To(Equal(0))
	})

	It("stops polling and moves to Stopped on stop from PendingProposal without calling the service", func() {
		out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StatePendingProposal, Annotation: annotation.Stop, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StateStopped))
		Expect(out.Poll).To(Equal(statemachine.PollStop))
		Expect(client.ProposalCalls).To(Equal(0))
	})

	It("stops an in-flight rebalance via StopExecution", func() {
		sid := "t-3"
		out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StateRebalancing, SessionID: &sid, Annotation: annotation.Stop, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StateStopped))
		Expect(out.SessionID).To(BeNil())
		Expect(client.StopCalls).To(Equal(1))
	})

	It("merges an IN_EXECUTION summary onto the prior one", func() {
		sid := "t-3"
		client.TaskStatusFn = func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
			return cruisecontrol.TaskStatusResult{State: cruisecontrol.TaskInExecution, Summary: map[string]string{"dataToMoveMB": "5"}, TaskID: userTaskID}, nil
		}
		out := statemachine.Step(ctx, client, statemachine.Input{
			CurrentState: v1alpha1.StateRebalancing, SessionID: &sid, Annotation: annotation.None,
			OptimizationResult: map[string]string{"dataToMoveMB": "10", "intraBrokerDataToMoveMB": "1"}, MaxAPIRetries: 5,
		})
		Expect(out.NextState).To(Equal(v1alpha1.StateRebalancing))
		Expect(out.OptimizationResult).To(HaveKeyWithValue("dataToMoveMB", "5"))
		Expect(out.OptimizationResult).To(HaveKeyWithValue("intraBrokerDataToMoveMB", "1"))
		Expect(out.Poll).To(Equal(statemachine.PollStop))
	})

	It("reaches Ready on COMPLETED", func() {
		sid := "t-3"
		client.TaskStatusFn = func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
			return cruisecontrol.TaskStatusResult{State: cruisecontrol.TaskCompleted, TaskID: userTaskID}, nil
		}
		out := statemachine.Step(ctx, client, statemachine.Input{
			CurrentState: v1alpha1.StateRebalancing, SessionID: &sid, Annotation: annotation.None,
			OptimizationResult: map[string]string{"dataToMoveMB": "0"}, MaxAPIRetries: 5,
		})
		Expect(out.NextState).To(Equal(v1alpha1.StateReady))
		Expect(out.SessionID).To(BeNil())
	})

	It("reports NotReady with the cruise control task id on COMPLETED_WITH_ERROR", func() {
		sid := "t-4"
		client.TaskStatusFn = func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
			return cruisecontrol.TaskStatusResult{State: cruisecontrol.TaskCompletedErrors, TaskID: "cc-task-99"}, nil
		}
		out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StateRebalancing, SessionID: &sid, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StateNotReady))
		Expect(out.Message).To(ContainSubstring("cc-task-99"))
		Expect(*out.SessionID).To(Equal(sid))
	})

	It("fails to NotReady after MAX_API_RETRIES consecutive transport errors", func() {
		client.TaskStatusFn = func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
			return cruisecontrol.TaskStatusResult{}, &cruisecontrol.TransportError{Op: "TaskStatus", Err: context.DeadlineExceeded}
		}
		sid := "t-5"
		consecutive := 0
		var out statemachine.Output
		for i := 0; i < 5; i++ {
			out = statemachine.Step(ctx, client, statemachine.Input{
				CurrentState: v1alpha1.StateRebalancing, SessionID: &sid, ConsecutiveErrors: consecutive, MaxAPIRetries: 5,
			})
			consecutive = out.ConsecutiveErrors
			if out.NextState != v1alpha1.StateRebalancing {
				break
			}
		}
		Expect(out.NextState).To(Equal(v1alpha1.StateNotReady))
		Expect(out.ConsecutiveErrors).To(Equal(5))
	})

	It("does not retry a ProtocolError", func() {
		client.ProposalFn = func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
			return cruisecontrol.ProposalResult{}, &cruisecontrol.ProtocolError{Op: "Proposal", StatusCode: 400, Body: "bad goal"}
		}
		out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: v1alpha1.StateStopped, Annotation: annotation.Refresh, MaxAPIRetries: 5})
		Expect(out.NextState).To(Equal(v1alpha1.StateNotReady))
		Expect(out.Reason).To(Equal("ProtocolError"))
	})

	It("is a no-op for none on Ready/Stopped/NotReady", func() {
		for _, s := range []v1alpha1.StateName{v1alpha1.StateReady, v1alpha1.StateStopped, v1alpha1.StateNotReady} {
			out := statemachine.Step(ctx, client, statemachine.Input{CurrentState: s, Annotation: annotation.None, MaxAPIRetries: 5})
			Expect(out.NextState).To(Equal(s))
		}
		Expect(client.ProposalCalls).To(Equal(0))
	})
})
