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

package reconciler_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/types"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol"
	ccfake "github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol/fake"
)

func setAnnotation(ctx context.Context, f *fixture, key types.NamespacedName, value string) {
	r := f.get(key)
	if r.Annotations == nil {
		r.Annotations = map[string]string{}
	}
	r.Annotations[v1alpha1.ControlAnnotationKey] = value
	Expect(f.client.Update(ctx, r)).To(Succeed())
}

var _ = Describe("ReconcilerLoop", func() {
	var ctx context.Context
	var key types.NamespacedName

	BeforeEach(func() {
		ctx = context.Background()
		key = types.NamespacedName{Namespace: "ns", Name: "r1"}
	})

	It("happy path: a fresh resource gets a proposal on the first reconciliation", func() {
		cluster := kafkaCluster("ns", "c1")
		rebalance := newRebalance("ns", "r1", "c1")
		f := newFixture(cluster, rebalance)
		f.cc.ProposalFn = func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
			return cruisecontrol.ProposalResult{UserTaskID: "t-1", Outcome: cruisecontrol.SummaryPresent, Summary: map[string]string{"dataToMoveMB": "100"}}, nil
		}

		_, err := f.loop.Reconcile(ctx, key, rebalance)
		Expect(err).NotTo(HaveOccurred())

		got := f.get(key)
		cond := stateCondition(got)
		Expect(cond.Type).To(Equal(string(v1alpha1.StateProposalReady)))
		Expect(got.Status.SessionID).NotTo(BeNil())
		Expect(*got.Status.SessionID).To(Equal("t-1"))
		Expect(got.Status.OptimizationResult).To(HaveKeyWithValue("dataToMoveMB", "100"))
		Expect(f.cc.ProposalCalls).To(Equal(1))
	})

	It("deferred proposal then approve walks PendingProposal -> ProposalReady -> Rebalancing -> Ready", func() {
		cluster := kafkaCluster("ns", "c1")
		rebalance := newRebalance("ns", "r1", "c1")
		f := newFixture(cluster, rebalance)

		var proposalCalls int
		f.cc.ProposalFn = func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
			proposalCalls++
			switch proposalCalls {
			case 1:
				return cruisecontrol.ProposalResult{UserTaskID: "t-2", Outcome: cruisecontrol.StillCalculating}, nil
			case 2:
				return cruisecontrol.ProposalResult{UserTaskID: "t-2", Outcome: cruisecontrol.SummaryPresent, Summary: map[string]string{"dataToMoveMB": "50"}}, nil
			default:
				// execute call (dryrun=false) after approve
				return cruisecontrol.ProposalResult{UserTaskID: "t-2", Outcome: cruisecontrol.StillCalculating}, nil
			}
		}
		var taskStatusCalls int
		f.cc.TaskStatusFn = func(ctx context.Context, userTaskID string) (cruisecontrol.TaskStatusResult, error) {
			taskStatusCalls++
			switch taskStatusCalls {
			case 1:
				return cruisecontrol.TaskStatusResult{State: cruisecontrol.TaskActive}, nil
			case 2:
				return cruisecontrol.TaskStatusResult{State: cruisecontrol.TaskInExecution, Summary: map[string]string{"dataToMoveMB": "20"}}, nil
			default:
				return cruisecontrol.TaskStatusResult{State: cruisecontrol.TaskCompleted, Summary: map[string]string{"dataToMoveMB": "0"}}, nil
			}
		}

		// First reconciliation: New -> PendingProposal (stillCalculating).
		_, err := f.loop.Reconcile(ctx, key, rebalance)
		Expect(err).NotTo(HaveOccurred())
		got := f.get(key)
		Expect(stateCondition(got).Type).To(Equal(string(v1alpha1.StatePendingProposal)))
		Expect(*got.Status.SessionID).To(Equal("t-2"))

		// Second reconciliation (poll tick): PendingProposal -> ProposalReady.
		_, err = f.loop.Reconcile(ctx, key, got)
		Expect(err).NotTo(HaveOccurred())
		got = f.get(key)
		Expect(stateCondition(got).Type).To(Equal(string(v1alpha1.StateProposalReady)))

		// User approves: ProposalReady -> Rebalancing.
		setAnnotation(ctx, f, key, "approve")
		got = f.get(key)
		_, err = f.loop.Reconcile(ctx, key, got)
		Expect(err).NotTo(HaveOccurred())
		got = f.get(key)
		Expect(stateCondition(got).Type).To(Equal(string(v1alpha1.StateRebalancing)))
		Expect(got.Annotations).NotTo(HaveKey(v1alpha1.ControlAnnotationKey))

		// Poll tick: Rebalancing, ACTIVE.
		_, err = f.loop.Reconcile(ctx, key, got)
		Expect(err).NotTo(HaveOccurred())
		got = f.get(key)
		Expect(stateCondition(got).Type).To(Equal(string(v1alpha1.StateRebalancing)))
		Expect(stateCondition(got).Reason).To(Equal("Active"))

		// Poll tick: Rebalancing, IN_EXECUTION, summary merged.
		_, err = f.loop.Reconcile(ctx, key, got)
		Expect(err).NotTo(HaveOccurred())
		got = f.get(key)
		Expect(stateCondition(got).Reason).To(Equal("InExecution"))
		Expect(got.Status.OptimizationResult).To(HaveKeyWithValue("dataToMoveMB", "20"))

		// Poll tick: COMPLETED -> Ready.
		_, err = f.loop.Reconcile(ctx, key, got)
		Expect(err).NotTo(HaveOccurred())
		got = f.get(key)
		Expect(stateCondition(got).Type).To(Equal(string(v1alpha1.StateReady)))
	})

	It("stop during rebalance calls StopExecution and transitions to Stopped", func() {
		cluster := kafkaCluster("ns", "c1")
		rebalance := newRebalance("ns", "r1", "c1")
		sid := "t-3"
		rebalance.Status = v1alpha1.KafkaRebalanceStatus{
			SessionID:  &sid,
			Conditions: []v1alpha1.Condition{{Type: string(v1alpha1.StateRebalancing), Status: v1alpha1.ConditionTrue}},
		}
		f := newFixture(cluster, rebalance)

		setAnnotation(ctx, f, key, "stop")
		got := f.get(key)
		_, err := f.loop.Reconcile(ctx, key, got)
		Expect(err).NotTo(HaveOccurred())

		got = f.get(key)
		Expect(stateCondition(got).Type).To(Equal(string(v1alpha1.StateStopped)))
		Expect(got.Status.SessionID).To(BeNil())
		Expect(got.Annotations).NotTo(HaveKey(v1alpha1.ControlAnnotationKey))
		Expect(f.cc.StopCalls).To(Equal(1))
	})

	It("refresh from Stopped requests a new dry-run proposal", func() {
		cluster := kafkaCluster("ns", "c1")
		rebalance := newRebalance("ns", "r1", "c1")
		rebalance.Status = v1alpha1.KafkaRebalanceStatus{
			Conditions: []v1alpha1.Condition{{Type: string(v1alpha1.StateStopped), Status: v1alpha1.ConditionTrue}},
		}
		f := newFixture(cluster, rebalance)
		f.cc.ProposalFn = func(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (cruisecontrol.ProposalResult, error) {
			return cruisecontrol.ProposalResult{UserTaskID: "t-4", Outcome: cruisecontrol.SummaryPresent, Summary: map[string]string{"dataToMoveMB": "5"}}, nil
		}

		setAnnotation(ctx, f, key, "refresh")
		got := f.get(key)
		_, err := f.loop.Reconcile(ctx, key, got)
		Expect(err).NotTo(HaveOccurred())

		got = f.get(key)
		Expect(stateCondition(got).Type).To(Equal(string(v1alpha1.StateProposalReady)))
		Expect(got.Annotations).NotTo(HaveKey(v1alpha1.ControlAnnotationKey))
	})

	It("a resource missing the cluster label fails validation into NotReady", func() {
		rebalance := &v1alpha1.KafkaRebalance{}
		rebalance.Namespace = "ns"
		rebalance.Name = "r1"
		f := newFixture(rebalance)

		_, err := f.loop.Reconcile(ctx, key, rebalance)
		Expect(err).NotTo(HaveOccurred())

		got := f.get(key)
		cond := stateCondition(got)
		Expect(cond.Type).To(Equal(string(v1alpha1.StateNotReady)))
		Expect(cond.Message).To(ContainSubstring(v1alpha1.ClusterLabelKey))
	})

	It("five consecutive transport errors while Rebalancing exhaust retries into NotReady", func() {
		cluster := kafkaCluster("ns", "c1")
		rebalance := newRebalance("ns", "r1", "c1")
		sid := "t-6"
		rebalance.Status = v1alpha1.KafkaRebalanceStatus{
			SessionID:  &sid,
			Conditions: []v1alpha1.Condition{{Type: string(v1alpha1.StateRebalancing), Status: v1alpha1.ConditionTrue}},
		}
		f := newFixture(cluster, rebalance)
		f.cc.TaskStatusFn = ccfake.TaskStatusFailNTimes(5)

		var got *v1alpha1.KafkaRebalance
		for i := 0; i < 5; i++ {
			got = f.get(key)
			_, err := f.loop.Reconcile(ctx, key, got)
			Expect(err).NotTo(HaveOccurred())
		}

		got = f.get(key)
		cond := stateCondition(got)
		Expect(cond.Type).To(Equal(string(v1alpha1.StateNotReady)))
		Expect(cond.Reason).To(Equal("TransportErrorLimitExceeded"))
		Expect(f.loop.Polls.Active(key)).To(BeFalse())
	})
})
