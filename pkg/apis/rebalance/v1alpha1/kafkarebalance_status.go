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

package v1alpha1

// StateName is a condition Type that represents a node of the rebalance state
// machine. Unlike an ordinary Kubernetes condition set (where many conditions can
// independently be true), at most one StateName condition may be present in a
// KafkaRebalance's status at a time.
type StateName string

const (
	StateNew             StateName = "New"
	StatePendingProposal StateName = "PendingProposal"
	StateProposalReady   StateName = "ProposalReady"
	StateRebalancing     StateName = "Rebalancing"
	StateReady           StateName = "Ready"
	StateStopped         StateName = "Stopped"
	StateNotReady        StateName = "NotReady"
)

// States lists every StateName the machine recognizes, in no particular order.
// Used to detect "is this condition type a state" without a switch statement.
var States = []StateName{
	StateNew, StatePendingProposal, StateProposalReady, StateRebalancing,
	StateReady, StateStopped, StateNotReady,
}

// IsStateName reports whether a raw condition Type string names one of the
// recognized state machine states.
func IsStateName(conditionType string) bool {
	for _, s := range States {
		if string(s) == conditionType {
			return true
		}
	}
	return false
}

// Auxiliary condition types, which may coexist with a StateName condition.
const (
	ConditionTypeReconciliationPaused = "ReconciliationPaused"
	ConditionTypeWarning              = "Warning"
)

// StateConditions returns every condition in status whose Type names a
// recognized state (which should never be more than one in a well-formed
// status). Callers use the length of the
// returned slice to detect the data-model invariant violation described in the
// spec: more than one state condition present at once.
func (s *KafkaRebalanceStatus) StateConditions() []Condition {
	var found []Condition
	for _, c := range s.Conditions {
		if IsStateName(c.Type) {
			found = append(found, c)
		}
	}
	return found
}
