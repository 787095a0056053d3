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

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Well-known metadata keys read by the rebalance controller.
const (
	// ClusterLabelKey binds a KafkaRebalance to the KafkaCluster it targets.
	ClusterLabelKey = "strimzi.io/cluster"
	// ControlAnnotationKey drives state transitions: approve, refresh, stop.
	ControlAnnotationKey = "strimzi.io/rebalance"
	// PauseAnnotationKey suspends reconciliation entirely when set to "true".
	PauseAnnotationKey = "strimzi.io/pause-reconciliation"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status

// KafkaRebalance is a user-declared intent to rebalance partitions across the
// brokers of a Kafka cluster, reconciled against an external optimization service.
type KafkaRebalance struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KafkaRebalanceSpec   `json:"spec,omitempty"`
	Status KafkaRebalanceStatus `json:"status,omitempty"`
}

// KafkaRebalanceSpec is the user-declared desired rebalance configuration, passed
// through to the optimization service largely unmodified.
type KafkaRebalanceSpec struct {
	// Goals is the ordered list of optimization goals to apply, most important first.
	// +optional
	Goals []string `json:"goals,omitempty"`
	// SkipHardGoalCheck disables the service's hard-goal-satisfiability check.
	// +optional
	SkipHardGoalCheck bool `json:"skipHardGoalCheck,omitempty"`
	// ExcludedTopics is a regular expression matching topics to exclude from the plan.
	// +optional
	ExcludedTopics string `json:"excludedTopics,omitempty"`
	// ConcurrentPartitionMovementsPerBroker bounds in-flight partition moves per broker.
	// +optional
	// +kubebuilder:validation:Minimum=0
	ConcurrentPartitionMovementsPerBroker int `json:"concurrentPartitionMovementsPerBroker,omitempty"`
	// ConcurrentIntraBrokerPartitionMovements bounds in-flight intra-broker moves.
	// +optional
	// +kubebuilder:validation:Minimum=0
	ConcurrentIntraBrokerPartitionMovements int `json:"concurrentIntraBrokerPartitionMovements,omitempty"`
	// ConcurrentLeaderMovements bounds in-flight leadership moves.
	// +optional
	// +kubebuilder:validation:Minimum=0
	ConcurrentLeaderMovements int `json:"concurrentLeaderMovements,omitempty"`
	// ReplicationThrottle caps replication bandwidth used by partition moves, in bytes/sec.
	// +optional
	// +kubebuilder:validation:Minimum=0
	ReplicationThrottle int `json:"replicationThrottle,omitempty"`
	// ReplicaMovementStrategies is the ordered list of strategies used to schedule replica moves.
	// +optional
	ReplicaMovementStrategies []string `json:"replicaMovementStrategies,omitempty"`
	// ReplicaMovementStrategy is the pre-ReplicaMovementStrategies singular field.
	// Deprecated: use ReplicaMovementStrategies instead.
	// +optional
	ReplicaMovementStrategy string `json:"replicaMovementStrategy,omitempty"`

	// UnknownFields lists spec keys present on the wire that this type does not
	// recognize, populated by UnmarshalJSON. Not itself serialized back.
	UnknownFields []string `json:"-"`
}

// specAlias has the same fields as KafkaRebalanceSpec but none of its methods,
// breaking the recursion UnmarshalJSON would otherwise cause on itself.
type specAlias KafkaRebalanceSpec

// UnmarshalJSON decodes the typed fields as usual and additionally records
// which wire keys did not map onto a known field, so pkg/validation can warn
// on a typo or a field dropped from a newer/older version of this schema.
func (s *KafkaRebalanceSpec) UnmarshalJSON(data []byte) error {
	var a specAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Metadata:         &md,
		WeaklyTypedInput: true,
		Result:           &specAlias{},
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return err
	}

	*s = KafkaRebalanceSpec(a)
	s.UnknownFields = md.Unused
	return nil
}

// KafkaRebalanceStatus is the sole durable record of the rebalance state machine.
type KafkaRebalanceStatus struct {
	// ObservedGeneration is the spec generation last reconciled into this status.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// SessionID correlates this resource with an in-flight optimization-service task.
	// +optional
	SessionID *string `json:"sessionId,omitempty"`
	// OptimizationResult is the last summary document returned by the optimization service.
	// +optional
	OptimizationResult map[string]string `json:"optimizationResult,omitempty"`
	// Conditions holds the state condition plus any auxiliary conditions.
	// +optional
	Conditions []Condition `json:"conditions,omitempty"`
}

// Condition is a single status entry. Exactly one Condition in a status may carry
// a Type equal to a StateName; additional entries carry an auxiliary type such as
// ReconciliationPaused or Warning.
type Condition struct {
	Type               string      `json:"type"`
	Status             ConditionStatus `json:"status"`
	Reason             string      `json:"reason,omitempty"`
	Message            string      `json:"message,omitempty"`
	LastTransitionTime metav1.Time `json:"lastTransitionTime,omitempty"`
}

// ConditionStatus is the status of a condition; only "True" and "False" are
// defined (there is no "Unknown" value).
type ConditionStatus string

const (
	ConditionTrue  ConditionStatus = "True"
	ConditionFalse ConditionStatus = "False"
)

// +kubebuilder:object:root=true

// KafkaRebalanceList is a list of KafkaRebalance resources.
type KafkaRebalanceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KafkaRebalance `json:"items"`
}
