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

// Package validation checks a KafkaRebalance against the cluster it claims
// to target and flags unknown or deprecated spec fields as warnings.
package validation

import (
	"context"
	"fmt"

	unstructuredv1 "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
)

// Error is a ValidationError per the error taxonomy: it surfaces as NotReady
// with no automatic retry until the user edits the spec or issues a refresh.
type Error struct {
	Reason  string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Reason, e.Message) }

// kafkaClusterGVK is the external KafkaCluster resource this package checks
// for existence and capability; it is consumed, not owned, by this operator.
var kafkaClusterGVK = schema.GroupVersionKind{Group: "kafka.strimzi.io", Version: "v1beta2", Kind: "Kafka"}

// ValidateCluster checks that resource carries the cluster-binding label and
// that the named cluster exists in the same namespace and declares the
// optimization service (a true status.cruiseControlEnabled field on the Kafka
// resource). clusterSelectorLabel is the configured label
// key (§6, default strimzi.io/cluster).
func ValidateCluster(ctx context.Context, c client.Client, resource *v1alpha1.KafkaRebalance, clusterSelectorLabel string) error {
	clusterName, ok := resource.Labels[clusterSelectorLabel]
	if !ok || clusterName == "" {
		return &Error{
			Reason:  "MissingClusterLabel",
			Message: fmt.Sprintf("resource is missing required label %q binding it to a target cluster", clusterSelectorLabel),
		}
	}

	var cluster unstructuredv1.Unstructured
	cluster.SetGroupVersionKind(kafkaClusterGVK)
	if err := c.Get(ctx, client.ObjectKey{Namespace: resource.Namespace, Name: clusterName}, &cluster); err != nil {
		return &Error{
			Reason:  "ClusterNotFound",
			Message: fmt.Sprintf("cluster %q referenced by label %q was not found: %v", clusterName, clusterSelectorLabel, err),
		}
	}

	enabled, _, _ := unstructuredv1.NestedBool(cluster.Object, "status", "cruiseControlEnabled")
	if !enabled {
		return &Error{
			Reason:  "OptimizationServiceNotDeclared",
			Message: fmt.Sprintf("cluster %q does not declare an optimization service", clusterName),
		}
	}
	return nil
}

// deprecatedAnnotations maps a deprecated-but-recognized annotation key to the
// warning message emitted when it is present.
var deprecatedAnnotations = map[string]string{
	"strimzi.io/rebalance-strategy": "annotation \"strimzi.io/rebalance-strategy\" is deprecated; use spec.replicaMovementStrategies instead",
}

// knownAnnotations lists every annotation key this operator understands,
// used to flag unrecognized ones under the strimzi.io/ prefix as warnings
// rather than silently ignoring a likely typo.
var knownAnnotations = map[string]struct{}{
	v1alpha1.ControlAnnotationKey: {},
	v1alpha1.PauseAnnotationKey:   {},
}

// Warnings returns zero or more human-readable warning messages for
// deprecated or unrecognized strimzi.io/-prefixed annotations, plus deprecated
// or genuinely-unrecognized fields in resource's spec (§10: "Deprecated/
// unknown spec field warnings"). These never block reconciliation; the
// reconciler appends them to every status write regardless of the state
// transition taken.
func Warnings(resource *v1alpha1.KafkaRebalance) []string {
	var warnings []string
	for key := range resource.Annotations {
		if msg, deprecated := deprecatedAnnotations[key]; deprecated {
			warnings = append(warnings, msg)
			continue
		}
		if _, known := knownAnnotations[key]; known {
			continue
		}
		if isStrimziAnnotation(key) {
			warnings = append(warnings, fmt.Sprintf("unrecognized annotation %q", key))
		}
	}

	if resource.Spec.ReplicaMovementStrategy != "" {
		warnings = append(warnings, "spec field \"replicaMovementStrategy\" is deprecated; use spec.replicaMovementStrategies instead")
	}
	for _, key := range resource.Spec.UnknownFields {
		warnings = append(warnings, fmt.Sprintf("unrecognized spec field %q", key))
	}
	return warnings
}

func isStrimziAnnotation(key string) bool {
	const prefix = "strimzi.io/"
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}
