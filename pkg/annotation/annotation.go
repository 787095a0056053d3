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

// Package annotation decodes the strimzi.io/rebalance control annotation
// carried on a KafkaRebalance resource into a typed command.
package annotation

import (
	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
)

// Command is a decoded value of the strimzi.io/rebalance annotation.
type Command string

const (
	// None means the annotation was absent or empty.
	None Command = ""
	// Approve moves a ProposalReady resource into execution.
	Approve Command = "approve"
	// Refresh requests a new optimization proposal be computed.
	Refresh Command = "refresh"
	// Stop cancels an in-flight rebalance.
	Stop Command = "stop"
	// Unknown is any non-empty value that does not match a recognized command.
	Unknown Command = "unknown"
)

var recognized = map[string]Command{
	"approve": Approve,
	"refresh": Refresh,
	"stop":    Stop,
}

// Decode reads the control annotation from annotations and returns the Command it
// names. A value that isn't one of approve/refresh/stop decodes to Unknown
// rather than an error, so the caller can surface a Warning condition without
// failing reconciliation outright.
func Decode(annotations map[string]string) Command {
	raw, ok := annotations[v1alpha1.ControlAnnotationKey]
	if !ok || raw == "" {
		return None
	}
	if cmd, ok := recognized[raw]; ok {
		return cmd
	}
	return Unknown
}

// IsPaused reports whether the pause annotation is set to a truthy value.
func IsPaused(annotations map[string]string) bool {
	return annotations[v1alpha1.PauseAnnotationKey] == "true"
}

// Strip removes the control annotation from the map in place, returning
// whether it was present. Reconciliation must strip a consumed command so
// the same annotation value is not reapplied on the next reconcile.
func Strip(annotations map[string]string) bool {
	if annotations == nil {
		return false
	}
	_, ok := annotations[v1alpha1.ControlAnnotationKey]
	if ok {
		delete(annotations, v1alpha1.ControlAnnotationKey)
	}
	return ok
}
