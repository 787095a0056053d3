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

// Package status builds, diffs, and validates the status document of a
// KafkaRebalance resource. It is the only place that constructs a
// v1alpha1.KafkaRebalanceStatus from scratch, so the single-state-condition
// invariant is enforced in exactly one spot.
package status

import (
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/equality"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
)

// Builder accumulates the pieces of a desired status and renders a single,
// well-formed v1alpha1.KafkaRebalanceStatus.
type Builder struct {
	observedGeneration int64
	sessionID          *string
	optimizationResult map[string]string
	state              v1alpha1.StateName
	stateReason        string
	stateMessage       string
	paused             bool
	warnings           []string
	now                func() metav1.Time
}

// NewBuilder starts a Builder for the given observed generation.
func NewBuilder(observedGeneration int64) *Builder {
	return &Builder{
		observedGeneration: observedGeneration,
		now:                func() metav1.Time { return metav1.Now() },
	}
}

// WithState sets the single mutually-exclusive state condition.
func (b *Builder) WithState(state v1alpha1.StateName, reason, message string) *Builder {
	b.state = state
	b.stateReason = reason
	b.stateMessage = message
	return b
}

// WithSessionID records the optimization-service session correlated with
// this status, or clears it when id is nil.
func (b *Builder) WithSessionID(id *string) *Builder {
	b.sessionID = id
	return b
}

// WithOptimizationResult records the last summary document returned by the
// optimization service.
func (b *Builder) WithOptimizationResult(summary map[string]string) *Builder {
	b.optimizationResult = summary
	return b
}

// WithPaused marks the resource as reconciliation-paused. A paused status
// carries only the ReconciliationPaused condition plus any warnings; any
// state set with WithState is not rendered. The reconciler short-circuits
// before computing a new state and sets no session id or optimization
// result on a paused status, so writing it drops the previous state
// condition, sessionId and optimizationResult (see pkg/reconciler).
func (b *Builder) WithPaused(paused bool) *Builder {
	b.paused = paused
	return b
}

// WithWarning appends a free-text validation or deprecation warning. Callers
// may add more than one; they are merged into a single Warning condition.
func (b *Builder) WithWarning(msg string) *Builder {
	b.warnings = append(b.warnings, msg)
	return b
}

// Build renders the accumulated fields into a status document, enforcing the
// single-state-condition invariant by construction (there is no path that
// appends more than one state-typed condition).
func (b *Builder) Build() v1alpha1.KafkaRebalanceStatus {
	now := b.now()
	var conditions []v1alpha1.Condition

	if b.paused {
		conditions = append(conditions, v1alpha1.Condition{
			Type:               v1alpha1.ConditionTypeReconciliationPaused,
			Status:             v1alpha1.ConditionTrue,
			Reason:             "Paused",
			Message:            "reconciliation paused by strimzi.io/pause-reconciliation",
			LastTransitionTime: now,
		})
	} else if b.state != "" {
		conditions = append(conditions, v1alpha1.Condition{
			Type:               string(b.state),
			Status:             v1alpha1.ConditionTrue,
			Reason:             b.stateReason,
			Message:            b.stateMessage,
			LastTransitionTime: now,
		})
	}

	if len(b.warnings) > 0 {
		conditions = append(conditions, v1alpha1.Condition{
			Type:               v1alpha1.ConditionTypeWarning,
			Status:             v1alpha1.ConditionTrue,
			Reason:             "ValidationWarning",
			Message:            joinWarnings(b.warnings),
			LastTransitionTime: now,
		})
	}

	return v1alpha1.KafkaRebalanceStatus{
		ObservedGeneration: b.observedGeneration,
		SessionID:          b.sessionID,
		OptimizationResult: b.optimizationResult,
		Conditions:         conditions,
	}
}

func joinWarnings(warnings []string) string {
	sorted := append([]string(nil), warnings...)
	sort.Strings(sorted)
	sorted = lo.Uniq(sorted)
	msg := sorted[0]
	for _, w := range sorted[1:] {
		msg += "; " + w
	}
	return msg
}

// CurrentState inspects a status's condition list and returns the single
// recognized state it carries. If no condition matches a state name, the
// resource is New. If more than one matches, ErrMultipleStateConditions is
// returned so the caller can fold it into a NotReady write, per the §3
// data-model invariant.
func CurrentState(s v1alpha1.KafkaRebalanceStatus) (v1alpha1.StateName, error) {
	matches := s.StateConditions()
	switch len(matches) {
	case 0:
		return v1alpha1.StateNew, nil
	case 1:
		return v1alpha1.StateName(matches[0].Type), nil
	default:
		types := lo.Map(matches, func(c v1alpha1.Condition, _ int) string { return c.Type })
		return "", fmt.Errorf("%w: %v", ErrMultipleStateConditions, types)
	}
}

// ErrMultipleStateConditions is returned by CurrentState when a status
// carries more than one condition whose type names a recognized state.
var ErrMultipleStateConditions = fmt.Errorf("status carries more than one state condition")

// SessionID returns the session id recorded in status, or "" if absent.
func SessionID(s v1alpha1.KafkaRebalanceStatus) string {
	return lo.FromPtr(s.SessionID)
}

// Equal reports whether two statuses are semantically identical, ignoring
// LastTransitionTime (a fresh Builder.Build always stamps "now", so a naive
// DeepEqual would never elide a write). A hashstructure hash of the
// time-scrubbed documents is compared first as a fast path; on a hash
// collision (or always, since hashes are cheap here) the scrubbed values are
// compared with equality.Semantic.DeepEqual to confirm before skipping a
// write.
func Equal(a, b v1alpha1.KafkaRebalanceStatus) bool {
	sa, sb := scrubTimestamps(a), scrubTimestamps(b)
	ha, errA := hashstructure.Hash(sa, hashstructure.FormatV2, nil)
	hb, errB := hashstructure.Hash(sb, hashstructure.FormatV2, nil)
	if errA != nil || errB != nil {
		return equality.Semantic.DeepEqual(sa, sb)
	}
	if ha != hb {
		return false
	}
	// Hash match confirmed against content before eliding a write, guarding
	// against an (extremely unlikely) hash collision.
	return equality.Semantic.DeepEqual(sa, sb)
}

func scrubTimestamps(s v1alpha1.KafkaRebalanceStatus) v1alpha1.KafkaRebalanceStatus {
	out := s
	out.Conditions = make([]v1alpha1.Condition, len(s.Conditions))
	for i, c := range s.Conditions {
		c.LastTransitionTime = metav1.Time{Time: time.Time{}}
		out.Conditions[i] = c
	}
	return out
}
