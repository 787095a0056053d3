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

// Package metrics declares the Prometheus series the rebalance controller
// publishes on the manager's metrics bind address: state transitions, poll
// retries against the optimization service, and lock-acquisition timeouts.
package metrics

import (
	pmetrics "github.com/awslabs/operatorpkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const subsystem = "kafkarebalance"

const (
	LabelFromState = "from_state"
	LabelToState   = "to_state"
	LabelReason    = "reason"
)

var (
	// StateTransitionsTotal counts every state the StateMachine moves a
	// resource into, labelled by the transition and its reason.
	StateTransitionsTotal = pmetrics.NewPrometheusCounter(
		metrics.Registry,
		prometheus.CounterOpts{
			Namespace: pmetrics.Namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total number of KafkaRebalance state transitions, by from/to state and reason.",
		},
		[]string{LabelFromState, LabelToState, LabelReason},
	)

	// PollRetriesTotal counts transient optimization-service call failures
	// observed during a poll tick, before the retry limit is reached.
	PollRetriesTotal = pmetrics.NewPrometheusCounter(
		metrics.Registry,
		prometheus.CounterOpts{
			Namespace: pmetrics.Namespace,
			Subsystem: subsystem,
			Name:      "poll_retries_total",
			Help:      "Total number of transient optimization service call failures observed while polling.",
		},
		[]string{},
	)

	// LockTimeoutsTotal counts reconciliations dropped because the
	// per-resource lock could not be acquired within LOCK_TIMEOUT_MS.
	LockTimeoutsTotal = pmetrics.NewPrometheusCounter(
		metrics.Registry,
		prometheus.CounterOpts{
			Namespace: pmetrics.Namespace,
			Subsystem: subsystem,
			Name:      "lock_timeouts_total",
			Help:      "Total number of reconciliations dropped after failing to acquire the per-resource lock in time.",
		},
		[]string{},
	)
)
