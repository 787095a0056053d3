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

// Package events wires a Prometheus counter to every Kubernetes Event
// recorded against a KafkaRebalance, keyed by event type and reason. The
// reconciler writes these events directly through a record.EventRecorder
// (pkg/reconciler.Loop.Events); this package only watches the resulting
// core/v1 Event objects back out and turns them into a metric, the same
// split the operatorpkg events controller uses for any watched kind.
package events

import (
	"context"

	opevents "github.com/awslabs/operatorpkg/events"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
)

// Controller publishes operator_kafkarebalance_event_total, split by event
// type and reason, for every Event recorded against a KafkaRebalance since
// this process started.
type Controller struct {
	*opevents.Controller[*v1alpha1.KafkaRebalance]
}

// NewController builds a Controller using the wall clock as the
// controller's start time, so events recorded before process start-up (e.g.
// from a prior leader) are not double-counted on a restart.
func NewController(c client.Client) *Controller {
	return &Controller{Controller: opevents.NewController[*v1alpha1.KafkaRebalance](c, clock.RealClock{})}
}

// SetupWithManager registers the underlying watch against core/v1 Events
// whose InvolvedObject matches the KafkaRebalance GVK.
func (c *Controller) SetupWithManager(ctx context.Context, m manager.Manager) error {
	return c.Controller.Register(ctx, m)
}
