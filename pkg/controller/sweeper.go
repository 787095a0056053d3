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

package controller

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	opreconciler "github.com/awslabs/operatorpkg/reconciler"
	"github.com/awslabs/operatorpkg/singleton"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/reconciler"
)

// Sweeper re-drives every KafkaRebalance across every namespace on a fixed
// interval, independent of watch events. It exists because a poll timer or a
// dropped watch event must never be the only thing standing between a
// resource and forward progress: the sweep is the backstop that notices a
// resource the event-driven path missed.
type Sweeper struct {
	Client   client.Client
	Loop     *reconciler.Loop
	Interval time.Duration
	Log      logr.Logger
}

var _ singleton.Reconciler = (*Sweeper)(nil)

func (s *Sweeper) Reconcile(ctx context.Context) (opreconciler.Result, error) {
	var list v1alpha1.KafkaRebalanceList
	if err := s.Client.List(ctx, &list); err != nil {
		return opreconciler.Result{}, err
	}
	for i := range list.Items {
		resource := &list.Items[i]
		key := client.ObjectKeyFromObject(resource)
		if _, err := s.Loop.Reconcile(ctx, key, resource); err != nil {
			s.Log.Error(err, "sweep reconciliation failed", "key", key)
		}
	}
	return opreconciler.Result{RequeueAfter: s.Interval}, nil
}

// SetupWithManager registers the sweep as a singleton controller driven by a
// channel source that re-queues itself forever at Interval.
func (s *Sweeper) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		Named("kafkarebalance.sweep").
		WatchesRawSource(singleton.Source()).
		Complete(singleton.AsReconciler(s))
}
