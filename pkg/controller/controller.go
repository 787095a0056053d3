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

// Package controller wires the ReconcilerLoop to controller-runtime: a
// watch-driven Controller filtered by the configured cluster-binding label,
// and a Sweeper that re-drives every KafkaRebalance on a fixed interval
// independent of any one resource's watch events.
package controller

import (
	"context"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	opreconciler "github.com/awslabs/operatorpkg/reconciler"
	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/reconciler"
)

// Controller is the watch-driven adapter between controller-runtime's
// request-based Reconcile and the ReconcilerLoop's resource-based one. Per
// §4.5, deletes are delivered to the loop as Reconcile(ctx, key, nil).
type Controller struct {
	Client client.Client
	Loop   *reconciler.Loop
	Log    logr.Logger

	// ClusterSelectorLabel is the label key a KafkaRebalance must carry to be
	// watched; its value names the target cluster and is not itself
	// filtered on, since one controller instance serves every cluster in a
	// namespace.
	ClusterSelectorLabel string
}

var _ opreconciler.Reconciler = (*Controller)(nil)

func (c *Controller) Reconcile(ctx context.Context, req reconcile.Request) (opreconciler.Result, error) {
	var resource v1alpha1.KafkaRebalance
	if err := c.Client.Get(ctx, req.NamespacedName, &resource); err != nil {
		if apierrors.IsNotFound(err) {
			return c.Loop.Reconcile(ctx, req.NamespacedName, nil)
		}
		return opreconciler.Result{}, err
	}
	return c.Loop.Reconcile(ctx, req.NamespacedName, &resource)
}

// SetupWithManager registers the watch. On watch termination with a non-nil
// cause the manager itself restarts the subscription (§4.5); no special
// handling is needed here.
func (c *Controller) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		Named("kafkarebalance").
		For(&v1alpha1.KafkaRebalance{}, builder.WithPredicates(hasClusterLabel(c.ClusterSelectorLabel))).
		Complete(opreconciler.AsReconciler(c))
}

// hasClusterLabel admits only resources carrying the configured
// cluster-binding label, regardless of its value: the controller serves
// every KafkaCluster in a namespace, not one specific cluster.
func hasClusterLabel(labelKey string) predicate.Predicate {
	return predicate.NewPredicateFuncs(func(obj client.Object) bool {
		_, ok := obj.GetLabels()[labelKey]
		return ok
	})
}
