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
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	unstructuredv1 "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/config"
	ccfake "github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol/fake"
	"github.com/strimzi-contrib/rebalance-operator/pkg/lock"
	"github.com/strimzi-contrib/rebalance-operator/pkg/poll"
	"github.com/strimzi-contrib/rebalance-operator/pkg/reconciler"
)

var kafkaGVK = schema.GroupVersionKind{Group: "kafka.strimzi.io", Version: "v1beta2", Kind: "Kafka"}

func kafkaCluster(ns, name string) *unstructuredv1.Unstructured {
	u := &unstructuredv1.Unstructured{}
	u.SetGroupVersionKind(kafkaGVK)
	u.SetNamespace(ns)
	u.SetName(name)
	_ = unstructuredv1.SetNestedField(u.Object, true, "status", "cruiseControlEnabled")
	return u
}

func newRebalance(ns, name, cluster string) *v1alpha1.KafkaRebalance {
	return &v1alpha1.KafkaRebalance{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:  ns,
			Name:       name,
			Generation: 1,
			Labels:     map[string]string{v1alpha1.ClusterLabelKey: cluster},
		},
	}
}

// fixture wires a Loop against a fake controller-runtime client and a
// scriptable fake optimization client, with no real timers ever firing
// (interval is an hour, far longer than any test runs).
type fixture struct {
	client client.Client
	cc     *ccfake.Client
	loop   *reconciler.Loop
}

func newFixture(objects ...client.Object) *fixture {
	scheme := runtime.NewScheme()
	Expect(v1alpha1.AddToScheme(scheme)).To(Succeed())
	metav1.AddToGroupVersion(scheme, kafkaGVK.GroupVersion())
	scheme.AddKnownTypeWithName(kafkaGVK, &unstructuredv1.Unstructured{})
	scheme.AddKnownTypeWithName(kafkaGVK.GroupVersion().WithKind("KafkaList"), &unstructuredv1.UnstructuredList{})

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objects...).WithStatusSubresource(&v1alpha1.KafkaRebalance{}).Build()
	cc := &ccfake.Client{}
	locks := lock.NewRegistry(time.Minute)
	polls := poll.NewController(c, time.Hour, func(context.Context, types.NamespacedName) bool { return false }, logr.Discard())

	return &fixture{
		client: c,
		cc:     cc,
		loop: &reconciler.Loop{
			Client:             c,
			OptimizationClient: cc,
			Locks:              locks,
			Polls:              polls,
			Config: config.Config{
				MaxAPIRetries:        5,
				LockTimeout:          time.Second,
				ClusterSelectorLabel: v1alpha1.ClusterLabelKey,
			},
			Log:         logr.Discard(),
			PollContext: context.Background(),
		},
	}
}

func (f *fixture) get(key types.NamespacedName) *v1alpha1.KafkaRebalance {
	var out v1alpha1.KafkaRebalance
	Expect(f.client.Get(context.Background(), key, &out)).To(Succeed())
	return &out
}

func stateCondition(r *v1alpha1.KafkaRebalance) v1alpha1.Condition {
	conds := r.Status.StateConditions()
	Expect(conds).To(HaveLen(1))
	return conds[0]
}
