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

// Package poll owns the periodic timers that re-drive the reconciler for a
// KafkaRebalance while it waits on the optimization service (PendingProposal,
// Rebalancing). It is deliberately not a self-rescheduling recursive timer
// callback: each active key gets one goroutine driven by a time.Ticker, so
// the set of live timers is always exactly the set of live goroutines (see
// the design note in SPEC_FULL.md §9).
package poll

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	gocache "github.com/patrickmn/go-cache"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/status"
)

// Tick is invoked once per timer tick for a key, after the controller has
// re-read the resource; it receives only the key and loads whatever it needs
// itself. It returns whether polling should continue for this key; the
// controller cancels the timer itself whenever it returns false.
type Tick func(ctx context.Context, key types.NamespacedName) (continuePolling bool)

// Controller owns one ticking goroutine per actively-polled resource key.
type Controller struct {
	mu     sync.Mutex
	active map[types.NamespacedName]context.CancelFunc

	client   client.Client
	interval time.Duration
	tick     Tick
	log      logr.Logger

	// seen records a last-active timestamp per key purely for observability;
	// it never gates locking or scheduling decisions, mirroring the
	// teacher's sequence-numbered keyed-cache idiom in
	// pkg/cache/unavailableofferings.go.
	seen *gocache.Cache
}

// NewController builds a Controller. interval is the fixed tick period
// (REBALANCE_POLLING_TIMER_MS); tick is called on every tick for every
// active key.
func NewController(c client.Client, interval time.Duration, tick Tick, log logr.Logger) *Controller {
	return &Controller{
		active:   map[types.NamespacedName]context.CancelFunc{},
		client:   c,
		interval: interval,
		tick:     tick,
		log:      log,
		seen:     gocache.New(10*interval, 10*interval),
	}
}

// Start installs a timer for key if one is not already running. Starting a
// timer twice for the same key is idempotent: the second call is a no-op and
// returns false.
func (c *Controller) Start(ctx context.Context, key types.NamespacedName, installedState v1alpha1.StateName) bool {
	c.mu.Lock()
	if _, ok := c.active[key]; ok {
		c.mu.Unlock()
		return false
	}
	tickCtx, cancel := context.WithCancel(ctx)
	c.active[key] = cancel
	c.mu.Unlock()
	c.seen.SetDefault(key.String(), time.Now())

	go c.run(tickCtx, key, installedState)
	return true
}

// Stop cancels any active timer for key. It is a no-op if none is running.
func (c *Controller) Stop(key types.NamespacedName) {
	c.mu.Lock()
	cancel, ok := c.active[key]
	if ok {
		delete(c.active, key)
	}
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// Active reports whether key currently has a running timer.
func (c *Controller) Active(key types.NamespacedName) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[key]
	return ok
}

func (c *Controller) run(ctx context.Context, key types.NamespacedName, installedState v1alpha1.StateName) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer c.Stop(key)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.fireOnce(ctx, key, installedState) {
				return
			}
		}
	}
}

// fireOnce re-reads the resource (retried against transient apiserver read
// failures with retry-go) and dispatches one tick. It returns false when the
// timer for key should stop: the resource was deleted, its recorded state no
// longer matches the one the timer was installed for, or the tick itself
// reports it is done polling.
func (c *Controller) fireOnce(ctx context.Context, key types.NamespacedName, installedState v1alpha1.StateName) bool {
	c.seen.SetDefault(key.String(), time.Now())

	var resource v1alpha1.KafkaRebalance
	err := retry.Do(
		func() error { return c.client.Get(ctx, key, &resource) },
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.IsNotFound(err) }),
	)
	if errors.IsNotFound(err) {
		c.log.V(1).Info("poll tick found resource deleted, cancelling timer", "key", key)
		return false
	}
	if err != nil {
		c.log.Error(err, "poll tick failed to re-read resource", "key", key)
		return true
	}

	current, stateErr := status.CurrentState(resource.Status)
	if stateErr != nil || current != installedState {
		c.log.V(1).Info("poll tick observed a state change, handing control back to the reconciler", "key", key, "installedState", installedState, "currentState", current)
		c.tick(ctx, key)
		return false
	}

	return c.tick(ctx, key)
}
