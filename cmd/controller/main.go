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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/awslabs/operatorpkg/env"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
	"github.com/strimzi-contrib/rebalance-operator/pkg/config"
	rebalancecontroller "github.com/strimzi-contrib/rebalance-operator/pkg/controller"
	"github.com/strimzi-contrib/rebalance-operator/pkg/cruisecontrol"
	rebalanceevents "github.com/strimzi-contrib/rebalance-operator/pkg/events"
	"github.com/strimzi-contrib/rebalance-operator/pkg/lock"
	"github.com/strimzi-contrib/rebalance-operator/pkg/poll"
	"github.com/strimzi-contrib/rebalance-operator/pkg/reconciler"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
}

// cliOptions holds the options that only make sense for a running binary
// (bind addresses, leader election, logging mode, sweep interval, settings
// file path), following the teacher's flag-default-from-env convention. The
// config.Config tunables are not exposed as flags; they come from
// config.Load.
type cliOptions struct {
	settingsPath    string
	metricsAddr     string
	healthProbeAddr string
	leaderElection  bool
	devLogging      bool
	sweepInterval   time.Duration
}

func main() {
	opts := cliOptions{}
	flag.StringVar(&opts.settingsPath, "settings", env.WithDefaultString("SETTINGS_PATH", ""), "Path to an optional TOML settings file")
	flag.StringVar(&opts.metricsAddr, "metrics-bind-address", env.WithDefaultString("METRICS_BIND_ADDRESS", ":8080"), "The address the metric endpoint binds to")
	flag.StringVar(&opts.healthProbeAddr, "health-probe-bind-address", env.WithDefaultString("HEALTH_PROBE_BIND_ADDRESS", ":8081"), "The address the health probe endpoint binds to")
	flag.BoolVar(&opts.leaderElection, "leader-elect", env.WithDefaultInt("LEADER_ELECT", 1) != 0, "Enable leader election for controller manager")
	flag.BoolVar(&opts.devLogging, "dev-logging", env.WithDefaultInt("DEV_LOGGING", 0) != 0, "Use a human-readable, non-sampled development logging config")
	flag.DurationVar(&opts.sweepInterval, "sweep-interval", time.Duration(env.WithDefaultInt64("SWEEP_INTERVAL_MS", 60000))*time.Millisecond, "How often every KafkaRebalance is re-reconciled regardless of watch events")
	flag.Parse()

	cfg, err := config.Load(opts.settingsPath)
	if err != nil {
		panic(fmt.Sprintf("loading configuration: %s", err.Error()))
	}

	zapLog, err := buildZapLogger(opts.devLogging)
	if err != nil {
		panic(fmt.Sprintf("building logger: %s", err.Error()))
	}
	log := zapr.NewLogger(zapLog)
	ctrl.SetLogger(log)

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: opts.metricsAddr},
		HealthProbeBindAddress: opts.healthProbeAddr,
		LeaderElection:         opts.leaderElection,
		LeaderElectionID:       "rebalance-operator-leader-election",
	})
	if err != nil {
		panic(fmt.Sprintf("unable to start manager: %s", err.Error()))
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		panic(fmt.Sprintf("unable to set up health check: %s", err.Error()))
	}
	if err := mgr.AddReadyzCheck("readyz", func(req *http.Request) error {
		if !mgr.GetCache().WaitForCacheSync(req.Context()) {
			return fmt.Errorf("caches not synced")
		}
		return nil
	}); err != nil {
		panic(fmt.Sprintf("unable to set up ready check: %s", err.Error()))
	}

	ctx := ctrl.SetupSignalHandler()

	ccClient := cruisecontrol.NewClient(cfg.CruiseControlBaseURL, cfg.CruiseControlRequestTimeout, log.WithName("cruisecontrol"))
	locks := lock.NewRegistry(10 * time.Minute)

	var loop *reconciler.Loop
	tick := func(ctx context.Context, key types.NamespacedName) bool {
		var resource v1alpha1.KafkaRebalance
		if err := mgr.GetClient().Get(ctx, key, &resource); err != nil {
			if apierrors.IsNotFound(err) {
				return false
			}
			log.Error(err, "poll tick failed to load resource", "key", key)
			return true
		}
		if _, err := loop.Reconcile(ctx, key, &resource); err != nil {
			log.Error(err, "poll-triggered reconciliation failed", "key", key)
		}
		return loop.Polls.Active(key)
	}
	polls := poll.NewController(mgr.GetClient(), cfg.PollingInterval, tick, log.WithName("poll"))

	loop = &reconciler.Loop{
		Client:             mgr.GetClient(),
		OptimizationClient: ccClient,
		Locks:              locks,
		Polls:              polls,
		Config:             cfg,
		Log:                log.WithName("reconciler"),
		Events:             mgr.GetEventRecorderFor("rebalance-operator"),
		PollContext:        ctx,
	}

	rebalanceController := &rebalancecontroller.Controller{
		Client:               mgr.GetClient(),
		Loop:                 loop,
		Log:                  log.WithName("controller"),
		ClusterSelectorLabel: cfg.ClusterSelectorLabel,
	}
	if err := rebalanceController.SetupWithManager(mgr); err != nil {
		panic(fmt.Sprintf("unable to set up rebalance controller: %s", err.Error()))
	}

	sweeper := &rebalancecontroller.Sweeper{
		Client:   mgr.GetClient(),
		Loop:     loop,
		Interval: opts.sweepInterval,
		Log:      log.WithName("sweeper"),
	}
	if err := sweeper.SetupWithManager(mgr); err != nil {
		panic(fmt.Sprintf("unable to set up sweep controller: %s", err.Error()))
	}

	eventMetrics := rebalanceevents.NewController(mgr.GetClient())
	if err := eventMetrics.SetupWithManager(context.Background(), mgr); err != nil {
		panic(fmt.Sprintf("unable to set up event metrics controller: %s", err.Error()))
	}

	if err := mgr.Start(ctx); err != nil {
		panic(fmt.Sprintf("problem running manager: %s", err.Error()))
	}
}

// buildZapLogger follows the teacher's pattern of deriving the
// controller-runtime logger from an underlying zap.Logger rather than
// controller-runtime's own logging helpers, so operators get zap's
// structured, leveled JSON output in production and a readable console
// encoder during local development.
func buildZapLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
