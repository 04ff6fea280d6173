package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quoram/sentryflow/infrastructure/logging"
	"github.com/quoram/sentryflow/pkg/behavior"
	"github.com/quoram/sentryflow/pkg/learning"
	"github.com/quoram/sentryflow/pkg/population"
	"github.com/quoram/sentryflow/pkg/reputation"
)

// sweepSchedule is how often the reputation/behavior/population stores
// evict entries past their configured TTL, expressed as a cron schedule so
// operators can retune the cadence the same way the teacher's automation
// service schedules recurring jobs. Independent of the cluster engine's
// recompute cadence, which is driven by its own Options.Interval.
const sweepSchedule = "@every 10m"

// runBackgroundWorkers starts the long-lived goroutines every Orchestrator
// needs alongside the request path: the learning bus consumer drain loop
// (§4.8 — never run synchronously on the request path) and a cron-scheduled
// TTL sweep of the stores that accumulate per-signature state. Returns when
// ctx is cancelled; callers should launch this in its own goroutine.
func runBackgroundWorkers(ctx context.Context, bus *learning.Bus, consumer *learning.Consumer, rep *reputation.Store, beh *behavior.Store, pop *population.Registry, repTTL, behTTL time.Duration, log *logging.Logger) {
	go bus.Run(ctx, consumer.Handle)

	sweeper := cron.New()
	_, err := sweeper.AddFunc(sweepSchedule, func() {
		now := time.Now()
		evicted := rep.Sweep(now, repTTL)
		evictedBeh := beh.Sweep(now)
		evictedPop := pop.Sweep(now)
		if log != nil {
			log.WithFields(map[string]interface{}{
				"reputation_evicted": evicted,
				"behavior_evicted":   evictedBeh,
				"population_evicted": evictedPop,
			}).Debug("sweep complete")
		}
	})
	if err != nil {
		if log != nil {
			log.WithError(err).Error("failed to schedule TTL sweep, stores will grow unbounded")
		}
		<-ctx.Done()
		return
	}

	sweeper.Start()
	<-ctx.Done()
	<-sweeper.Stop().Done()
}
