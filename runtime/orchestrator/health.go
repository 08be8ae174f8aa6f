package orchestrator

import (
	"context"
	"time"

	"github.com/noteldar/conductor/runtime/worker"
)

// StartHealthMonitor launches a ticker-driven loop that periodically
// inspects every registered worker; any worker in StatusError is reset.
// Grounded on the teacher's registry.Manager start/stop/waitgroup idiom
// for background sync loops.
func (o *Orchestrator) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	o.healthCancel = cancel
	o.healthWg.Add(1)
	go func() {
		defer o.healthWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.healthPass(ctx)
			}
		}
	}()
}

// StopHealthMonitor cancels the health monitor loop and waits for it to
// exit.
func (o *Orchestrator) StopHealthMonitor() {
	if o.healthCancel != nil {
		o.healthCancel()
	}
	o.healthWg.Wait()
}

func (o *Orchestrator) healthPass(ctx context.Context) {
	o.mu.RLock()
	workers := make([]*registeredWorker, 0, len(o.workers))
	for _, rw := range o.workers {
		workers = append(workers, rw)
	}
	o.mu.RUnlock()

	for _, rw := range workers {
		if rw.w.Status() == worker.StatusError {
			rw.w.Reset()
			o.logger.Info(ctx, "reset worker from error state", "worker", rw.w.Name())
		}
		o.metrics.RecordGauge("orchestrator.worker_workload", float64(rw.workload), "worker", rw.w.Name())
	}
}

// ProactiveTask is what StartProactiveGeneration submits on each firing.
type ProactiveTask func(ctx context.Context, now time.Time) []Submission

// StartProactiveGeneration launches a timer loop that calls gen once per
// day at hour (local time) and submits whatever it returns as ordinary
// tasks. Only meaningful when cfg.ProactiveMode is enabled by the caller.
func (o *Orchestrator) StartProactiveGeneration(ctx context.Context, hour int, gen ProactiveTask) {
	ctx, cancel := context.WithCancel(ctx)
	o.proCancel = cancel
	o.proWg.Add(1)
	go func() {
		defer o.proWg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		lastFired := -1
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if now.Hour() == hour && now.Day() != lastFired {
					lastFired = now.Day()
					for _, sub := range gen(ctx, now) {
						_, _ = o.Submit(ctx, sub)
					}
				}
			}
		}
	}()
}

// StopProactiveGeneration cancels the proactive generation loop.
func (o *Orchestrator) StopProactiveGeneration() {
	if o.proCancel != nil {
		o.proCancel()
	}
	o.proWg.Wait()
}
