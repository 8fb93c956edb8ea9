// Package health runs the periodic liveness/readiness probe loop described
// in the component design's Health Monitor section: ticker-driven, bounded
// concurrency, classify-and-record, publish on a sustained status change.
// The probe/classify/record shape is grounded on the reference health
// monitor; the ticker+semaphore worker shape is grounded on the teacher
// stack's worker controller.
package health

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/engine"
	"github.com/coralcp/dbaas/eventbus"
)

// Options configures a Monitor. Interval and ConsecutiveForEvent fall back
// to sane defaults when zero.
type Options struct {
	DB         *gorm.DB
	Containers *container.Client
	Bus        eventbus.Bus
	Logger     *zap.Logger

	Interval            time.Duration // default 30s
	ConsecutiveForEvent int           // K, default 3
	PoolSize            int           // default 16
	RetentionSamples    int           // keep last N per instance, default 1000, swept hourly
}

// Monitor tracks current status per instance in memory and writes an
// append-only HealthSample on every probe.
type Monitor struct {
	opts Options

	mu      sync.Mutex
	current map[string]streakState
}

type streakState struct {
	status engine.HealthStatus
	streak int
}

func New(opts Options) *Monitor {
	if opts.Interval == 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ConsecutiveForEvent == 0 {
		opts.ConsecutiveForEvent = 3
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 16
	}
	if opts.RetentionSamples == 0 {
		opts.RetentionSamples = 1000
	}
	return &Monitor{opts: opts, current: map[string]streakState{}}
}

// Run drives the ticker loop until ctx is cancelled. Satisfies the
// jimmicro/grace Grace interface's expected shape (Name + a blocking Run).
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	retentionTicker := time.NewTicker(time.Hour)
	defer retentionTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick(ctx)
		case <-retentionTicker.C:
			m.sweepRetention()
		}
	}
}

func (m *Monitor) Name() string { return "health-monitor" }

// Shutdown is a no-op: Run already exits cleanly once ctx is cancelled.
func (m *Monitor) Shutdown(ctx context.Context) error { return nil }

func (m *Monitor) tick(ctx context.Context) {
	var instances []db.Instance
	if err := m.opts.DB.Where("status = ?", db.StatusRunning).Find(&instances).Error; err != nil {
		m.opts.Logger.Error("listing running instances for health probe", zap.Error(err))
		return
	}

	sem := make(chan struct{}, m.opts.PoolSize)
	var wg sync.WaitGroup
	for _, inst := range instances {
		select {
		case sem <- struct{}{}:
		default:
			// pool is saturated; skip this instance for the tick rather
			// than queue, per the backpressure policy.
			continue
		}
		wg.Add(1)
		go func(inst db.Instance) {
			defer wg.Done()
			defer func() { <-sem }()
			jitter := time.Duration(rand.Int63n(int64(m.opts.Interval) / 5))
			time.Sleep(jitter)
			m.probeOne(ctx, inst)
		}(inst)
	}
	wg.Wait()
}

func (m *Monitor) probeOne(ctx context.Context, inst db.Instance) {
	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		m.opts.Logger.Error("unknown engine tag during health probe", zap.String("instance_id", inst.ID), zap.Error(err))
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.Interval/2)
	defer cancel()

	spec := specFromInstance(inst)
	cmd := adapter.HealthCheckCommand(spec)

	start := time.Now()
	result, execErr := m.opts.Containers.Exec(probeCtx, inst.ContainerID, cmd)
	elapsed := time.Since(start)

	var classified engine.HealthResult
	switch {
	case probeCtx.Err() == context.DeadlineExceeded:
		classified = engine.HealthResult{Status: engine.Unknown, Message: "health probe timed out"}
	case execErr != nil:
		classified = engine.HealthResult{Status: engine.Unknown, Message: execErr.Error()}
	default:
		classified = adapter.ParseHealthCheckOutput(result.ExitCode, result.Stdout, result.Stderr)
	}

	sample := db.HealthSample{
		InstanceID:     inst.ID,
		Status:         string(classified.Status),
		ResponseTimeMS: elapsed.Milliseconds(),
		Details:        db.StringMap(classified.Details),
		CheckedAt:      time.Now(),
	}
	if sample.Details == nil {
		sample.Details = db.StringMap{}
	}
	if err := m.opts.DB.Create(&sample).Error; err != nil {
		m.opts.Logger.Error("writing health sample", zap.String("instance_id", inst.ID), zap.Error(err))
	}

	m.updateStreakAndMaybePublish(ctx, inst, classified.Status)
}

func (m *Monitor) updateStreakAndMaybePublish(ctx context.Context, inst db.Instance, status engine.HealthStatus) {
	m.mu.Lock()
	prev, seen := m.current[inst.ID]
	var streak int
	if seen && prev.status == status {
		streak = prev.streak + 1
	} else {
		streak = 1
	}
	m.current[inst.ID] = streakState{status: status, streak: streak}
	m.mu.Unlock()

	if !seen || prev.status == status {
		if streak != m.opts.ConsecutiveForEvent {
			return
		}
	} else if streak < m.opts.ConsecutiveForEvent {
		return
	}

	if m.opts.Bus == nil {
		return
	}
	ev := eventbus.StatusChangeEvent{
		InstanceID: inst.ID,
		OldStatus:  string(inst.Status),
		NewStatus:  string(status),
		Streak:     streak,
		At:         time.Now(),
	}
	if err := m.opts.Bus.PublishStatusChange(ctx, ev); err != nil {
		m.opts.Logger.Warn("publishing status change event", zap.String("instance_id", inst.ID), zap.Error(err))
	}
}

// sweepRetention trims each instance's HealthSample history down to the
// last RetentionSamples rows, newest first, so the table doesn't grow
// unbounded the way an append-only log otherwise would.
func (m *Monitor) sweepRetention() {
	var instanceIDs []string
	if err := m.opts.DB.Model(&db.HealthSample{}).Distinct("instance_id").Pluck("instance_id", &instanceIDs).Error; err != nil {
		m.opts.Logger.Error("listing instances for health retention sweep", zap.Error(err))
		return
	}
	for _, id := range instanceIDs {
		var keepIDs []uint
		err := m.opts.DB.Model(&db.HealthSample{}).
			Where("instance_id = ?", id).
			Order("checked_at desc, id desc").
			Limit(m.opts.RetentionSamples).
			Pluck("id", &keepIDs).Error
		if err != nil {
			m.opts.Logger.Error("listing retained health samples", zap.String("instance_id", id), zap.Error(err))
			continue
		}
		if len(keepIDs) == 0 {
			continue
		}
		if err := m.opts.DB.Where("instance_id = ? AND id NOT IN ?", id, keepIDs).Delete(&db.HealthSample{}).Error; err != nil {
			m.opts.Logger.Error("sweeping expired health samples", zap.String("instance_id", id), zap.Error(err))
		}
	}
}

// Current returns the in-memory current status for an instance, for the
// API's Health(id) operation to serve without a DB round trip.
func (m *Monitor) Current(instanceID string) (engine.HealthStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.current[instanceID]
	return s.status, ok
}

func specFromInstance(inst db.Instance) engine.Spec {
	return engine.Spec{
		InstanceID:   inst.ID,
		DatabaseName: inst.DatabaseName,
		Username:     inst.Username,
		Password:     inst.Password,
		Host:         inst.HostAddress,
		Port:         inst.Port,
		MemoryMB:     inst.MemoryLimitMB,
		CPU:          inst.CPULimit,
	}
}
