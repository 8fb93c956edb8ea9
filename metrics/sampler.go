// Package metrics runs the periodic container-stats + adapter-metrics
// fusion described in the component design's Metrics Sampler section,
// persisting an append-only series and mirroring the current sample onto
// Prometheus gauges. The fusion shape (container stats plus adapter
// query results, missing fields left absent) is grounded on the reference
// metrics collector; the ticker/pool shape reuses the Health Monitor's.
package metrics

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/engine"
)

// Options configures a Sampler.
type Options struct {
	DB         *gorm.DB
	Containers *container.Client
	Logger     *zap.Logger
	Registerer prometheus.Registerer

	Interval       time.Duration // default 10s
	PoolSize       int           // default 16
	HistorySamples int           // default 720, served by the API as "history"
	RetentionDays  int           // default 30, swept hourly
}

type Sampler struct {
	opts Options

	mu      sync.Mutex
	current map[string]db.MetricsSample

	cpuGauge        *prometheus.GaugeVec
	memUsedGauge    *prometheus.GaugeVec
	memPercentGauge *prometheus.GaugeVec
	connGauge       *prometheus.GaugeVec
}

func New(opts Options) *Sampler {
	if opts.Interval == 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 16
	}
	if opts.HistorySamples == 0 {
		opts.HistorySamples = 720
	}
	if opts.RetentionDays == 0 {
		opts.RetentionDays = 30
	}

	labels := []string{"instance_id", "engine"}
	s := &Sampler{
		opts:    opts,
		current: map[string]db.MetricsSample{},
		cpuGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dbaas", Name: "instance_cpu_percent", Help: "Current CPU usage percent per instance.",
		}, labels),
		memUsedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dbaas", Name: "instance_memory_used_mb", Help: "Current memory usage in MB per instance.",
		}, labels),
		memPercentGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dbaas", Name: "instance_memory_percent", Help: "Current memory usage percent per instance.",
		}, labels),
		connGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dbaas", Name: "instance_connections", Help: "Current reported connections per instance, when the engine exposes one.",
		}, labels),
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(s.cpuGauge, s.memUsedGauge, s.memPercentGauge, s.connGauge)
	}
	return s
}

func (s *Sampler) Name() string { return "metrics-sampler" }

// Shutdown is a no-op: Run already exits cleanly once ctx is cancelled.
func (s *Sampler) Shutdown(ctx context.Context) error { return nil }

func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	retentionTicker := time.NewTicker(time.Hour)
	defer retentionTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		case <-retentionTicker.C:
			s.sweepRetention()
		}
	}
}

func (s *Sampler) tick(ctx context.Context) {
	var instances []db.Instance
	if err := s.opts.DB.Where("status = ?", db.StatusRunning).Find(&instances).Error; err != nil {
		s.opts.Logger.Error("listing running instances for metrics sample", zap.Error(err))
		return
	}

	sem := make(chan struct{}, s.opts.PoolSize)
	var wg sync.WaitGroup
	for _, inst := range instances {
		select {
		case sem <- struct{}{}:
		default:
			continue
		}
		wg.Add(1)
		go func(inst db.Instance) {
			defer wg.Done()
			defer func() { <-sem }()
			jitter := time.Duration(rand.Int63n(int64(s.opts.Interval) / 5))
			time.Sleep(jitter)
			s.sampleOne(ctx, inst)
		}(inst)
	}
	wg.Wait()
}

func (s *Sampler) sampleOne(ctx context.Context, inst db.Instance) {
	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		s.opts.Logger.Error("unknown engine tag during metrics sample", zap.String("instance_id", inst.ID), zap.Error(err))
		return
	}

	sample := db.MetricsSample{InstanceID: inst.ID, CollectedAt: time.Now()}

	if stats, err := s.opts.Containers.StatsOneShot(ctx, inst.ContainerID); err == nil {
		sample.CPUPercent = cpuPercentFrom(stats)
		sample.MemoryUsedMB = int64(stats.MemoryStats.Usage) / (1024 * 1024)
		sample.MemoryLimitMB = int64(stats.MemoryStats.Limit) / (1024 * 1024)
		if sample.MemoryLimitMB > 0 {
			sample.MemoryPercent = float64(sample.MemoryUsedMB) / float64(sample.MemoryLimitMB) * 100
		}
	} else {
		s.opts.Logger.Warn("reading container stats", zap.String("instance_id", inst.ID), zap.Error(err))
	}

	if adapter.Supports().Metrics {
		cmd := adapter.MetricsCommand(specFromInstance(inst))
		if res, err := s.opts.Containers.Exec(ctx, inst.ContainerID, cmd); err == nil && res.ExitCode == 0 {
			parsed := adapter.ParseMetricsOutput(res.Stdout)
			sample.Connections = parsed.Connections
			sample.ActiveQueries = parsed.ActiveQueries
			sample.CacheHitRatio = parsed.CacheHitRatio
			sample.UptimeSeconds = parsed.UptimeSeconds
		}
	}

	if err := s.opts.DB.Create(&sample).Error; err != nil {
		s.opts.Logger.Error("writing metrics sample", zap.String("instance_id", inst.ID), zap.Error(err))
	}

	s.mu.Lock()
	s.current[inst.ID] = sample
	s.mu.Unlock()

	labels := prometheus.Labels{"instance_id": inst.ID, "engine": inst.EngineTag}
	s.cpuGauge.With(labels).Set(sample.CPUPercent)
	s.memUsedGauge.With(labels).Set(float64(sample.MemoryUsedMB))
	s.memPercentGauge.With(labels).Set(sample.MemoryPercent)
	if sample.Connections != nil {
		s.connGauge.With(labels).Set(float64(*sample.Connections))
	}
}

func (s *Sampler) sweepRetention() {
	cutoff := time.Now().AddDate(0, 0, -s.opts.RetentionDays)
	if err := s.opts.DB.Where("collected_at < ?", cutoff).Delete(&db.MetricsSample{}).Error; err != nil {
		s.opts.Logger.Error("sweeping expired metrics samples", zap.Error(err))
	}
}

// Current returns the most recent fused sample for the API's Metrics(id)
// operation's "current" field.
func (s *Sampler) Current(instanceID string) (db.MetricsSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample, ok := s.current[instanceID]
	return sample, ok
}

// History returns the bounded recent series from persistence, newest last.
func (s *Sampler) History(instanceID string) ([]db.MetricsSample, error) {
	var out []db.MetricsSample
	err := s.opts.DB.Where("instance_id = ?", instanceID).
		Order("collected_at desc").
		Limit(s.opts.HistorySamples).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
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
