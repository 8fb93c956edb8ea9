package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/engine"
	"github.com/coralcp/dbaas/migrations"
)

func TestUpdateStreakAndMaybePublishFiresExactlyOnceAtThreshold(t *testing.T) {
	bus := newFakeBus()
	m := New(Options{ConsecutiveForEvent: 3, Bus: bus})
	inst := db.Instance{ID: "inst-1", Status: db.StatusRunning}

	for i := 0; i < 2; i++ {
		m.updateStreakAndMaybePublish(testCtx(), inst, engine.Unhealthy)
	}
	assert.Empty(t, bus.published, "must not fire before reaching K consecutive samples")

	m.updateStreakAndMaybePublish(testCtx(), inst, engine.Unhealthy)
	assert.Len(t, bus.published, 1)

	m.updateStreakAndMaybePublish(testCtx(), inst, engine.Unhealthy)
	assert.Len(t, bus.published, 1, "must not refire every subsequent sample past the threshold")
}

func TestUpdateStreakResetsOnStatusChange(t *testing.T) {
	bus := newFakeBus()
	m := New(Options{ConsecutiveForEvent: 2, Bus: bus})
	inst := db.Instance{ID: "inst-2", Status: db.StatusRunning}

	m.updateStreakAndMaybePublish(testCtx(), inst, engine.Unhealthy)
	m.updateStreakAndMaybePublish(testCtx(), inst, engine.Healthy)
	m.updateStreakAndMaybePublish(testCtx(), inst, engine.Unhealthy)
	assert.Empty(t, bus.published, "an interleaved status should reset the streak")
}

func TestCurrentReflectsLastProbe(t *testing.T) {
	m := New(Options{ConsecutiveForEvent: 3})
	inst := db.Instance{ID: "inst-3", Status: db.StatusRunning}
	m.updateStreakAndMaybePublish(testCtx(), inst, engine.Degraded)

	status, ok := m.Current("inst-3")
	assert.True(t, ok)
	assert.Equal(t, engine.Degraded, status)

	_, ok = m.Current("does-not-exist")
	assert.False(t, ok)
}

func TestSweepRetentionKeepsOnlyTheNewestNPerInstance(t *testing.T) {
	logger := zap.NewNop()
	gdb, err := db.New(logger, "file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(sqlDB, logger))

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, gdb.Create(&db.HealthSample{
			InstanceID: "inst-a",
			Status:     "healthy",
			CheckedAt:  base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	require.NoError(t, gdb.Create(&db.HealthSample{InstanceID: "inst-b", Status: "healthy", CheckedAt: base}).Error)

	m := New(Options{DB: gdb, Logger: logger, RetentionSamples: 2})
	m.sweepRetention()

	var aCount, bCount int64
	require.NoError(t, gdb.Model(&db.HealthSample{}).Where("instance_id = ?", "inst-a").Count(&aCount).Error)
	require.NoError(t, gdb.Model(&db.HealthSample{}).Where("instance_id = ?", "inst-b").Count(&bCount).Error)
	assert.EqualValues(t, 2, aCount)
	assert.EqualValues(t, 1, bCount)

	var remaining []db.HealthSample
	require.NoError(t, gdb.Where("instance_id = ?", "inst-a").Order("checked_at desc").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.True(t, remaining[0].CheckedAt.After(remaining[1].CheckedAt))
}
