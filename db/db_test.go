package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coralcp/dbaas/migrations"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger := zap.NewNop()
	gdb, err := New(logger, "file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(sqlDB, logger))

	return gdb
}

func TestLambdaUpdateAppliesDecisionOnlyWhenRequested(t *testing.T) {
	gdb := openTestDB(t)

	inst := Instance{
		ID:           "11111111-1111-1111-1111-111111111111",
		Name:         "test-instance",
		EngineTag:    "postgresql",
		SkuID:        "d2",
		DatabaseName: "app",
		Username:     "admin",
		Password:     "secret",
		Status:       StatusPending,
	}
	require.NoError(t, gdb.Create(&inst).Error)

	err := LambdaUpdate(gdb, inst.ID, func(i *Instance) (bool, error) {
		i.Status = StatusCreating
		return true, nil
	})
	require.NoError(t, err)

	var reloaded Instance
	require.NoError(t, gdb.First(&reloaded, "id = ?", inst.ID).Error)
	assert.Equal(t, StatusCreating, reloaded.Status)

	err = LambdaUpdate(gdb, inst.ID, func(i *Instance) (bool, error) {
		i.Status = StatusFailed
		return false, nil
	})
	require.NoError(t, err)

	require.NoError(t, gdb.First(&reloaded, "id = ?", inst.ID).Error)
	assert.Equal(t, StatusCreating, reloaded.Status, "decision declined save, status must be unchanged")
}

func TestStringMapRoundTripsThroughScanValue(t *testing.T) {
	gdb := openTestDB(t)

	sample := HealthSample{
		InstanceID: "abc",
		Status:     "healthy",
		Details:    StringMap{"latency_ms": "12"},
	}
	require.NoError(t, gdb.Create(&sample).Error)

	var reloaded HealthSample
	require.NoError(t, gdb.First(&reloaded, "id = ?", sample.ID).Error)
	assert.Equal(t, "12", reloaded.Details["latency_ms"])
}

func TestUniqueNameConstraintOnlyAppliesToLiveInstances(t *testing.T) {
	gdb := openTestDB(t)

	destroyed := Instance{
		ID: "22222222-2222-2222-2222-222222222222", Name: "dup-name",
		EngineTag: "redis", SkuID: "b1", DatabaseName: "app",
		Username: "admin", Password: "secret", Status: StatusDestroyed,
	}
	require.NoError(t, gdb.Create(&destroyed).Error)

	live := Instance{
		ID: "33333333-3333-3333-3333-333333333333", Name: "dup-name",
		EngineTag: "redis", SkuID: "b1", DatabaseName: "app",
		Username: "admin", Password: "secret", Status: StatusRunning,
	}
	assert.NoError(t, gdb.Create(&live).Error, "a destroyed instance must not block reuse of its name")
}
