package instance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/migrations"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := zap.NewNop()
	gdb, err := db.New(logger, "file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(sqlDB, logger))
	return NewManager(logger, gdb)
}

func TestStartRejectsTransitionFromRunning(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	inst := &db.Instance{ID: "11111111-1111-1111-1111-111111111111", Name: "n1", EngineTag: "redis", SkuID: "b1", DatabaseName: "app", Username: "u", Password: "p", Status: db.StatusRunning}
	require.NoError(t, manager.Create(ctx, inst))

	lc := NewLifecycle(manager, LifecycleOptions{Logger: zap.NewNop()})
	_, err := lc.Start(ctx, inst.ID)
	require.Error(t, err)
	var invalid *ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestStopRejectsTransitionFromPending(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	inst := &db.Instance{ID: "22222222-2222-2222-2222-222222222222", Name: "n2", EngineTag: "redis", SkuID: "b1", DatabaseName: "app", Username: "u", Password: "p", Status: db.StatusPending}
	require.NoError(t, manager.Create(ctx, inst))

	lc := NewLifecycle(manager, LifecycleOptions{Logger: zap.NewNop()})
	_, err := lc.Stop(ctx, inst.ID, 0)
	require.Error(t, err)
	var invalid *ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestDestroyOfAlreadyDestroyedInstanceSucceeds(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	inst := &db.Instance{ID: "33333333-3333-3333-3333-333333333333", Name: "n3", EngineTag: "redis", SkuID: "b1", DatabaseName: "app", Username: "u", Password: "p", Status: db.StatusDestroyed}
	require.NoError(t, manager.Create(ctx, inst))

	lc := NewLifecycle(manager, LifecycleOptions{Logger: zap.NewNop()})
	assert.NoError(t, lc.Destroy(ctx, inst.ID))
}

func TestListFiltersOutDestroyedInstances(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	live := &db.Instance{ID: "44444444-4444-4444-4444-444444444444", Name: "n4", EngineTag: "redis", SkuID: "b1", DatabaseName: "app", Username: "u", Password: "p", Status: db.StatusRunning}
	dead := &db.Instance{ID: "55555555-5555-5555-5555-555555555555", Name: "n5", EngineTag: "redis", SkuID: "b1", DatabaseName: "app", Username: "u", Password: "p", Status: db.StatusDestroyed}
	require.NoError(t, manager.Create(ctx, live))
	require.NoError(t, manager.Create(ctx, dead))

	out, err := manager.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, live.ID, out[0].ID)
}
