package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/migrations"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := zap.NewNop()
	gdb, err := db.New(logger, "file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(sqlDB, logger))
	return &Service{DB: gdb, Logger: logger, Root: t.TempDir()}
}

func TestWriteGzipThenReadGzipRoundTrips(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dump.sql.gz")
	payload := []byte("-- a pretend sql dump\nINSERT INTO t VALUES (1);\n")

	size, err := writeGzip(dest, payload)
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size())

	got, err := readGzip(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDeleteRemovesFileAndRowEvenWhenFileAlreadyAbsent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	snap := db.Snapshot{
		ID:         "snap-1",
		InstanceID: "inst-1",
		Path:       filepath.Join(svc.Root, "inst-1", "already-gone.sql.gz"),
		SizeBytes:  10,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, svc.DB.WithContext(ctx).Create(&snap).Error)

	require.NoError(t, svc.Delete(ctx, snap))

	var count int64
	require.NoError(t, svc.DB.WithContext(ctx).Model(&db.Snapshot{}).Where("id = ?", snap.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteRemovesAnExistingFile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	dir := instanceDir(svc.Root, "inst-2")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	path := filepath.Join(dir, "present.sql.gz")
	_, err := writeGzip(path, []byte("data"))
	require.NoError(t, err)

	snap := db.Snapshot{ID: "snap-2", InstanceID: "inst-2", Path: path, CreatedAt: time.Now()}
	require.NoError(t, svc.DB.WithContext(ctx).Create(&snap).Error)

	require.NoError(t, svc.Delete(ctx, snap))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestListOrdersByCreatedAtDescending(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	older := db.Snapshot{ID: "s-old", InstanceID: "inst-3", Path: "/x", CreatedAt: time.Now().Add(-time.Hour)}
	newer := db.Snapshot{ID: "s-new", InstanceID: "inst-3", Path: "/y", CreatedAt: time.Now()}
	require.NoError(t, svc.DB.WithContext(ctx).Create(&older).Error)
	require.NoError(t, svc.DB.WithContext(ctx).Create(&newer).Error)

	out, err := svc.List(ctx, "inst-3")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "s-new", out[0].ID)
	assert.Equal(t, "s-old", out[1].ID)
}

func TestDeleteForInstanceRemovesEveryRowAndFile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	dir := instanceDir(svc.Root, "inst-6")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	pathA := filepath.Join(dir, "a.sql.gz")
	pathB := filepath.Join(dir, "b.sql.gz")
	_, err := writeGzip(pathA, []byte("a"))
	require.NoError(t, err)
	_, err = writeGzip(pathB, []byte("b"))
	require.NoError(t, err)

	require.NoError(t, svc.DB.WithContext(ctx).Create(&db.Snapshot{ID: "s-a", InstanceID: "inst-6", Path: pathA, CreatedAt: time.Now()}).Error)
	require.NoError(t, svc.DB.WithContext(ctx).Create(&db.Snapshot{ID: "s-b", InstanceID: "inst-6", Path: pathB, CreatedAt: time.Now()}).Error)

	require.NoError(t, svc.DeleteForInstance(ctx, "inst-6"))

	rows, err := svc.List(ctx, "inst-6")
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, statErr := os.Stat(pathA)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(pathB)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateRejectsInstanceThatIsNotRunning(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inst := db.Instance{ID: "inst-4", EngineTag: "redis", Status: db.StatusStopped}
	_, err := svc.Create(ctx, inst, "")
	assert.ErrorIs(t, err, ErrInstanceNotRunning)
}

func TestRestoreRejectsInstanceThatIsNotRunning(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inst := db.Instance{ID: "inst-5", EngineTag: "redis", Status: db.StatusPending}
	err := svc.Restore(ctx, inst, db.Snapshot{})
	assert.ErrorIs(t, err, ErrInstanceNotRunning)
}
