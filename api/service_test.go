package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/health"
	"github.com/coralcp/dbaas/hostinfo"
	"github.com/coralcp/dbaas/instance"
	"github.com/coralcp/dbaas/metrics"
	"github.com/coralcp/dbaas/migrations"
	"github.com/coralcp/dbaas/permission"
	"github.com/coralcp/dbaas/snapshot"

	_ "github.com/coralcp/dbaas/engine/adapters"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := zap.NewNop()

	gdb, err := db.New(logger, "file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(sqlDB, logger))

	manager := instance.NewManager(logger, gdb)
	lifecycle := instance.NewLifecycle(manager, instance.LifecycleOptions{Logger: logger})
	instSvc := &instance.Service{Manager: manager, Lifecycle: lifecycle, Containers: &container.Client{}}

	healthMon := health.New(health.Options{DB: gdb, Logger: logger})
	metricsSampler := metrics.New(metrics.Options{DB: gdb, Logger: logger})
	snapSvc := &snapshot.Service{DB: gdb, Logger: logger, Root: t.TempDir()}
	reporter := &hostinfo.Reporter{}

	svc, err := NewService(Options{
		Instances:  instSvc,
		Health:     healthMon,
		Metrics:    metricsSampler,
		Snapshots:  snapSvc,
		HostInfo:   reporter,
		Permission: permission.AllowAll,
		Logger:     logger,
	})
	require.NoError(t, err)
	return svc
}

func TestListEnginesReturnsRegisteredAdapters(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/engines", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body)
}

func TestListSkusReturnsCatalog(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/skus", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 28)
}

func TestCreateInstanceRejectsMissingRequiredFields(t *testing.T) {
	svc := newTestService(t)
	body, _ := json.Marshal(CreateSpec{Engine: "", DatabaseName: "", Sku: ""})
	req := httptest.NewRequest(http.MethodPost, "/instances", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInstanceRejectsUnknownEngine(t *testing.T) {
	svc := newTestService(t)
	body, _ := json.Marshal(CreateSpec{Engine: "not-a-real-engine", DatabaseName: "app", Sku: "b1"})
	req := httptest.NewRequest(http.MethodPost, "/instances", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetInstanceReturnsNotFoundForUnknownID(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/instances/does-not-exist", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInstancesOmitsPasswordField(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	inst := &db.Instance{
		ID: "inst-a", Name: "a", EngineTag: "redis", SkuID: "b1",
		DatabaseName: "app", Username: "u", Password: "super-secret",
		Status: db.StatusRunning,
	}
	require.NoError(t, svc.Instances.Manager.Create(ctx, inst))

	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")
}

func TestPermissionCheckerCanDenyWriteOperations(t *testing.T) {
	svc := newTestService(t)
	svc.Permission = func(perm permission.Permission, subject interface{}) bool {
		return perm != permission.Write
	}

	body, _ := json.Marshal(CreateSpec{Engine: "redis", DatabaseName: "app", Sku: "b1"})
	req := httptest.NewRequest(http.MethodPost, "/instances", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartRejectsInvalidTransitionWithConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	inst := &db.Instance{
		ID: "inst-b", Name: "b", EngineTag: "redis", SkuID: "b1",
		DatabaseName: "app", Username: "u", Password: "p",
		Status: db.StatusRunning,
	}
	require.NoError(t, svc.Instances.Manager.Create(ctx, inst))

	req := httptest.NewRequest(http.MethodPost, "/instances/inst-b/start", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
