package adapters

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coralcp/dbaas/engine"
)

func testSpec() engine.Spec {
	return engine.Spec{
		InstanceID:   "11111111-1111-1111-1111-111111111111",
		DatabaseName: "app",
		Username:     "admin",
		Password:     "s3cr3t-pw",
		Host:         "127.0.0.1",
		Port:         15432,
		MemoryMB:     2048,
		CPU:          1,
	}
}

var allAdapters = []engine.Adapter{
	postgresqlAdapter{},
	mysqlAdapter{},
	mongodbAdapter{},
	redisAdapter{},
	cassandraAdapter{},
	elasticsearchAdapter{},
	neo4jAdapter{},
	influxdbAdapter{},
	duckdbAdapter{},
	clickhouseAdapter{},
}

func TestEveryAdapterHasUniqueNonemptyTag(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range allAdapters {
		tag := a.Tag()
		assert.NotEmpty(t, tag)
		assert.Falsef(t, seen[tag], "duplicate tag %s", tag)
		seen[tag] = true
	}
}

func TestEveryAdapterBuildsAHealthCheckCommandOrIsEmbedded(t *testing.T) {
	spec := testSpec()
	for _, a := range allAdapters {
		cmd := a.HealthCheckCommand(spec)
		if a.Supports().Embedded {
			assert.Empty(t, cmd.Argv, a.Tag())
			continue
		}
		assert.NotEmpty(t, cmd.Argv, a.Tag())
	}
}

func TestConnectionStringContainsHostAndPort(t *testing.T) {
	spec := testSpec()
	for _, a := range allAdapters {
		if a.Tag() == "duckdb" {
			continue // embedded, no network endpoint
		}
		cs := a.ConnectionString(spec)
		assert.Contains(t, cs, spec.Host, a.Tag())
		assert.Contains(t, cs, fmt.Sprintf(":%d", spec.Port), a.Tag())
	}
}

func TestPostgresHealthCheckClassification(t *testing.T) {
	a := postgresqlAdapter{}
	healthy := a.ParseHealthCheckOutput(0, "localhost:5432 - accepting connections", "")
	assert.Equal(t, engine.Healthy, healthy.Status)

	degraded := a.ParseHealthCheckOutput(1, "", "rejecting")
	assert.Equal(t, engine.Degraded, degraded.Status)

	unhealthy := a.ParseHealthCheckOutput(2, "", "not responding")
	assert.Equal(t, engine.Unhealthy, unhealthy.Status)
}

func TestPostgresMetricsParsing(t *testing.T) {
	a := postgresqlAdapter{}
	out := `{"connections":5,"active_queries":1,"cache_hit_ratio":0.98,"uptime_seconds":120.5}`
	m := a.ParseMetricsOutput(out)
	require.NotNil(t, m.Connections)
	assert.EqualValues(t, 5, *m.Connections)
	require.NotNil(t, m.CacheHitRatio)
	assert.InDelta(t, 0.98, *m.CacheHitRatio, 0.0001)
	require.NotNil(t, m.UptimeSeconds)
	assert.EqualValues(t, 120, *m.UptimeSeconds)
}

func TestPostgresMetricsParsingMissingFieldsStayNil(t *testing.T) {
	a := postgresqlAdapter{}
	m := a.ParseMetricsOutput("")
	assert.Nil(t, m.Connections)
	assert.Nil(t, m.CacheHitRatio)
}

func TestRedisHasNoDatabaseOrUserSupport(t *testing.T) {
	a := redisAdapter{}
	supports := a.Supports()
	assert.False(t, supports.LogicalDatabases)
	assert.False(t, supports.Users)
	assert.True(t, supports.Backup)
}

func TestDuckDBIsEmbeddedWithNoImage(t *testing.T) {
	a := duckdbAdapter{}
	assert.Empty(t, a.ImageReference())
	assert.True(t, a.Supports().Embedded)
	assert.Equal(t, engine.Healthy, a.ParseHealthCheckOutput(0, "", "").Status)
}

func TestRegistryLookupUnknownEngine(t *testing.T) {
	_, err := engine.Get("does-not-exist")
	require.Error(t, err)
	var unknownErr *engine.ErrEngineUnknown
	assert.ErrorAs(t, err, &unknownErr)
}
