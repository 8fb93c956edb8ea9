package adapters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

// postgresqlAdapter mirrors the reference PostgreSQL 16 adapter: pg_isready
// for health, json_build_object over pg_stat_activity/pg_stat_database for
// metrics, pg_dump -Fc for backup.
type postgresqlAdapter struct{}

func (postgresqlAdapter) Tag() string             { return "postgresql" }
func (postgresqlAdapter) DisplayName() string     { return "PostgreSQL 16" }
func (postgresqlAdapter) Category() engine.Category { return engine.Relational }
func (postgresqlAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Users: true, Backup: true, Metrics: true}
}
func (postgresqlAdapter) ImageReference() string   { return "docker.io/library/postgres:16-alpine" }
func (postgresqlAdapter) DefaultPort() int         { return 5432 }
func (postgresqlAdapter) IsUDP() bool              { return false }
func (postgresqlAdapter) Capabilities() []string {
	return []string{"SETGID", "SETUID", "CHOWN", "DAC_OVERRIDE"}
}

func (postgresqlAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	base := map[string]string{
		"POSTGRES_USER":     spec.Username,
		"POSTGRES_PASSWORD": spec.Password,
		"POSTGRES_DB":       spec.DatabaseName,
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (postgresqlAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# generated for instance %s\n", spec.InstanceID)
	fmt.Fprintf(&b, "shared_buffers = %dMB\n", memoryMB/4)
	fmt.Fprintf(&b, "max_connections = 100\n")
	return []byte(b.String()), nil
}

func (postgresqlAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s", spec.Username, spec.Password, spec.Host, spec.Port, spec.DatabaseName)
}

func (postgresqlAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' pg_dump -h localhost -U %s -Fc -f %s %s", spec.Password, spec.Username, destPath, spec.DatabaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' pg_restore -c -h localhost -U %s -d %s %s", spec.Password, spec.Username, spec.DatabaseName, sourcePath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) BackupFileExtension() string { return ".dump" }

func (postgresqlAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"pg_isready", "-h", "localhost", "-U", spec.Username}}
}

func (postgresqlAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	switch exitCode {
	case 0:
		if strings.Contains(stdout, "accepting connections") {
			return engine.HealthResult{Status: engine.Healthy, Message: "accepting connections"}
		}
		return engine.HealthResult{Status: engine.Healthy, Message: stdout}
	case 1:
		return engine.HealthResult{Status: engine.Degraded, Message: "rejecting connections"}
	case 2:
		return engine.HealthResult{Status: engine.Unhealthy, Message: "not responding"}
	default:
		return engine.HealthResult{Status: engine.Unknown, Message: stderr}
	}
}

func (postgresqlAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	query := `SELECT json_build_object(` +
		`'connections', (SELECT count(*) FROM pg_stat_activity), ` +
		`'active_queries', (SELECT count(*) FROM pg_stat_activity WHERE state='active'), ` +
		`'cache_hit_ratio', (SELECT round(sum(blks_hit)::numeric/greatest(sum(blks_hit+blks_read),1),4) FROM pg_stat_database), ` +
		`'total_transactions', (SELECT sum(xact_commit+xact_rollback) FROM pg_stat_database), ` +
		`'uptime_seconds', extract(epoch from now()-pg_postmaster_start_time()))`
	cmd := fmt.Sprintf("PGPASSWORD='%s' psql -h localhost -U %s -d %s -t -c \"%s\"", spec.Password, spec.Username, spec.DatabaseName, query)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	return parseJSONMetricsLine(stdout)
}

func (postgresqlAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' psql -h localhost -U %s -c \"CREATE DATABASE %s\"", spec.Password, spec.Username, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' psql -h localhost -U %s -c \"DROP DATABASE IF EXISTS %s\"", spec.Password, spec.Username, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' psql -h localhost -U %s -l -t", spec.Password, spec.Username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' psql -h localhost -U %s -c \"CREATE USER %s WITH PASSWORD '%s'\"", spec.Password, spec.Username, username, password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' psql -h localhost -U %s -c \"DROP USER IF EXISTS %s\"", spec.Password, spec.Username, username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("PGPASSWORD='%s' psql -h localhost -U %s -c \"ALTER USER %s WITH PASSWORD '%s'\"", spec.Password, spec.Username, username, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (postgresqlAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (postgresqlAdapter) StartupProbeDelay() time.Duration { return 10 * time.Second }
func (postgresqlAdapter) HealthCheckInterval() time.Duration { return defaultHealthInterval }

// parseJSONMetricsLine is shared by the SQL-family adapters whose metrics
// command returns a single JSON object line via psql -t / mysql -N / etc.
func parseJSONMetricsLine(stdout string) engine.MetricsResult {
	line := strings.TrimSpace(stdout)
	result := engine.MetricsResult{Custom: map[string]string{}}
	if line == "" {
		return result
	}
	fields := map[string]string{}
	// Minimal tolerant scanner: the adapters emit a single-level JSON object;
	// here we only need to pick out a handful of known numeric keys without
	// pulling encoding/json into a context where the line may be truncated
	// by psql/mysql's tabular wrapping.
	for _, key := range []string{"connections", "active_queries", "cache_hit_ratio", "total_transactions", "uptime_seconds", "queries_per_sec"} {
		if v, ok := extractJSONNumber(line, key); ok {
			fields[key] = v
		}
	}
	if v, ok := fields["connections"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			result.Connections = int64Ptr(n)
		}
	}
	if v, ok := fields["active_queries"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			result.ActiveQueries = int64Ptr(n)
		}
	}
	if v, ok := fields["cache_hit_ratio"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			result.CacheHitRatio = float64Ptr(f)
		}
	}
	if v, ok := fields["uptime_seconds"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			result.UptimeSeconds = int64Ptr(int64(f))
		}
	}
	if v, ok := fields["queries_per_sec"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			result.QueriesPerSec = float64Ptr(f)
		}
	}
	return result
}

func extractJSONNumber(line, key string) (string, bool) {
	needle := "\"" + key + "\":"
	idx := strings.Index(line, needle)
	if idx < 0 {
		return "", false
	}
	rest := line[idx+len(needle):]
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		end = len(rest)
	}
	return strings.Trim(strings.TrimSpace(rest[:end]), "\""), true
}
