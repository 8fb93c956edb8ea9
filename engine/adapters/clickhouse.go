package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

type clickhouseAdapter struct{}

func (clickhouseAdapter) Tag() string             { return "clickhouse" }
func (clickhouseAdapter) DisplayName() string     { return "ClickHouse" }
func (clickhouseAdapter) Category() engine.Category { return engine.Analytical }
func (clickhouseAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Users: true, Backup: true, Metrics: true}
}
func (clickhouseAdapter) ImageReference() string {
	return "docker.io/clickhouse/clickhouse-server:latest"
}
func (clickhouseAdapter) DefaultPort() int       { return 8123 }
func (clickhouseAdapter) IsUDP() bool            { return false }
func (clickhouseAdapter) Capabilities() []string { return nil }

func (clickhouseAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	base := map[string]string{
		"CLICKHOUSE_USER":                       spec.Username,
		"CLICKHOUSE_PASSWORD":                   spec.Password,
		"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT":  "1",
		"CLICKHOUSE_DB":                         spec.DatabaseName,
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (clickhouseAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	return []byte(fmt.Sprintf("<clickhouse><max_server_memory_usage>%d</max_server_memory_usage></clickhouse>\n", memoryMB*1024*1024)), nil
}

func (clickhouseAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", spec.Username, spec.Password, spec.Host, spec.Port, spec.DatabaseName)
}

func (clickhouseAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"BACKUP DATABASE %s TO File('%s')\"", spec.Username, spec.Password, spec.DatabaseName, destPath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"RESTORE DATABASE %s FROM File('%s')\"", spec.Username, spec.Password, spec.DatabaseName, sourcePath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) BackupFileExtension() string { return ".zip" }

func (clickhouseAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q 'SELECT 1'", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode == 0 && strings.TrimSpace(stdout) == "1" {
		return engine.HealthResult{Status: engine.Healthy}
	}
	if exitCode == 0 {
		return engine.HealthResult{Status: engine.Degraded, Message: stdout}
	}
	return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
}

func (clickhouseAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"SELECT value FROM system.metrics WHERE metric='Query'\"", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	result := engine.MetricsResult{Custom: map[string]string{}}
	if n := parseInt(strings.TrimSpace(stdout)); n != nil {
		result.ActiveQueries = n
	}
	return result
}

func (clickhouseAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"CREATE DATABASE IF NOT EXISTS %s\"", spec.Username, spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"DROP DATABASE IF EXISTS %s\"", spec.Username, spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"SHOW DATABASES\"", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"CREATE USER %s IDENTIFIED BY '%s'\"", spec.Username, spec.Password, username, password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"DROP USER IF EXISTS %s\"", spec.Username, spec.Password, username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("clickhouse-client -u %s --password '%s' -q \"ALTER USER %s IDENTIFIED BY '%s'\"", spec.Username, spec.Password, username, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (clickhouseAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (clickhouseAdapter) StartupProbeDelay() time.Duration   { return 10 * time.Second }
func (clickhouseAdapter) HealthCheckInterval() time.Duration { return defaultHealthInterval }
