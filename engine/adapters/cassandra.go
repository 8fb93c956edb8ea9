package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

type cassandraAdapter struct{}

func (cassandraAdapter) Tag() string             { return "cassandra" }
func (cassandraAdapter) DisplayName() string     { return "Apache Cassandra 5" }
func (cassandraAdapter) Category() engine.Category { return engine.WideColumn }
func (cassandraAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Users: true, Backup: true, Metrics: true}
}
func (cassandraAdapter) ImageReference() string { return "docker.io/library/cassandra:5" }
func (cassandraAdapter) DefaultPort() int       { return 9042 }
func (cassandraAdapter) IsUDP() bool            { return false }
func (cassandraAdapter) Capabilities() []string { return nil }

func (cassandraAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	base := map[string]string{
		"CASSANDRA_CLUSTER_NAME": "dbaas",
		"CASSANDRA_DC":           "datacenter1",
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (cassandraAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	return []byte(fmt.Sprintf("# cassandra.yaml overrides for instance %s\n", spec.InstanceID)), nil
}

func (cassandraAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("cassandra://%s:%s@%s:%d/%s", spec.Username, spec.Password, spec.Host, spec.Port, spec.DatabaseName)
}

func (cassandraAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("nodetool snapshot -t backup_%s %s && tar czf %s /var/lib/cassandra/data/%s/snapshots/backup_%s", spec.InstanceID, spec.DatabaseName, destPath, spec.DatabaseName, spec.InstanceID)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (cassandraAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("tar xzf %s -C /var/lib/cassandra/data/%s", sourcePath, spec.DatabaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (cassandraAdapter) BackupFileExtension() string { return ".tar.gz" }

func (cassandraAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"cqlsh", "-e", "SELECT now() FROM system.local"}}
}

func (cassandraAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode == 0 && (strings.Contains(stdout, "now()") || strings.Contains(stdout, "UUID")) {
		return engine.HealthResult{Status: engine.Healthy}
	}
	if exitCode == 0 {
		return engine.HealthResult{Status: engine.Degraded, Message: stdout}
	}
	return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
}

func (cassandraAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"nodetool", "info"}}
}

func (cassandraAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	result := engine.MetricsResult{Custom: map[string]string{}}
	for _, line := range strings.Split(stdout, "\n") {
		if strings.Contains(line, "Uptime") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				result.Custom["uptime_raw"] = strings.TrimSpace(parts[1])
			}
		}
	}
	return result
}

func (cassandraAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("cqlsh -e \"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class':'SimpleStrategy','replication_factor':1}\"", databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (cassandraAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("cqlsh -e \"DROP KEYSPACE IF EXISTS %s\"", databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (cassandraAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"cqlsh", "-e", "DESCRIBE KEYSPACES"}}
}

func (cassandraAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	cmd := fmt.Sprintf("cqlsh -e \"CREATE ROLE %s WITH PASSWORD = '%s' AND LOGIN = true\"", username, password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (cassandraAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	cmd := fmt.Sprintf("cqlsh -e \"DROP ROLE IF EXISTS %s\"", username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (cassandraAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("cqlsh -e \"ALTER ROLE %s WITH PASSWORD = '%s'\"", username, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (cassandraAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (cassandraAdapter) StartupProbeDelay() time.Duration   { return 30 * time.Second }
func (cassandraAdapter) HealthCheckInterval() time.Duration { return 60 * time.Second }
