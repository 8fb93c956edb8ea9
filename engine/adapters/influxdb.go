package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

type influxdbAdapter struct{}

func (influxdbAdapter) Tag() string             { return "influxdb" }
func (influxdbAdapter) DisplayName() string     { return "InfluxDB 2.7" }
func (influxdbAdapter) Category() engine.Category { return engine.TimeSeries }
func (influxdbAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Users: true, Backup: true, Metrics: true}
}
func (influxdbAdapter) ImageReference() string { return "docker.io/library/influxdb:2.7" }
func (influxdbAdapter) DefaultPort() int       { return 8086 }
func (influxdbAdapter) IsUDP() bool            { return false }
func (influxdbAdapter) Capabilities() []string { return nil }

func (influxdbAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	bucket := spec.DatabaseName
	if bucket == "" {
		bucket = "default"
	}
	base := map[string]string{
		"DOCKER_INFLUXDB_INIT_MODE":     "setup",
		"DOCKER_INFLUXDB_INIT_USERNAME": spec.Username,
		"DOCKER_INFLUXDB_INIT_PASSWORD": spec.Password,
		"DOCKER_INFLUXDB_INIT_ORG":      "dbaas",
		"DOCKER_INFLUXDB_INIT_BUCKET":   bucket,
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (influxdbAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	return []byte("# influxdb config placeholder\n"), nil
}

func (influxdbAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("http://%s:%s@%s:%d", spec.Username, spec.Password, spec.Host, spec.Port)
}

func (influxdbAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("influx backup %s && tar czf %s %s", destPath, destPath, destPath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (influxdbAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("influx restore %s", sourcePath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (influxdbAdapter) BackupFileExtension() string { return ".tar.gz" }

func (influxdbAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"influx", "ping"}}
}

func (influxdbAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode == 0 {
		return engine.HealthResult{Status: engine.Healthy, Message: "ok"}
	}
	return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
}

func (influxdbAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"curl", "-s", "http://localhost:8086/metrics"}}
}

func (influxdbAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	result := engine.MetricsResult{Custom: map[string]string{}}
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "http_requests_total") {
			result.Custom["http_requests_total_raw"] = line
		}
	}
	return result
}

func (influxdbAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("influx bucket create -n %s -o dbaas", databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (influxdbAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("influx bucket delete -n %s -o dbaas", databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (influxdbAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"influx", "bucket", "list", "-o", "dbaas"}}
}

func (influxdbAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	cmd := fmt.Sprintf("influx user create -n %s -p '%s' -o dbaas", username, password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (influxdbAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	cmd := fmt.Sprintf("influx user delete -n %s", username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (influxdbAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("influx user password -n %s", username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}, Stdin: []byte(newPassword + "\n" + newPassword + "\n")}
}

func (influxdbAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (influxdbAdapter) StartupProbeDelay() time.Duration   { return 5 * time.Second }
func (influxdbAdapter) HealthCheckInterval() time.Duration { return defaultHealthInterval }
