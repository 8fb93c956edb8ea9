package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

// elasticsearchAdapter always runs with X-Pack security disabled, whether
// or not TLS is enabled, matching the reference adapter's dev-mode default; user
// management is therefore not exposed (Supports.Users is false).
type elasticsearchAdapter struct{}

func (elasticsearchAdapter) Tag() string             { return "elasticsearch" }
func (elasticsearchAdapter) DisplayName() string     { return "Elasticsearch 8.11" }
func (elasticsearchAdapter) Category() engine.Category { return engine.Search }
func (elasticsearchAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Backup: true, Metrics: true}
}
func (elasticsearchAdapter) ImageReference() string {
	return "docker.elastic.co/elasticsearch/elasticsearch:8.11.0"
}
func (elasticsearchAdapter) DefaultPort() int       { return 9200 }
func (elasticsearchAdapter) IsUDP() bool            { return false }
func (elasticsearchAdapter) Capabilities() []string { return nil }

func (elasticsearchAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	base := map[string]string{
		"discovery.type":            "single-node",
		"xpack.security.enabled":    "false",
		"ELASTIC_PASSWORD":          spec.Password,
		"ES_JAVA_OPTS":              fmt.Sprintf("-Xms%dm -Xmx%dm", spec.MemoryMB/2, spec.MemoryMB/2),
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (elasticsearchAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	return []byte("cluster.name: dbaas\n"), nil
}

func (elasticsearchAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("http://elastic:%s@%s:%d", spec.Password, spec.Host, spec.Port)
}

func (elasticsearchAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("curl -s -u elastic:%s -XPUT localhost:9200/_snapshot/dbaas_repo/snap_%s?wait_for_completion=true && tar czf %s /usr/share/elasticsearch/backup", spec.Password, spec.InstanceID, destPath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (elasticsearchAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("tar xzf %s -C /usr/share/elasticsearch/backup && curl -s -u elastic:%s -XPOST localhost:9200/_snapshot/dbaas_repo/_latest/_restore", sourcePath, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (elasticsearchAdapter) BackupFileExtension() string { return ".tar.gz" }

func (elasticsearchAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"curl", "-sf", "http://localhost:9200/_cluster/health"}}
}

func (elasticsearchAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode != 0 {
		return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
	}
	switch {
	case strings.Contains(stdout, `"status":"green"`):
		return engine.HealthResult{Status: engine.Healthy, Message: "green"}
	case strings.Contains(stdout, `"status":"yellow"`):
		return engine.HealthResult{Status: engine.Degraded, Message: "yellow"}
	default:
		return engine.HealthResult{Status: engine.Unhealthy, Message: stdout}
	}
}

func (elasticsearchAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"curl", "-s", "http://localhost:9200/_nodes/stats/indices,jvm"}}
}

func (elasticsearchAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	result := engine.MetricsResult{Custom: map[string]string{}}
	if v, ok := extractJSONNumber(stdout, "query_total"); ok {
		if n := parseInt(v); n != nil {
			result.ActiveQueries = n
		}
	}
	return result
}

func (elasticsearchAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("curl -s -XPUT http://localhost:9200/%s", databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (elasticsearchAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("curl -s -XDELETE http://localhost:9200/%s", databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (elasticsearchAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"curl", "-s", "http://localhost:9200/_cat/indices?format=json"}}
}

func (elasticsearchAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	return engine.Command{}
}
func (elasticsearchAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	return engine.Command{}
}
func (elasticsearchAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("curl -s -u elastic:%s -XPOST http://localhost:9200/_security/user/elastic/_password -d '{\"password\":\"%s\"}' -H 'Content-Type: application/json'", spec.Password, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (elasticsearchAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (elasticsearchAdapter) StartupProbeDelay() time.Duration   { return 20 * time.Second }
func (elasticsearchAdapter) HealthCheckInterval() time.Duration { return 30 * time.Second }
