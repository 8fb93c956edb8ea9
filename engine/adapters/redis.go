package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

// redisAdapter has no env-var password path: redis-server takes
// --requirepass on the command line, not via environment, and it has
// neither named databases nor engine-level user management (numbered DBs
// and ACLs instead), so Supports.LogicalDatabases/Users are both false.
type redisAdapter struct{}

func (redisAdapter) Tag() string             { return "redis" }
func (redisAdapter) DisplayName() string     { return "Redis 7" }
func (redisAdapter) Category() engine.Category { return engine.KeyValue }
func (redisAdapter) Supports() engine.Supports {
	return engine.Supports{Backup: true, Metrics: true}
}
func (redisAdapter) ImageReference() string { return "docker.io/library/redis:7-alpine" }
func (redisAdapter) DefaultPort() int       { return 6379 }
func (redisAdapter) IsUDP() bool            { return false }
func (redisAdapter) Capabilities() []string { return nil }

func (redisAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	return mergeEnv(map[string]string{}, spec.ExtraEnv)
}

func (redisAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "maxmemory %dmb\nmaxmemory-policy allkeys-lru\n", memoryMB*3/4)
	return []byte(b.String()), nil
}

func (redisAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("redis://:%s@%s:%d/0", spec.Password, spec.Host, spec.Port)
}

func (redisAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("redis-cli -a '%s' --no-auth-warning SAVE && cp /data/dump.rdb %s", spec.Password, destPath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (redisAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("redis-cli -a '%s' --no-auth-warning SHUTDOWN NOSAVE; cp %s /data/dump.rdb", spec.Password, sourcePath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (redisAdapter) BackupFileExtension() string { return ".rdb" }

func (redisAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"redis-cli", "-a", spec.Password, "--no-auth-warning", "PING"}}
}

func (redisAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode == 0 && strings.Contains(stdout, "PONG") {
		return engine.HealthResult{Status: engine.Healthy, Message: "PONG"}
	}
	if exitCode == 0 {
		return engine.HealthResult{Status: engine.Degraded, Message: stdout}
	}
	return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
}

func (redisAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"redis-cli", "-a", spec.Password, "--no-auth-warning", "INFO", "stats"}}
}

func (redisAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	result := engine.MetricsResult{Custom: map[string]string{}}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "connected_clients":
			result.Connections = parseInt(strings.TrimSpace(parts[1]))
		case "instantaneous_ops_per_sec":
			if n := parseInt(strings.TrimSpace(parts[1])); n != nil {
				f := float64(*n)
				result.QueriesPerSec = &f
			}
		}
	}
	return result
}

func (redisAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	return engine.Command{}
}
func (redisAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	return engine.Command{}
}
func (redisAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command { return engine.Command{} }

func (redisAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	return engine.Command{}
}
func (redisAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	return engine.Command{}
}

func (redisAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("redis-cli -a '%s' --no-auth-warning CONFIG SET requirepass '%s'", spec.Password, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (redisAdapter) CharsetConstraints() engine.CharsetConstraints {
	c := engine.DefaultCharsetConstraints()
	c.AllowSymbols = false // requirepass is shell-interpolated; keep generated passwords simple
	return c
}

func (redisAdapter) StartupProbeDelay() time.Duration   { return 2 * time.Second }
func (redisAdapter) HealthCheckInterval() time.Duration { return defaultHealthInterval }
