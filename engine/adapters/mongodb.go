package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

type mongodbAdapter struct{}

func (mongodbAdapter) Tag() string             { return "mongodb" }
func (mongodbAdapter) DisplayName() string     { return "MongoDB 7" }
func (mongodbAdapter) Category() engine.Category { return engine.Document }
func (mongodbAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Users: true, Backup: true, Metrics: true}
}
func (mongodbAdapter) ImageReference() string { return "docker.io/library/mongo:7" }
func (mongodbAdapter) DefaultPort() int       { return 27017 }
func (mongodbAdapter) IsUDP() bool            { return false }
func (mongodbAdapter) Capabilities() []string { return []string{"CHOWN", "SETUID", "SETGID"} }

func (mongodbAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	base := map[string]string{
		"MONGO_INITDB_ROOT_USERNAME": spec.Username,
		"MONGO_INITDB_ROOT_PASSWORD": spec.Password,
		"MONGO_INITDB_DATABASE":      spec.DatabaseName,
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (mongodbAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "storage:\n  wiredTiger:\n    engineConfig:\n      cacheSizeGB: %.2f\n", float64(memoryMB)/1024/2)
	return []byte(b.String()), nil
}

func (mongodbAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=admin", spec.Username, spec.Password, spec.Host, spec.Port, spec.DatabaseName)
}

func (mongodbAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("mongodump --username %s --password '%s' --authenticationDatabase admin --db %s --archive=%s", spec.Username, spec.Password, spec.DatabaseName, destPath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("mongorestore --username %s --password '%s' --authenticationDatabase admin --archive=%s --drop", spec.Username, spec.Password, sourcePath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) BackupFileExtension() string { return ".archive" }

func (mongodbAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'db.adminCommand(\"ping\")' --quiet", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode == 0 && strings.Contains(stdout, "ok") {
		return engine.HealthResult{Status: engine.Healthy, Message: "ping ok"}
	}
	if exitCode == 0 {
		return engine.HealthResult{Status: engine.Degraded, Message: stdout}
	}
	return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
}

func (mongodbAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'JSON.stringify(db.serverStatus().connections)' --quiet", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	result := engine.MetricsResult{Custom: map[string]string{}}
	if v, ok := extractJSONNumber(stdout, "current"); ok {
		if n := parseInt(v); n != nil {
			result.Connections = n
		}
	}
	return result
}

func (mongodbAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'db.getSiblingDB(\"%s\").placeholder.insertOne({})'", spec.Username, spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'db.getSiblingDB(\"%s\").dropDatabase()'", spec.Username, spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'db.adminCommand(\"listDatabases\")' --quiet", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'db.getSiblingDB(\"%s\").createUser({user:\"%s\",pwd:\"%s\",roles:[\"readWrite\"]})'", spec.Username, spec.Password, spec.DatabaseName, username, password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'db.getSiblingDB(\"%s\").dropUser(\"%s\")'", spec.Username, spec.Password, spec.DatabaseName, username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("mongosh --username %s --password '%s' --authenticationDatabase admin --eval 'db.getSiblingDB(\"admin\").changeUserPassword(\"%s\",\"%s\")'", spec.Username, spec.Password, username, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mongodbAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (mongodbAdapter) StartupProbeDelay() time.Duration   { return 5 * time.Second }
func (mongodbAdapter) HealthCheckInterval() time.Duration { return defaultHealthInterval }
