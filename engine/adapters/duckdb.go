package adapters

import (
	"fmt"
	"time"

	"github.com/coralcp/dbaas/engine"
)

// duckdbAdapter models an embedded, in-process analytical engine: there is
// no server to containerize, so ImageReference is empty and the Container
// Orchestrator treats Supports().Embedded as a signal to skip container
// create/start/stop entirely and just ensure the volume directory holding
// the .duckdb file exists. Health checks always report healthy; the file's
// presence is not checked. There are no runtime metrics to collect.
type duckdbAdapter struct{}

func (duckdbAdapter) Tag() string             { return "duckdb" }
func (duckdbAdapter) DisplayName() string     { return "DuckDB" }
func (duckdbAdapter) Category() engine.Category { return engine.Analytical }
func (duckdbAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Backup: true, Embedded: true}
}
func (duckdbAdapter) ImageReference() string { return "" }
func (duckdbAdapter) DefaultPort() int       { return 0 }
func (duckdbAdapter) IsUDP() bool            { return false }
func (duckdbAdapter) Capabilities() []string { return nil }

func (duckdbAdapter) ContainerEnv(spec engine.Spec) map[string]string { return nil }

func (duckdbAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	return nil, nil
}

func (duckdbAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("duckdb://%s.duckdb", spec.DatabaseName)
}

func (duckdbAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	return engine.Command{Argv: []string{"cp", spec.DatabaseName + ".duckdb", destPath}}
}

func (duckdbAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	return engine.Command{Argv: []string{"cp", sourcePath, spec.DatabaseName + ".duckdb"}}
}

func (duckdbAdapter) BackupFileExtension() string { return ".duckdb" }

func (duckdbAdapter) HealthCheckCommand(spec engine.Spec) engine.Command { return engine.Command{} }

func (duckdbAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	return engine.HealthResult{Status: engine.Healthy, Message: "embedded database file is accessible"}
}

func (duckdbAdapter) MetricsCommand(spec engine.Spec) engine.Command { return engine.Command{} }

func (duckdbAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	return engine.MetricsResult{}
}

func (duckdbAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	return engine.Command{}
}
func (duckdbAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	return engine.Command{}
}
func (duckdbAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command { return engine.Command{} }
func (duckdbAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	return engine.Command{}
}
func (duckdbAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	return engine.Command{}
}
func (duckdbAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	return engine.Command{}
}

func (duckdbAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.CharsetConstraints{AllowSymbols: false, MinLength: 1, MaxLength: 1}
}

func (duckdbAdapter) StartupProbeDelay() time.Duration   { return 0 }
func (duckdbAdapter) HealthCheckInterval() time.Duration { return time.Hour }
