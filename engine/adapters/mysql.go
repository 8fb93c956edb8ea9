package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

type mysqlAdapter struct{}

func (mysqlAdapter) Tag() string             { return "mysql" }
func (mysqlAdapter) DisplayName() string     { return "MySQL 8.0" }
func (mysqlAdapter) Category() engine.Category { return engine.Relational }
func (mysqlAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Users: true, Backup: true, Metrics: true}
}
func (mysqlAdapter) ImageReference() string { return "docker.io/library/mysql:8.0" }
func (mysqlAdapter) DefaultPort() int       { return 3306 }
func (mysqlAdapter) IsUDP() bool            { return false }
func (mysqlAdapter) Capabilities() []string { return []string{"SETGID", "SETUID", "CHOWN"} }

func (mysqlAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	base := map[string]string{
		"MYSQL_ROOT_PASSWORD": spec.Password,
		"MYSQL_DATABASE":      spec.DatabaseName,
	}
	if spec.Username != "root" {
		base["MYSQL_USER"] = spec.Username
		base["MYSQL_PASSWORD"] = spec.Password
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (mysqlAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[mysqld]\n")
	fmt.Fprintf(&b, "innodb_buffer_pool_size=%dM\n", memoryMB/2)
	fmt.Fprintf(&b, "max_connections=150\n")
	return []byte(b.String()), nil
}

func (mysqlAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("mysql://%s:%s@%s:%d/%s", spec.Username, spec.Password, spec.Host, spec.Port, spec.DatabaseName)
}

func (mysqlAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("mysqldump -u root -p'%s' %s > %s", spec.Password, spec.DatabaseName, destPath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("mysql -u root -p'%s' %s < %s", spec.Password, spec.DatabaseName, sourcePath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) BackupFileExtension() string { return ".sql" }

func (mysqlAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	return engine.Command{Argv: []string{"mysqladmin", "ping", "-u", "root", "-p" + spec.Password}}
}

func (mysqlAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode == 0 && strings.Contains(strings.ToLower(stdout), "alive") {
		return engine.HealthResult{Status: engine.Healthy, Message: "mysqld is alive"}
	}
	if exitCode == 0 {
		return engine.HealthResult{Status: engine.Healthy}
	}
	return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
}

func (mysqlAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	query := "SELECT CONCAT('{\"connections\":', (SELECT COUNT(*) FROM information_schema.processlist), ',\"uptime_seconds\":', (SELECT VARIABLE_VALUE FROM performance_schema.global_status WHERE VARIABLE_NAME='Uptime'), '}')"
	cmd := fmt.Sprintf("mysql -u root -p'%s' -N -e \"%s\"", spec.Password, query)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	return parseJSONMetricsLine(stdout)
}

func (mysqlAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("mysql -u root -p'%s' -e \"CREATE DATABASE IF NOT EXISTS %s\"", spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("mysql -u root -p'%s' -e \"DROP DATABASE IF EXISTS %s\"", spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("mysql -u root -p'%s' -e \"SHOW DATABASES\"", spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	cmd := fmt.Sprintf("mysql -u root -p'%s' -e \"CREATE USER '%s'@'%%' IDENTIFIED BY '%s'; GRANT ALL ON %s.* TO '%s'@'%%'\"", spec.Password, username, password, spec.DatabaseName, username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	cmd := fmt.Sprintf("mysql -u root -p'%s' -e \"DROP USER IF EXISTS '%s'@'%%'\"", spec.Password, username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("mysql -u root -p'%s' -e \"ALTER USER '%s'@'%%' IDENTIFIED BY '%s'\"", spec.Password, username, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (mysqlAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (mysqlAdapter) StartupProbeDelay() time.Duration   { return 10 * time.Second }
func (mysqlAdapter) HealthCheckInterval() time.Duration { return defaultHealthInterval }
