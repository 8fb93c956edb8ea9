package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/coralcp/dbaas/engine"
)

type neo4jAdapter struct{}

func (neo4jAdapter) Tag() string             { return "neo4j" }
func (neo4jAdapter) DisplayName() string     { return "Neo4j 5" }
func (neo4jAdapter) Category() engine.Category { return engine.Graph }
func (neo4jAdapter) Supports() engine.Supports {
	return engine.Supports{LogicalDatabases: true, Users: true, Backup: true, Metrics: true}
}
func (neo4jAdapter) ImageReference() string { return "docker.io/library/neo4j:5" }
func (neo4jAdapter) DefaultPort() int       { return 7687 }
func (neo4jAdapter) IsUDP() bool            { return false }
func (neo4jAdapter) Capabilities() []string { return nil }

func (neo4jAdapter) ContainerEnv(spec engine.Spec) map[string]string {
	base := map[string]string{
		"NEO4J_AUTH":    fmt.Sprintf("%s/%s", spec.Username, spec.Password),
		"NEO4J_PLUGINS": `["apoc"]`,
	}
	if spec.MemoryMB >= 2048 {
		base["NEO4J_server_memory_heap_initial__size"] = fmt.Sprintf("%dm", spec.MemoryMB/2)
		base["NEO4J_server_memory_heap_max__size"] = fmt.Sprintf("%dm", spec.MemoryMB/2)
		base["NEO4J_server_memory_pagecache_size"] = fmt.Sprintf("%dm", spec.MemoryMB*4/10)
	}
	return mergeEnv(base, spec.ExtraEnv)
}

func (neo4jAdapter) RenderConfig(spec engine.Spec, memoryMB int, cpu float64) ([]byte, error) {
	return []byte(fmt.Sprintf("dbms.memory.heap.max_size=%dm\n", memoryMB/2)), nil
}

func (neo4jAdapter) ConnectionString(spec engine.Spec) string {
	return fmt.Sprintf("neo4j://%s:%s@%s:%d/%s", spec.Username, spec.Password, spec.Host, spec.Port, spec.DatabaseName)
}

func (neo4jAdapter) SnapshotCommand(spec engine.Spec, destPath string) engine.Command {
	cmd := fmt.Sprintf("neo4j-admin database dump %s --to-path=/tmp/dump && cp /tmp/dump/%s.dump %s", spec.DatabaseName, spec.DatabaseName, destPath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) RestoreCommand(spec engine.Spec, sourcePath string) engine.Command {
	cmd := fmt.Sprintf("neo4j-admin database load %s --from-path=%s --overwrite-destination=true", spec.DatabaseName, sourcePath)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) BackupFileExtension() string { return ".dump" }

func (neo4jAdapter) HealthCheckCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'RETURN 1'", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) ParseHealthCheckOutput(exitCode int, stdout, stderr string) engine.HealthResult {
	if exitCode == 0 {
		return engine.HealthResult{Status: engine.Healthy}
	}
	return engine.HealthResult{Status: engine.Unhealthy, Message: stderr}
}

func (neo4jAdapter) MetricsCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'CALL dbms.listConnections() YIELD connectionId RETURN count(connectionId)'", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) ParseMetricsOutput(stdout string) engine.MetricsResult {
	result := engine.MetricsResult{Custom: map[string]string{}}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if n := parseInt(line); n != nil {
			result.Connections = n
			break
		}
	}
	return result
}

func (neo4jAdapter) CreateDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'CREATE DATABASE %s IF NOT EXISTS'", spec.Username, spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) DropDatabaseCommand(spec engine.Spec, databaseName string) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'DROP DATABASE %s IF EXISTS'", spec.Username, spec.Password, databaseName)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) ListDatabasesCommand(spec engine.Spec) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'SHOW DATABASES'", spec.Username, spec.Password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) CreateUserCommand(spec engine.Spec, username, password string) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'CREATE USER %s SET PASSWORD \"%s\" CHANGE NOT REQUIRED'", spec.Username, spec.Password, username, password)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) DropUserCommand(spec engine.Spec, username string) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'DROP USER %s IF EXISTS'", spec.Username, spec.Password, username)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) AlterUserPasswordCommand(spec engine.Spec, username, newPassword string) engine.Command {
	cmd := fmt.Sprintf("cypher-shell -u %s -p '%s' 'ALTER USER %s SET PASSWORD \"%s\" CHANGE NOT REQUIRED'", spec.Username, spec.Password, username, newPassword)
	return engine.Command{Argv: []string{"sh", "-c", cmd}}
}

func (neo4jAdapter) CharsetConstraints() engine.CharsetConstraints {
	return engine.DefaultCharsetConstraints()
}

func (neo4jAdapter) StartupProbeDelay() time.Duration   { return 15 * time.Second }
func (neo4jAdapter) HealthCheckInterval() time.Duration { return defaultHealthInterval }
