package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Status is one value in the Instance lifecycle state machine.
type Status string

const (
	StatusPending     Status = "pending"
	StatusCreating    Status = "creating"
	StatusStarting    Status = "starting"
	StatusRunning     Status = "running"
	StatusStopping    Status = "stopping"
	StatusStopped     Status = "stopped"
	StatusRestarting  Status = "restarting"
	StatusFailed      Status = "failed"
	StatusDestroying  Status = "destroying"
	StatusDestroyed   Status = "destroyed"
)

// StringMap is a JSON-column map, grounded on the teacher stack's Parameters
// GORM type: stored as a JSON/JSONB column depending on dialect, scanned
// back into a map at read time.
type StringMap map[string]string

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			*m = StringMap{}
			return nil
		}
	}
	if len(bytes) == 0 {
		*m = StringMap{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (StringMap) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}

// Instance is the central entity: one provisioned database.
type Instance struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex:idx_instance_name_live,where:status <> 'destroyed'"`
	ContainerID   string

	EngineTag    string
	SkuID        string
	DatabaseName string
	Username     string
	Password     string // cleartext by design, see DESIGN.md

	HostAddress string
	Port        int
	VolumePath  string
	VnetIP      string

	MemoryLimitMB  int
	CPULimit       float64
	StorageLimitGB int
	ExternalAccess bool
	TLSEnabled     bool
	TLSCertPath    string
	TLSKeyPath     string

	Status         Status `gorm:"index"`
	PreviousStatus Status
	LastError      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is a point-in-time backup of an Instance's data.
type Snapshot struct {
	ID         string `gorm:"primaryKey"`
	InstanceID string `gorm:"index"`
	Path       string
	SizeBytes  int64
	Notes      string
	CreatedAt  time.Time
}

// HealthSample is an append-only health-probe record.
type HealthSample struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	InstanceID      string `gorm:"index"`
	Status          string
	ResponseTimeMS  int64
	Details         StringMap
	CheckedAt       time.Time `gorm:"index"`
}

// MetricsSample is an append-only fused metrics record.
type MetricsSample struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	InstanceID     string `gorm:"index"`
	CPUPercent     float64
	MemoryUsedMB   int64
	MemoryLimitMB  int64
	MemoryPercent  float64
	Connections    *int64
	ActiveQueries  *int64
	CacheHitRatio  *float64
	UptimeSeconds  *int64
	CollectedAt    time.Time `gorm:"index"`
}

// AllModels lists every table AutoMigrate and the migration runner's
// schema check need to know about.
func AllModels() []interface{} {
	return []interface{}{
		&Instance{},
		&Snapshot{},
		&HealthSample{},
		&MetricsSample{},
	}
}
