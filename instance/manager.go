// Package instance owns the Instance entity end to end: persistence CRUD,
// the lifecycle state machine, and the resource orchestration (container,
// volume, vnet, credentials) each transition drives. Grounded on the
// teacher stack's instance.Manager (CRUD + LambdaUpdate) and
// instance.LifecycleManager (the transition surface), adapted from
// remote-broker calls to direct in-process calls against this control
// plane's own Container Orchestrator.
package instance

import (
	"context"
	"errors"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coralcp/dbaas/db"
)

// Manager is the persistence-facing half of the package: typed CRUD plus
// the serialized lambda-update primitive every lifecycle transition uses.
type Manager struct {
	gdb    *gorm.DB
	logger *zap.Logger
}

func NewManager(logger *zap.Logger, gdb *gorm.DB) *Manager {
	return &Manager{gdb: gdb, logger: logger}
}

func (m *Manager) Create(ctx context.Context, inst *db.Instance) error {
	if err := m.gdb.WithContext(ctx).Create(inst).Error; err != nil {
		return extErrors.Wrap(err, "cannot create instance")
	}
	return nil
}

func (m *Manager) GetByID(ctx context.Context, id string) (*db.Instance, error) {
	var inst db.Instance
	err := m.gdb.WithContext(ctx).Where("id = ?", id).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, extErrors.Wrap(err, "cannot get instance by id")
	}
	return &inst, nil
}

func (m *Manager) GetByName(ctx context.Context, name string) (*db.Instance, error) {
	var inst db.Instance
	err := m.gdb.WithContext(ctx).Where("name = ? AND status <> ?", name, db.StatusDestroyed).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, extErrors.Wrap(err, "cannot get instance by name")
	}
	return &inst, nil
}

// ListFilter narrows List by the fields the API's List(filter) operation
// exposes.
type ListFilter struct {
	Engine string
	Status string
}

func (m *Manager) List(ctx context.Context, filter ListFilter) ([]db.Instance, error) {
	query := m.gdb.WithContext(ctx).Order("created_at desc").Where("status <> ?", db.StatusDestroyed)
	if filter.Engine != "" {
		query = query.Where("engine_tag = ?", filter.Engine)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var out []db.Instance
	if err := query.Find(&out).Error; err != nil {
		return nil, extErrors.Wrap(err, "cannot list instances")
	}
	return out, nil
}

// LambdaUpdateFunc decides whether to persist a mutation against the
// locked snapshot; it returns false to abandon the transition (e.g. the
// requested transition is invalid from the current state).
type LambdaUpdateFunc func(current *db.Instance) (shouldSave bool, err error)

// LambdaUpdate locks the row under SERIALIZABLE isolation, calls fn, and
// saves only when it asks to. This is the sole path by which lifecycle
// fields are ever written, guaranteeing at most one in-flight transition
// per instance.
func (m *Manager) LambdaUpdate(ctx context.Context, id string, fn LambdaUpdateFunc) (*db.Instance, error) {
	return dbLambdaUpdate(ctx, m.gdb, id, fn)
}

func dbLambdaUpdate(ctx context.Context, gdb *gorm.DB, id string, fn LambdaUpdateFunc) (*db.Instance, error) {
	var result *db.Instance
	err := db.LambdaUpdate(gdb.WithContext(ctx), id, func(inst *db.Instance) (bool, error) {
		shouldSave, err := fn(inst)
		if shouldSave {
			result = inst
		}
		return shouldSave, err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
