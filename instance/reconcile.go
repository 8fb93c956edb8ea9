package instance

import (
	"context"

	"github.com/docker/docker/api/types"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/db"
)

// Reconciler scans persisted instances on process start and converges
// their status with observed runtime reality, per §4.2's crash recovery
// rules.
type Reconciler struct {
	manager    *Manager
	lifecycle  *Lifecycle
	containers interface {
		ContainerIDForInstance(ctx context.Context, instanceID string) (string, error)
	}
	logger *zap.Logger
}

func NewReconciler(manager *Manager, lifecycle *Lifecycle, containers interface {
	ContainerIDForInstance(ctx context.Context, instanceID string) (string, error)
}, logger *zap.Logger) *Reconciler {
	return &Reconciler{manager: manager, lifecycle: lifecycle, containers: containers, logger: logger}
}

// Run converges every non-terminal instance found in the store. It is
// called once at startup, before the API accepts traffic.
func (r *Reconciler) Run(ctx context.Context) error {
	instances, err := r.manager.List(ctx, ListFilter{})
	if err != nil {
		return err
	}
	for _, inst := range instances {
		r.reconcileOne(ctx, inst)
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, inst db.Instance) {
	logger := r.logger.With(zap.String("instance_id", inst.ID), zap.String("status", string(inst.Status)))

	switch inst.Status {
	case db.StatusCreating, db.StatusStarting, db.StatusStopping, db.StatusRestarting:
		containerID, err := r.containers.ContainerIDForInstance(ctx, inst.ID)
		if err != nil {
			logger.Error("reconcile: cannot query container state", zap.Error(err))
			return
		}
		next := db.StatusFailed
		if containerID != "" {
			// A present container is taken as running unless Inspect
			// reports that it is not running, in which case it is stopped.
			next = db.StatusRunning
			if insp, ok := r.containers.(interface {
				Inspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
			}); ok {
				if info, err := insp.Inspect(ctx, containerID); err == nil && info.ContainerJSONBase != nil && info.State != nil && !info.State.Running {
					next = db.StatusStopped
				}
			}
		}
		if _, err := r.manager.LambdaUpdate(ctx, inst.ID, func(cur *db.Instance) (bool, error) {
			if cur.Status != inst.Status {
				return false, nil // already reconciled by a concurrent path
			}
			cur.PreviousStatus = cur.Status
			cur.Status = next
			return true, nil
		}); err != nil {
			logger.Error("reconcile: cannot persist recovered status", zap.Error(err))
		}

	case db.StatusDestroying:
		if err := r.lifecycle.Destroy(ctx, inst.ID); err != nil {
			logger.Error("reconcile: resuming destroy failed", zap.Error(err))
		}
	}
}
