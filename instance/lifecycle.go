package instance

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/credential"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/engine"
	"github.com/coralcp/dbaas/sku"
	"github.com/coralcp/dbaas/snapshot"
	"github.com/coralcp/dbaas/vnetalloc"
	"github.com/coralcp/dbaas/volume"
)

// ErrInvalidTransition is returned when the requested operation is not
// legal from the instance's current status.
type ErrInvalidTransition struct {
	From db.Status
	Op   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("instance: cannot %s from status %q", e.Op, e.From)
}

// LifecycleOptions bundles every collaborator a transition needs. Unlike
// the teacher's remote-broker LifecycleManager, every method here talks
// directly to in-process services: there is exactly one host.
type LifecycleOptions struct {
	Containers *container.Client
	Volumes    *volume.Service
	VNet       *vnetalloc.Allocator
	Snapshots  *snapshot.Service // deletes snapshot rows/files on Destroy; nil disables the cascade
	Logger     *zap.Logger

	TLSRoot string // staging root for per-instance TLS material, "<root>/tls"

	PortReserve func() (int, error) // allocates a free host port
	PortRelease func(port int)

	StartTimeout func(cat engine.Category) time.Duration
}

// Lifecycle drives Instance state transitions. It is the only writer of
// the Status field, per the component design.
type Lifecycle struct {
	manager *Manager
	opts    LifecycleOptions
}

func NewLifecycle(manager *Manager, opts LifecycleOptions) *Lifecycle {
	return &Lifecycle{manager: manager, opts: opts}
}

// CreateRequest is the validated input to Create.
type CreateRequest struct {
	Name           string
	EngineTag      string
	SkuID          string
	MemoryLimitMB  int     // custom sku only
	CPULimit       float64 // custom sku only
	StorageLimitGB int     // custom sku only
	DatabaseName   string
	ExternalAccess bool
	TLSEnabled     bool
	TLSCert        []byte // PEM, staged to TLSRoot and validated when TLSEnabled
	TLSKey         []byte
	VnetName       string
}

// Create inserts a pending Instance row and spawns the background
// provisioning goroutine. It returns as soon as the row is persisted; the
// caller observes progress via status polling. Engine, SKU, and TLS
// material are all validated synchronously here, per the Public API
// Surface's Create contract; only runtime failures surface later via
// status/error_message.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (*db.Instance, error) {
	adapter, err := engine.Get(req.EngineTag)
	if err != nil {
		return nil, err
	}
	skuRow, err := l.resolveSku(req.SkuID, req.MemoryLimitMB, req.CPULimit, req.StorageLimitGB)
	if err != nil {
		return nil, err
	}

	username, err := credential.GenerateUsername()
	if err != nil {
		return nil, extErrors.Wrap(err, "generating username")
	}
	password, err := credential.GeneratePassword(adapter.CharsetConstraints())
	if err != nil {
		return nil, extErrors.Wrap(err, "generating password")
	}

	id := uuid.NewString()

	var certPath, keyPath string
	if req.TLSEnabled {
		if len(req.TLSCert) == 0 || len(req.TLSKey) == 0 {
			return nil, extErrors.New("tls_enabled requires tls_cert and tls_key")
		}
		if _, err := tls.X509KeyPair(req.TLSCert, req.TLSKey); err != nil {
			return nil, extErrors.Wrap(err, "invalid tls certificate/key pair")
		}
		certPath, keyPath, err = l.stageTLS(id, req.TLSCert, req.TLSKey)
		if err != nil {
			return nil, extErrors.Wrap(err, "staging tls material")
		}
	}

	inst := &db.Instance{
		ID:             id,
		Name:           req.Name,
		EngineTag:      req.EngineTag,
		SkuID:          req.SkuID,
		DatabaseName:   req.DatabaseName,
		Username:       username,
		Password:       password,
		MemoryLimitMB:  skuRow.MemoryMB,
		CPULimit:       skuRow.VCPU,
		StorageLimitGB: skuRow.StorageGB,
		ExternalAccess: req.ExternalAccess,
		TLSEnabled:     req.TLSEnabled,
		TLSCertPath:    certPath,
		TLSKeyPath:     keyPath,
		Status:         db.StatusPending,
	}

	if err := l.manager.Create(ctx, inst); err != nil {
		if inst.TLSEnabled {
			os.RemoveAll(filepath.Join(l.opts.TLSRoot, id))
		}
		return nil, err
	}

	go l.provision(context.Background(), inst.ID, req.VnetName)

	return inst, nil
}

// resolveSku looks up a catalog entry, or builds an ad-hoc one from
// caller-supplied dimensions when id is "custom".
func (l *Lifecycle) resolveSku(id string, memoryMB int, cpu float64, storageGB int) (sku.Sku, error) {
	if id == "custom" {
		if memoryMB <= 0 || cpu <= 0 || storageGB <= 0 {
			return sku.Sku{}, extErrors.New("custom sku requires memory_limit_mb, cpu_limit, and storage_limit_gb")
		}
		return sku.Custom(memoryMB, cpu, storageGB), nil
	}
	return sku.Get(id)
}

// stageTLS writes the caller-supplied PEM material under TLSRoot, one
// subdirectory per instance, mode 0600 per the persisted-layout contract.
func (l *Lifecycle) stageTLS(instanceID string, cert, key []byte) (string, string, error) {
	dir := filepath.Join(l.opts.TLSRoot, instanceID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", err
	}
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certPath, cert, 0o600); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}

// provision runs the pending -> creating -> starting -> running path (or
// -> failed) in the background, per §4.2's state diagram.
func (l *Lifecycle) provision(ctx context.Context, id string, vnetName string) {
	logger := l.opts.Logger.With(zap.String("instance_id", id))

	inst, err := l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		if cur.Status != db.StatusPending {
			return false, nil
		}
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusCreating
		return true, nil
	})
	if err != nil || inst == nil {
		logger.Error("cannot enter creating state", zap.Error(err))
		return
	}

	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		l.fail(ctx, id, err)
		return
	}

	volumePath, err := l.opts.Volumes.Create(inst.ID)
	if err != nil {
		l.fail(ctx, id, extErrors.Wrap(err, "allocating volume"))
		return
	}

	var vnetIP string
	if vnetName != "" && l.opts.VNet != nil {
		vnetIP, err = l.opts.VNet.Reserve(inst.ID)
		if err != nil {
			l.fail(ctx, id, extErrors.Wrap(err, "reserving vnet address"))
			return
		}
	}

	port, err := l.opts.PortReserve()
	if err != nil {
		l.fail(ctx, id, extErrors.Wrap(err, "reserving host port"))
		return
	}

	skuRow, err := l.resolveSku(inst.SkuID, inst.MemoryLimitMB, inst.CPULimit, inst.StorageLimitGB)
	if err != nil {
		l.fail(ctx, id, err)
		return
	}

	spec := engine.Spec{
		InstanceID:   inst.ID,
		DatabaseName: inst.DatabaseName,
		Username:     inst.Username,
		Password:     inst.Password,
		Host:         "127.0.0.1",
		Port:         port,
		MemoryMB:     skuRow.MemoryMB,
		CPU:          skuRow.VCPU,
	}

	configPath, err := l.renderConfig(adapter, spec, skuRow, volumePath)
	if err != nil {
		l.fail(ctx, id, extErrors.Wrap(err, "rendering adapter config"))
		return
	}

	containerID, err := l.opts.Containers.Create(ctx, container.CreateSpec{
		InstanceID:     inst.ID,
		Adapter:        adapter,
		EngineSpec:     spec,
		Sku:            skuRow,
		HostPort:       port,
		ExternalAccess: inst.ExternalAccess,
		DataVolumePath: volumePath,
		ConfigPath:     configPath,
		TLSCertPath:    inst.TLSCertPath,
		TLSKeyPath:     inst.TLSKeyPath,
		NetworkName:    vnetName,
	})
	if err != nil {
		if l.opts.PortRelease != nil {
			l.opts.PortRelease(port)
		}
		l.fail(ctx, id, extErrors.Wrap(err, "creating container"))
		return
	}

	inst, err = l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusStarting
		cur.ContainerID = containerID
		cur.HostAddress = spec.Host
		cur.Port = port
		cur.VolumePath = volumePath
		cur.VnetIP = vnetIP
		return true, nil
	})
	if err != nil {
		l.fail(ctx, id, err)
		return
	}

	timeout := 120 * time.Second
	if l.opts.StartTimeout != nil {
		timeout = l.opts.StartTimeout(adapter.Category())
	}
	if !l.awaitReadiness(ctx, adapter, spec, containerID, timeout) {
		l.fail(ctx, id, fmt.Errorf("readiness gate timed out after %s", timeout))
		l.opts.Containers.Remove(ctx, containerID, true)
		return
	}

	if _, err := l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusRunning
		return true, nil
	}); err != nil {
		logger.Error("cannot mark instance running after successful start", zap.Error(err))
	}
}

func (l *Lifecycle) awaitReadiness(ctx context.Context, adapter engine.Adapter, spec engine.Spec, containerID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	if adapter.Supports().Embedded {
		return true
	}
	time.Sleep(adapter.StartupProbeDelay())
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		cmd := adapter.HealthCheckCommand(spec)
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result, err := l.opts.Containers.Exec(probeCtx, containerID, cmd)
		cancel()
		if err == nil {
			classified := adapter.ParseHealthCheckOutput(result.ExitCode, result.Stdout, result.Stderr)
			if classified.Status == engine.Healthy {
				return true
			}
		}
		time.Sleep(2 * time.Second)
	}
	return false
}

func (l *Lifecycle) fail(ctx context.Context, id string, cause error) {
	l.opts.Logger.Error("instance provisioning failed", zap.String("instance_id", id), zap.Error(cause))
	if _, err := l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusFailed
		cur.LastError = cause.Error()
		return true, nil
	}); err != nil {
		l.opts.Logger.Error("cannot record failure state", zap.String("instance_id", id), zap.Error(err))
	}
}

// Start transitions a stopped or failed instance back toward running.
func (l *Lifecycle) Start(ctx context.Context, id string) (*db.Instance, error) {
	inst, err := l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		if cur.Status != db.StatusStopped && cur.Status != db.StatusFailed {
			return false, &ErrInvalidTransition{From: cur.Status, Op: "start"}
		}
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusStarting
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := l.opts.Containers.Start(ctx, inst.ContainerID); err != nil {
		l.fail(ctx, id, err)
		return nil, err
	}

	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		return nil, err
	}
	spec := specFromInstance(*inst)
	if !l.awaitReadiness(ctx, adapter, spec, inst.ContainerID, 120*time.Second) {
		err := fmt.Errorf("readiness gate timed out on start")
		l.fail(ctx, id, err)
		return nil, err
	}

	return l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusRunning
		return true, nil
	})
}

// Stop transitions a running instance to stopped, issuing graceful stop
// then force kill on timeout.
func (l *Lifecycle) Stop(ctx context.Context, id string, grace time.Duration) (*db.Instance, error) {
	inst, err := l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		if cur.Status != db.StatusRunning {
			return false, &ErrInvalidTransition{From: cur.Status, Op: "stop"}
		}
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusStopping
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := l.opts.Containers.Stop(ctx, inst.ContainerID, grace); err != nil {
		l.opts.Containers.Kill(ctx, inst.ContainerID)
	}

	return l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusStopped
		return true, nil
	})
}

// Restart is stopping -> starting without exposing the intermediate
// stopped state to API observers.
func (l *Lifecycle) Restart(ctx context.Context, id string, grace time.Duration) (*db.Instance, error) {
	inst, err := l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		if cur.Status != db.StatusRunning {
			return false, &ErrInvalidTransition{From: cur.Status, Op: "restart"}
		}
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusRestarting
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := l.opts.Containers.Restart(ctx, inst.ContainerID, grace); err != nil {
		l.fail(ctx, id, err)
		return nil, err
	}

	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		return nil, err
	}
	spec := specFromInstance(*inst)
	if !l.awaitReadiness(ctx, adapter, spec, inst.ContainerID, 120*time.Second) {
		err := fmt.Errorf("readiness gate timed out on restart")
		l.fail(ctx, id, err)
		return nil, err
	}

	return l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusRunning
		return true, nil
	})
}

// Destroy tears down an instance following the idempotent ordering in
// §4.2.1: any state may enter destroying, and destroy of an
// already-destroyed instance succeeds trivially.
func (l *Lifecycle) Destroy(ctx context.Context, id string) error {
	inst, err := l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		if cur.Status == db.StatusDestroyed {
			return false, nil
		}
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusDestroying
		return true, nil
	})
	if err != nil {
		return err
	}
	if inst == nil {
		return nil // already destroyed
	}

	if err := l.opts.Containers.Stop(ctx, inst.ContainerID, 15*time.Second); err != nil {
		l.opts.Containers.Kill(ctx, inst.ContainerID)
	}
	if err := l.opts.Containers.Remove(ctx, inst.ContainerID, true); err != nil {
		l.opts.Logger.Warn("removing container during destroy", zap.String("instance_id", id), zap.Error(err))
	}
	if l.opts.Snapshots != nil {
		if err := l.opts.Snapshots.DeleteForInstance(ctx, inst.ID); err != nil {
			l.opts.Logger.Warn("deleting snapshots during destroy", zap.String("instance_id", id), zap.Error(err))
		}
	}

	if inst.VnetIP != "" && l.opts.VNet != nil {
		l.opts.VNet.Release(inst.ID)
	}
	if inst.Port != 0 && l.opts.PortRelease != nil {
		l.opts.PortRelease(inst.Port)
	}
	if err := l.opts.Volumes.Destroy(inst.ID); err != nil {
		l.opts.Logger.Warn("removing volume during destroy", zap.String("instance_id", id), zap.Error(err))
	}
	if inst.TLSEnabled {
		if err := os.RemoveAll(filepath.Join(l.opts.TLSRoot, inst.ID)); err != nil {
			l.opts.Logger.Warn("removing tls material during destroy", zap.String("instance_id", id), zap.Error(err))
		}
	}

	_, err = l.manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.PreviousStatus = cur.Status
		cur.Status = db.StatusDestroyed
		return true, nil
	})
	return err
}

// renderConfig writes the adapter's rendered config file (if any) next to
// the instance's data volume, so it survives container recreation the same
// way the data directory does. Adapters with no config to render return an
// empty byte slice, in which case no file is written and Create mounts
// nothing at /etc/dbaas/config.
func (l *Lifecycle) renderConfig(adapter engine.Adapter, spec engine.Spec, skuRow sku.Sku, volumePath string) (string, error) {
	rendered, err := adapter.RenderConfig(spec, skuRow.MemoryMB, skuRow.VCPU)
	if err != nil {
		return "", err
	}
	if len(rendered) == 0 {
		return "", nil
	}
	path := filepath.Join(volumePath, "..", "config", spec.InstanceID+".conf")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, rendered, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func specFromInstance(inst db.Instance) engine.Spec {
	return engine.Spec{
		InstanceID:   inst.ID,
		DatabaseName: inst.DatabaseName,
		Username:     inst.Username,
		Password:     inst.Password,
		Host:         inst.HostAddress,
		Port:         inst.Port,
		MemoryMB:     inst.MemoryLimitMB,
		CPU:          inst.CPULimit,
	}
}
