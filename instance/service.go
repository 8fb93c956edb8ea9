package instance

import (
	"context"
	"io"
	"strings"
	"time"

	extErrors "github.com/pkg/errors"

	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/credential"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/engine"
)

// Service composes Manager and Lifecycle into the resource operations the
// component design lists under "Public API Surface", the layer the HTTP
// router calls directly.
type Service struct {
	Manager    *Manager
	Lifecycle  *Lifecycle
	Containers *container.Client
}

// RotateCredentials generates a new password, applies it via the adapter's
// user-alter command against the running container, and only then updates
// the persisted row — so a failed apply never leaves the stored password
// out of sync with the live instance.
func (s *Service) RotateCredentials(ctx context.Context, id string) (username, password string, err error) {
	inst, err := s.Manager.GetByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	if inst == nil {
		return "", "", extErrors.New("instance not found")
	}
	if inst.Status != db.StatusRunning {
		return "", "", &ErrInvalidTransition{From: inst.Status, Op: "rotate credentials"}
	}

	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		return "", "", err
	}
	if !adapter.Supports().Users {
		return "", "", extErrors.Errorf("engine %s does not support user management", inst.EngineTag)
	}

	newPassword, err := credential.GeneratePassword(adapter.CharsetConstraints())
	if err != nil {
		return "", "", extErrors.Wrap(err, "generating password")
	}

	cmd := adapter.AlterUserPasswordCommand(specFromInstance(*inst), inst.Username, newPassword)
	result, err := s.Containers.Exec(ctx, inst.ContainerID, cmd)
	if err != nil {
		return "", "", extErrors.Wrap(err, "executing password rotation command")
	}
	if result.ExitCode != 0 {
		return "", "", extErrors.Errorf("password rotation command failed: %s", result.Stderr)
	}

	updated, err := s.Manager.LambdaUpdate(ctx, id, func(cur *db.Instance) (bool, error) {
		cur.Password = newPassword
		return true, nil
	})
	if err != nil {
		return "", "", err
	}
	return updated.Username, updated.Password, nil
}

// Inspect returns the raw runtime inspect payload for an instance.
func (s *Service) Inspect(ctx context.Context, id string) (interface{}, error) {
	inst, err := s.Manager.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, extErrors.New("instance not found")
	}
	return s.Containers.Inspect(ctx, inst.ContainerID)
}

// Logs streams container logs for the window the API's Logs(id, opts)
// operation requests.
func (s *Service) Logs(ctx context.Context, id string, tail string, since, until time.Time) (io.ReadCloser, error) {
	inst, err := s.Manager.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, extErrors.New("instance not found")
	}
	return s.Containers.Logs(ctx, inst.ContainerID, tail, since, until)
}

// Export streams a full logical dump using the adapter's snapshot command,
// piped directly to the caller instead of landing on disk.
func (s *Service) Export(ctx context.Context, id string) (io.Reader, string, error) {
	inst, err := s.Manager.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if inst == nil {
		return nil, "", extErrors.New("instance not found")
	}
	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		return nil, "", err
	}
	if !adapter.Supports().Backup {
		return nil, "", extErrors.Errorf("engine %s does not support export", inst.EngineTag)
	}

	// exportPath is inside the container's own filesystem; the adapter's
	// dump command writes there and Exec's stdout carries nothing, so the
	// file is read back with a second Exec, as the snapshot service does.
	exportPath := "/tmp/export" + adapter.BackupFileExtension()
	cmd := adapter.SnapshotCommand(specFromInstance(*inst), exportPath)
	result, err := s.Containers.Exec(ctx, inst.ContainerID, cmd)
	if err != nil {
		return nil, "", err
	}
	if result.ExitCode != 0 {
		return nil, "", extErrors.Errorf("export command failed: %s", result.Stderr)
	}
	dump, err := s.Containers.Exec(ctx, inst.ContainerID, engine.Command{Argv: []string{"cat", exportPath}})
	if err != nil {
		return nil, "", err
	}
	if dump.ExitCode != 0 {
		return nil, "", extErrors.Errorf("reading export file failed: %s", dump.Stderr)
	}
	return strings.NewReader(dump.Stdout), inst.DatabaseName + adapter.BackupFileExtension(), nil
}
