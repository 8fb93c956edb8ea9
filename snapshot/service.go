// Package snapshot creates, restores, and deletes engine-native backups,
// grounded on the reference backup service's timestamped-filename and
// directory-per-instance layout, adapted to write gzip-compressed
// artifacts through the Container Orchestrator's Exec, per §4.4.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/engine"
)

// ErrInstanceNotRunning is returned by Create and Restore when the target
// instance isn't in a state that can run adapter commands.
var ErrInstanceNotRunning = extErrors.New("snapshot: instance must be running")

type Service struct {
	DB         *gorm.DB
	Containers *container.Client
	Logger     *zap.Logger
	Root       string // snapshot_root, per-instance subdirectories beneath it
}

func instanceDir(root, instanceID string) string { return filepath.Join(root, instanceID) }

// Create dumps the instance inside its container, streams the dump back
// over Exec's captured stdout... in practice adapters write to a file
// inside the container, so Create copies that file out via a second Exec
// reading it, compressing on the way to disk.
func (s *Service) Create(ctx context.Context, inst db.Instance, notes string) (*db.Snapshot, error) {
	if inst.Status != db.StatusRunning {
		return nil, ErrInstanceNotRunning
	}
	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		return nil, err
	}
	if !adapter.Supports().Backup {
		return nil, extErrors.Errorf("engine %s does not support snapshots", inst.EngineTag)
	}

	dir := instanceDir(s.Root, inst.ID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, extErrors.Wrap(err, "creating snapshot directory")
	}

	containerPath := fmt.Sprintf("/tmp/snapshot-%d%s", rand.Int63(), adapter.BackupFileExtension())
	cmd := adapter.SnapshotCommand(specFromInstance(inst), containerPath)
	result, err := s.Containers.Exec(ctx, inst.ContainerID, cmd)
	if err != nil {
		return nil, extErrors.Wrap(err, "executing snapshot command")
	}
	if result.ExitCode != 0 {
		return nil, extErrors.Errorf("snapshot command exited %d: %s", result.ExitCode, result.Stderr)
	}

	catCmd := engine.Command{Argv: []string{"cat", containerPath}}
	dump, err := s.Containers.Exec(ctx, inst.ContainerID, catCmd)
	if err != nil {
		return nil, extErrors.Wrap(err, "reading snapshot file from container")
	}
	if dump.ExitCode != 0 || len(dump.Stdout) == 0 {
		return nil, extErrors.New("snapshot produced an empty or unreadable dump file")
	}

	fileName := fmt.Sprintf("%d-%s%s", time.Now().Unix(), randSuffix(), adapter.BackupFileExtension())
	destPath := filepath.Join(dir, fileName+".gz")

	size, err := writeGzip(destPath, []byte(dump.Stdout))
	if err != nil {
		os.Remove(destPath)
		return nil, extErrors.Wrap(err, "writing compressed snapshot")
	}

	row := &db.Snapshot{
		ID:         uuid.NewString(),
		InstanceID: inst.ID,
		Path:       destPath,
		SizeBytes:  size,
		Notes:      notes,
		CreatedAt:  time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(row).Error; err != nil {
		os.Remove(destPath)
		return nil, extErrors.Wrap(err, "recording snapshot")
	}
	return row, nil
}

// Restore decompresses the snapshot's file and runs the adapter's restore
// command against the running instance. The command must be idempotent;
// this is the adapter's responsibility, not the caller's.
func (s *Service) Restore(ctx context.Context, inst db.Instance, snap db.Snapshot) error {
	if inst.Status != db.StatusRunning {
		return ErrInstanceNotRunning
	}
	adapter, err := engine.Get(inst.EngineTag)
	if err != nil {
		return err
	}

	data, err := readGzip(snap.Path)
	if err != nil {
		return extErrors.Wrap(err, "reading snapshot file")
	}

	containerPath := fmt.Sprintf("/tmp/restore-%d%s", rand.Int63(), adapter.BackupFileExtension())
	writeCmd := engine.Command{Argv: []string{"sh", "-c", "cat > " + containerPath}, Stdin: data}
	if res, err := s.Containers.Exec(ctx, inst.ContainerID, writeCmd); err != nil || res.ExitCode != 0 {
		if err == nil {
			err = extErrors.Errorf("writing restore file failed: %s", res.Stderr)
		}
		return extErrors.Wrap(err, "staging restore file in container")
	}

	cmd := adapter.RestoreCommand(specFromInstance(inst), containerPath)
	result, err := s.Containers.Exec(ctx, inst.ContainerID, cmd)
	if err != nil {
		return extErrors.Wrap(err, "executing restore command")
	}
	if result.ExitCode != 0 {
		return extErrors.Errorf("restore command failed: %s", result.Stderr)
	}
	return nil
}

// Delete removes the file then the row; a leftover row after a failed
// file delete is preferable to an orphan file (the reconciler sweeps
// those on start), per §4.4.
func (s *Service) Delete(ctx context.Context, snap db.Snapshot) error {
	if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
		return extErrors.Wrap(err, "deleting snapshot file")
	}
	return s.DB.WithContext(ctx).Delete(&db.Snapshot{}, "id = ?", snap.ID).Error
}

func (s *Service) List(ctx context.Context, instanceID string) ([]db.Snapshot, error) {
	var out []db.Snapshot
	err := s.DB.WithContext(ctx).Where("instance_id = ?", instanceID).Order("created_at desc").Find(&out).Error
	return out, err
}

// DeleteForInstance removes every snapshot file and row belonging to an
// instance. The Lifecycle Manager calls this from Destroy so that "the file
// at path exists iff the snapshot row exists" holds after an instance is
// gone, not just while it lives.
func (s *Service) DeleteForInstance(ctx context.Context, instanceID string) error {
	rows, err := s.List(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.Delete(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func writeGzip(destPath string, data []byte) (int64, error) {
	f, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func readGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

func randSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 6)
	for i := range out {
		out[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(out)
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
