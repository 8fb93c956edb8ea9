// Package volume manages the per-instance data directories mounted into
// containers, grounded on the reference volume service: a safe-name
// validator plus a resolved-path traversal guard, both enforced before any
// filesystem mutation.
package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var safeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// ErrUnsafeName is returned when an instance id or database name fails the
// filesystem-safety check; this must never reach the shell or a path join.
type ErrUnsafeName struct{ Name string }

func (e *ErrUnsafeName) Error() string { return fmt.Sprintf("volume: unsafe name %q", e.Name) }

// ValidName reports whether name is safe to use as a path component: it
// matches the alphanumeric/dot/underscore/hyphen pattern and contains no
// separators or traversal sequences.
func ValidName(name string) bool {
	if name == "" || !safeNamePattern.MatchString(name) {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return true
}

// Service creates and destroys per-instance data directories under a
// configured base root.
type Service struct {
	baseRoot string
}

func New(baseRoot string) *Service { return &Service{baseRoot: baseRoot} }

// ensureWithinBase resolves path and confirms it falls under the service's
// base root, refusing to act on anything a symlink or ".." component
// could have escaped with.
func (s *Service) ensureWithinBase(path string) (string, error) {
	resolvedBase, err := filepath.Abs(s.baseRoot)
	if err != nil {
		return "", errors.Wrap(err, "resolving volume base root")
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, "resolving volume path")
	}
	if resolved != resolvedBase && !strings.HasPrefix(resolved, resolvedBase+string(os.PathSeparator)) {
		return "", fmt.Errorf("volume: path %q escapes base root %q", resolved, resolvedBase)
	}
	return resolved, nil
}

// Create allocates and returns the data directory for instanceID, creating
// it with owner-only permissions if absent.
func (s *Service) Create(instanceID string) (string, error) {
	if !ValidName(instanceID) {
		return "", &ErrUnsafeName{Name: instanceID}
	}
	path := filepath.Join(s.baseRoot, instanceID)
	resolved, err := s.ensureWithinBase(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(resolved, 0o700); err != nil {
		return "", errors.Wrap(err, "creating instance volume directory")
	}
	return resolved, nil
}

// Destroy removes an instance's data directory entirely. Absent directory
// is not an error, matching the lifecycle manager's idempotent destroy
// ordering.
func (s *Service) Destroy(instanceID string) error {
	if !ValidName(instanceID) {
		return &ErrUnsafeName{Name: instanceID}
	}
	path := filepath.Join(s.baseRoot, instanceID)
	resolved, err := s.ensureWithinBase(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(resolved); err != nil {
		return errors.Wrap(err, "removing instance volume directory")
	}
	return nil
}

// Path returns the data directory for instanceID without creating it.
func (s *Service) Path(instanceID string) (string, error) {
	if !ValidName(instanceID) {
		return "", &ErrUnsafeName{Name: instanceID}
	}
	return s.ensureWithinBase(filepath.Join(s.baseRoot, instanceID))
}
