// Package container wraps the Docker Engine API client into the typed
// operations the component design names: Create, Start, Stop, Kill,
// Restart, Remove, Inspect, StatsSnapshot, Logs, Exec. Instance-identified
// containers are named by a fixed prefix so discovery never depends on
// labels alone, mirroring the teacher orchestrator's prefix convention.
package container

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/engine"
	"github.com/coralcp/dbaas/sku"
)

const (
	managedPrefix  = "dbaas-instance-"
	namePrefixSlash = "/" + managedPrefix
)

// Options configures a Client. Both fields are required.
type Options struct {
	Docker *dockerclient.Client
	Logger *zap.Logger
}

// Client is the only wired Orchestrator implementation, talking to the
// Docker Engine API over the configured runtime socket.
type Client struct {
	Options
}

func NewClient(opt Options) (*Client, error) {
	if opt.Docker == nil {
		return nil, fmt.Errorf("container: nil docker client is invalid")
	}
	if opt.Logger == nil {
		return nil, fmt.Errorf("container: nil logger is invalid")
	}
	return &Client{Options: opt}, nil
}

// CreateSpec carries everything Create needs to build and start a
// container for one instance; fields map directly to the "applied
// configuration" the component design lists for Create.
type CreateSpec struct {
	InstanceID     string
	Adapter        engine.Adapter
	EngineSpec     engine.Spec
	Sku            sku.Sku
	HostPort       int
	ExternalAccess bool
	DataVolumePath string
	ConfigPath     string // rendered config file mounted read-only, empty if adapter needs none
	TLSCertPath    string
	TLSKeyPath     string
	NetworkName    string // named vnet to attach to, empty for the default bridge
}

func containerName(instanceID string) string { return managedPrefix + instanceID }

// Create pulls the image if absent, builds the container with resource
// caps, capability hardening, and port/volume bindings, then starts it.
// Returns the container id.
func (c *Client) Create(ctx context.Context, spec CreateSpec) (string, error) {
	if spec.Adapter.Supports().Embedded {
		return "", nil
	}

	image := spec.Adapter.ImageReference()
	out, err := c.Docker.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return "", errors.Wrap(err, "pulling image")
	}
	io.Copy(ioutil.Discard, out)
	out.Close()

	env := spec.Adapter.ContainerEnv(spec.EngineSpec)
	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	proto := "tcp"
	if spec.Adapter.IsUDP() {
		proto = "udp"
	}
	containerPort, err := nat.NewPort(proto, strconv.Itoa(spec.Adapter.DefaultPort()))
	if err != nil {
		return "", errors.Wrap(err, "building container port")
	}

	hostIP := "127.0.0.1"
	if spec.ExternalAccess {
		hostIP = "0.0.0.0"
	}
	portBindings := nat.PortMap{
		containerPort: []nat.PortBinding{{HostIP: hostIP, HostPort: strconv.Itoa(spec.HostPort)}},
	}

	mounts := []string{spec.DataVolumePath + ":/var/lib/dbaas-data"}
	if spec.ConfigPath != "" {
		mounts = append(mounts, spec.ConfigPath+":/etc/dbaas/config:ro")
	}
	if spec.TLSCertPath != "" && spec.TLSKeyPath != "" {
		mounts = append(mounts, spec.TLSCertPath+":/etc/dbaas/tls.crt:ro", spec.TLSKeyPath+":/etc/dbaas/tls.key:ro")
	}

	capDrop := []string{"ALL"}
	capAdd := spec.Adapter.Capabilities()

	nanoCPUs := int64(spec.Sku.VCPU * 1e9)
	memBytes := int64(spec.Sku.MemoryMB) * 1024 * 1024
	oomScoreAdj := 0
	if spec.Sku.Hints.OOMScoreAdj != nil {
		oomScoreAdj = *spec.Sku.Hints.OOMScoreAdj
	}

	resp, err := c.Docker.ContainerCreate(ctx,
		&container.Config{
			Image:  image,
			Env:    envList,
			Labels: map[string]string{"managed-by": "dbaas", "instance-id": spec.InstanceID, "engine": spec.Adapter.Tag()},
		},
		&container.HostConfig{
			PortBindings: portBindings,
			Binds:        mounts,
			Resources: container.Resources{
				Memory:     memBytes,
				NanoCPUs:   nanoCPUs,
				CPUShares:  spec.Sku.Hints.CPUShares,
				OomKillDisable: boolPtr(false),
			},
			CapDrop:        capDrop,
			CapAdd:         capAdd,
			SecurityOpt:    []string{"no-new-privileges"},
			NetworkMode:    networkMode(spec.NetworkName),
			OomScoreAdj:    oomScoreAdj,
			RestartPolicy:  container.RestartPolicy{Name: "no"},
		},
		nil,
		nil,
		containerName(spec.InstanceID),
	)
	if err != nil {
		return "", errors.Wrap(err, "creating container")
	}

	if err := c.Docker.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", errors.Wrap(err, "starting container")
	}

	return resp.ID, nil
}

func networkMode(name string) container.NetworkMode {
	if name == "" {
		return "default"
	}
	return container.NetworkMode(name)
}

func boolPtr(b bool) *bool { return &b }

// Start starts an already-created, stopped container.
func (c *Client) Start(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	if err := c.Docker.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return errors.Wrap(err, "starting container")
	}
	return nil
}

// Stop issues a graceful stop with the given grace period, falling back to
// SIGKILL once it elapses (the Engine API's own ContainerStop already does
// this internally).
func (c *Client) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	if containerID == "" {
		return nil
	}
	seconds := int(grace.Seconds())
	if err := c.Docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "stopping container")
	}
	return nil
}

// Kill sends SIGKILL immediately.
func (c *Client) Kill(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	if err := c.Docker.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "killing container")
	}
	return nil
}

// Restart stops then starts, matching the engine API's built-in restart
// semantics.
func (c *Client) Restart(ctx context.Context, containerID string, grace time.Duration) error {
	if containerID == "" {
		return nil
	}
	seconds := int(grace.Seconds())
	if err := c.Docker.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		return errors.Wrap(err, "restarting container")
	}
	return nil
}

// Remove removes the container (forcibly when force is set) and its
// anonymous volumes. Absent
// container is not an error: destroy is idempotent per the lifecycle
// manager's contract.
func (c *Client) Remove(ctx context.Context, containerID string, force bool) error {
	if containerID == "" {
		return nil
	}
	if err := c.Docker.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: force, RemoveVolumes: true}); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "removing container")
	}
	return nil
}

// Inspect returns the raw engine inspect result for the API's Inspect
// operation.
func (c *Client) Inspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	info, err := c.Docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return types.ContainerJSON{}, errors.Wrap(err, "inspecting container")
	}
	return info, nil
}

// StatsOneShot reads a single stats sample (not the streaming variant) for
// the Metrics Sampler's per-tick fusion.
func (c *Client) StatsOneShot(ctx context.Context, containerID string) (types.StatsJSON, error) {
	resp, err := c.Docker.ContainerStats(ctx, containerID, false)
	if err != nil {
		return types.StatsJSON{}, errors.Wrap(err, "reading container stats")
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := decodeJSON(resp.Body, &stats); err != nil {
		return types.StatsJSON{}, errors.Wrap(err, "decoding container stats")
	}
	return stats, nil
}

// Logs tails container logs in the window requested by the API's
// /instances/{id}/logs route.
func (c *Client) Logs(ctx context.Context, containerID string, tail string, since, until time.Time) (io.ReadCloser, error) {
	opts := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
		Timestamps: true,
	}
	if !since.IsZero() {
		opts.Since = since.Format(time.RFC3339Nano)
	}
	if !until.IsZero() {
		opts.Until = until.Format(time.RFC3339Nano)
	}
	rc, err := c.Docker.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		return nil, errors.Wrap(err, "reading container logs")
	}
	return rc, nil
}

// ExecResult is the outcome of Exec: the adapter Command's classifier
// inputs.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Exec runs an adapter-provided command inside the container and collects
// its exit code and output, the mechanism behind health checks, metrics
// collection, snapshot/restore, and database/user admin commands.
func (c *Client) Exec(ctx context.Context, containerID string, cmd engine.Command) (ExecResult, error) {
	execConfig := types.ExecConfig{
		Cmd:          cmd.Argv,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  len(cmd.Stdin) > 0,
	}
	created, err := c.Docker.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return ExecResult{}, errors.Wrap(err, "creating exec")
	}

	attached, err := c.Docker.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return ExecResult{}, errors.Wrap(err, "attaching exec")
	}
	defer attached.Close()

	if len(cmd.Stdin) > 0 {
		if _, err := attached.Conn.Write(cmd.Stdin); err != nil {
			c.Logger.Warn("exec stdin write failed", zap.Error(err))
		}
		attached.CloseWrite()
	}

	stdout, stderr, err := demuxStream(attached.Reader)
	if err != nil {
		return ExecResult{}, errors.Wrap(err, "reading exec output")
	}

	inspect, err := c.Docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, errors.Wrap(err, "inspecting exec")
	}

	return ExecResult{ExitCode: inspect.ExitCode, Stdout: stdout, Stderr: stderr}, nil
}

// ContainerIDForInstance discovers a managed container by its fixed name
// prefix, returning "" when none exists (e.g. the instance never got past
// creation).
func (c *Client) ContainerIDForInstance(ctx context.Context, instanceID string) (string, error) {
	containers, err := c.Docker.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return "", errors.Wrap(err, "listing containers")
	}
	want := namePrefixSlash + instanceID
	for _, ctr := range containers {
		for _, name := range ctr.Names {
			if name == want {
				return ctr.ID, nil
			}
		}
	}
	return "", nil
}

// Stats summarizes managed containers for HostCapacity.
type Stats struct {
	Running int64
	Stopped int64
}

func (c *Client) StatsSnapshot(ctx context.Context) (Stats, error) {
	containers, err := c.Docker.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing containers")
	}
	var s Stats
	for _, ctr := range containers {
		for _, name := range ctr.Names {
			if !strings.HasPrefix(name, namePrefixSlash) {
				continue
			}
			switch ctr.State {
			case "running", "restarting":
				s.Running++
			default:
				s.Stopped++
			}
		}
	}
	return s, nil
}
