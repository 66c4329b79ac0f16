// Package docker provides a Docker client for the operations the compiler
// performs against the local engine: exec into the platform container,
// container and network cleanup, and image builds.
package docker

import (
	"context"
	"time"
)

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo is the summary of a container returned by ListContainers.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	State     string
	CreatedAt time.Time
	Labels    map[string]string
}

// Running reports whether the container is running.
func (c ContainerInfo) Running() bool {
	return c.Status == ContainerStatusRunning
}

// ListOptions filters ListContainers.
type ListOptions struct {
	All     bool
	Filters map[string]string
}

// RemoveOptions configures container removal.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// =============================================================================
// Network Info
// =============================================================================

// NetworkInfo is the summary of a network returned by ListNetworks.
type NetworkInfo struct {
	ID     string
	Name   string
	Labels map[string]string
}

// =============================================================================
// Exec
// =============================================================================

// ExecSpec describes a command run inside an existing container.
type ExecSpec struct {
	Cmd        []string
	Env        []string
	WorkingDir string
	User       string

	// Timeout, when set, runs Cmd under timeout(1) inside the container so
	// the process is killed there once it expires. Cancelling ctx alone only
	// stops waiting for it.
	Timeout time.Duration
}

// ExecResult holds the captured output of a finished exec.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// =============================================================================
// Image Build
// =============================================================================

// BuildSpec describes an image build from a local directory.
type BuildSpec struct {
	ContextDir string
	Dockerfile string // relative to ContextDir
	Target     string
	Tag        string
	Args       map[string]*string
	NoCache    bool
}

// BuildOutputCallback is invoked with incremental build messages.
type BuildOutputCallback func(string)

// =============================================================================
// Client Interface
// =============================================================================

// Client is the subset of the Docker engine API the compiler uses.
type Client interface {
	// Connection
	Ping(ctx context.Context) error
	Close() error

	// Exec
	Exec(ctx context.Context, containerName string, spec ExecSpec) (*ExecResult, error)

	// Containers
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error

	// Networks
	ListNetworks(ctx context.Context) ([]NetworkInfo, error)
	RemoveNetwork(ctx context.Context, networkID string) error

	// Images
	BuildImage(ctx context.Context, spec BuildSpec, onOutput BuildOutputCallback) error
	ImageExists(ctx context.Context, image string) (bool, error)
}
