package installer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/docker"
)

// fakeDocker is a scripted docker.Client.
type fakeDocker struct {
	mu sync.Mutex

	// exec answers Exec calls; nil answers every call with exit 0.
	exec func(cmd []string) (*docker.ExecResult, error)

	containers []docker.ContainerInfo
	networks   []docker.NetworkInfo
	listErr    error

	execCalls []docker.ExecSpec
	started   []string
	stopped   []string
	removed   []string
	removedNW []string
	removeOpt []docker.RemoveOptions
}

func (f *fakeDocker) Ping(ctx context.Context) error { return nil }
func (f *fakeDocker) Close() error                   { return nil }

func (f *fakeDocker) Exec(ctx context.Context, name string, spec docker.ExecSpec) (*docker.ExecResult, error) {
	f.mu.Lock()
	f.execCalls = append(f.execCalls, spec)
	handler := f.exec
	f.mu.Unlock()
	if handler == nil {
		return &docker.ExecResult{}, nil
	}
	return handler(spec.Cmd)
}

func (f *fakeDocker) ListContainers(ctx context.Context, opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]docker.ContainerInfo(nil), f.containers...), nil
}

func (f *fakeDocker) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	f.setState(id, docker.ContainerStatusRunning)
	return nil
}

func (f *fakeDocker) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	f.setState(id, docker.ContainerStatusExited)
	return nil
}

func (f *fakeDocker) RemoveContainer(ctx context.Context, id string, opts docker.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	f.removeOpt = append(f.removeOpt, opts)
	return nil
}

func (f *fakeDocker) ListNetworks(ctx context.Context) ([]docker.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docker.NetworkInfo(nil), f.networks...), nil
}

func (f *fakeDocker) RemoveNetwork(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedNW = append(f.removedNW, id)
	return nil
}

func (f *fakeDocker) BuildImage(ctx context.Context, spec docker.BuildSpec, onOutput docker.BuildOutputCallback) error {
	return nil
}

func (f *fakeDocker) ImageExists(ctx context.Context, image string) (bool, error) {
	return true, nil
}

func (f *fakeDocker) setState(id string, st docker.ContainerStatus) {
	for i := range f.containers {
		if f.containers[i].ID == id {
			f.containers[i].Status = st
			f.containers[i].State = string(st)
		}
	}
}

// curlResult builds the stdout curl produces for a body and status code.
func curlResult(body string, code int) *docker.ExecResult {
	return &docker.ExecResult{Stdout: body + statusMarker + strconv.Itoa(code)}
}

// method returns the HTTP method of a curl argv.
func method(cmd []string) string {
	for i, arg := range cmd {
		if arg == "-X" && i+1 < len(cmd) {
			return cmd[i+1]
		}
	}
	return ""
}

func testConfig() Config {
	return Config{
		Retries:         2,
		RetryBackoff:    time.Millisecond,
		ConfirmAttempts: 3,
		ConfirmInterval: time.Millisecond,
		KillGrace:       200 * time.Millisecond,
		StopTimeout:     time.Second,
	}
}
