package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	cli, err := NewDockerClient("")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

// =============================================================================
// Error Tests
// =============================================================================

func TestDockerError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *DockerError
		want string
	}{
		{"with id", NewDockerError("Exec", "container", "casaos", "boom", ErrExecFailed), "Exec container casaos: boom"},
		{"entity only", NewDockerError("ListNetworks", "network", "", "boom", nil), "ListNetworks network: boom"},
		{"op only", NewDockerError("Ping", "", "", "down", ErrConnectionFailed), "Ping: down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestDockerError_Unwrap(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewDockerError("Exec", "container", "x", "gone", ErrContainerNotFound))
	assert.True(t, errors.Is(err, ErrContainerNotFound))

	var de *DockerError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "x", de.ID)
}

// =============================================================================
// Build Stream Tests
// =============================================================================

func TestDecodeBuildStream_Lines(t *testing.T) {
	stream := strings.Join([]string{
		`{"stream":"Step 1/2 : FROM alpine\n"}`,
		`{"status":"Pulling fs layer","id":"abc","progress":"[=>  ]"}`,
		`{"stream":" ---> 1234\nStep 2/2 : RUN true\n"}`,
		`{"aux":{"ID":"sha256:feed"}}`,
	}, "\n")

	var lines []string
	err := decodeBuildStream(strings.NewReader(stream), func(s string) { lines = append(lines, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Step 1/2 : FROM alpine",
		"abc Pulling fs layer [=>  ]",
		" ---> 1234",
		"Step 2/2 : RUN true",
		"image id: sha256:feed",
	}, lines)
}

func TestDecodeBuildStream_Error(t *testing.T) {
	stream := `{"stream":"Step 1/1 : RUN false\n"}
{"errorDetail":{"message":"returned a non-zero code: 1"},"error":"returned a non-zero code: 1"}
{"stream":"never seen"}`

	var lines []string
	err := decodeBuildStream(strings.NewReader(stream), func(s string) { lines = append(lines, s) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-zero code")
	assert.Equal(t, []string{"Step 1/1 : RUN false"}, lines)
}

func TestDecodeBuildStream_Malformed(t *testing.T) {
	err := decodeBuildStream(strings.NewReader(`{"stream":`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode build output")
}

func TestBuildImage_RejectsEmptySpec(t *testing.T) {
	d := &DockerClient{}

	err := d.BuildImage(context.Background(), BuildSpec{Tag: "x:latest"}, nil)
	assert.ErrorIs(t, err, ErrImageBuildFailed)

	err = d.BuildImage(context.Background(), BuildSpec{ContextDir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrImageBuildFailed)
}

// =============================================================================
// Live Engine Tests
// =============================================================================

func TestBoundedCmd(t *testing.T) {
	cmd := []string{"sh", "-c", "sleep 600"}

	assert.Equal(t, cmd, boundedCmd(cmd, 0))
	assert.Equal(t, []string{"timeout", "-s", "KILL", "300", "sh", "-c", "sleep 600"}, boundedCmd(cmd, 5*time.Minute))
	assert.Equal(t, []string{"timeout", "-s", "KILL", "1", "sh", "-c", "sleep 600"}, boundedCmd(cmd, 10*time.Millisecond))
	assert.Equal(t, []string{"sh", "-c", "sleep 600"}, cmd)
}

func TestExec_TimeoutKillsProcessInContainer(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	name := os.Getenv("COMPILER_TEST_EXEC_CONTAINER")
	if name == "" {
		t.Skip("COMPILER_TEST_EXEC_CONTAINER not set")
	}

	res, err := cli.Exec(context.Background(), name, ExecSpec{
		Cmd:     []string{"sh", "-c", "sleep 30"},
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.NotZero(t, res.ExitCode)
}

func TestNewDockerClient_Ping(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NotNil(t, cli)
}

func TestListContainers_Filter(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	containers, err := cli.ListContainers(context.Background(), ListOptions{
		All:     true,
		Filters: map[string]string{"label": "com.docker.compose.project=compiler-test-nonexistent"},
	})
	require.NoError(t, err)
	assert.Empty(t, containers)
}

func TestExec_MissingContainer(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.Exec(context.Background(), "compiler-test-missing-container", ExecSpec{Cmd: []string{"true"}})
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestImageExists_Missing(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	ok, err := cli.ImageExists(context.Background(), "compiler-test-missing-image:never")
	require.NoError(t, err)
	assert.False(t, ok)
}
