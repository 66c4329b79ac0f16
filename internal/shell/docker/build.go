package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/archive"
)

// =============================================================================
// Image Build
// =============================================================================

// BuildImage builds an image from a local directory and tags it. Build
// output is streamed line by line to onOutput.
func (d *DockerClient) BuildImage(ctx context.Context, spec BuildSpec, onOutput BuildOutputCallback) error {
	if strings.TrimSpace(spec.ContextDir) == "" {
		return NewDockerError("BuildImage", "image", spec.Tag, "build directory cannot be empty", ErrImageBuildFailed)
	}
	if strings.TrimSpace(spec.Tag) == "" {
		return NewDockerError("BuildImage", "image", "", "image tag cannot be empty", ErrImageBuildFailed)
	}

	buildCtx, err := archive.TarWithOptions(spec.ContextDir, &archive.TarOptions{})
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, fmt.Sprintf("create build context: %v", err), ErrImageBuildFailed)
	}
	defer buildCtx.Close()

	opts := build.ImageBuildOptions{
		Tags:        []string{spec.Tag},
		Dockerfile:  spec.Dockerfile,
		Target:      spec.Target,
		BuildArgs:   spec.Args,
		NoCache:     spec.NoCache,
		Remove:      true,
		ForceRemove: true,
	}
	resp, err := d.cli.ImageBuild(ctx, buildCtx, opts)
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}
	defer resp.Body.Close()

	if err := decodeBuildStream(resp.Body, onOutput); err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}
	return nil
}

// decodeBuildStream reads the engine's JSON message stream until EOF,
// returning the first error message the engine reports.
func decodeBuildStream(r io.Reader, onOutput BuildOutputCallback) error {
	decoder := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode build output: %w", err)
		}

		if errMsg := msg.errorMessage(); errMsg != "" {
			return errors.New(errMsg)
		}

		if onOutput == nil {
			continue
		}
		for _, line := range strings.Split(msg.render(), "\n") {
			if line = strings.TrimRight(line, "\r "); line != "" {
				onOutput(line)
			}
		}
	}
}

type buildMessage struct {
	Stream      string         `json:"stream"`
	Status      string         `json:"status"`
	ID          string         `json:"id"`
	Progress    string         `json:"progress"`
	Error       string         `json:"error"`
	ErrorDetail buildErrDetail `json:"errorDetail"`
	Aux         map[string]any `json:"aux"`
}

type buildErrDetail struct {
	Message string `json:"message"`
}

func (m buildMessage) errorMessage() string {
	if s := strings.TrimSpace(m.Error); s != "" {
		return s
	}
	return strings.TrimSpace(m.ErrorDetail.Message)
}

func (m buildMessage) render() string {
	if m.Stream != "" {
		return m.Stream
	}
	if m.Status != "" {
		parts := make([]string, 0, 3)
		if id := strings.TrimSpace(m.ID); id != "" {
			parts = append(parts, id)
		}
		parts = append(parts, strings.TrimSpace(m.Status))
		if p := strings.TrimSpace(m.Progress); p != "" {
			parts = append(parts, p)
		}
		return strings.Join(parts, " ")
	}
	if id, ok := m.Aux["ID"]; ok {
		return fmt.Sprintf("image id: %v", id)
	}
	return ""
}
