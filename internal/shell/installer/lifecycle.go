package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/platform"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/docker"
)

// =============================================================================
// Uninstall
// =============================================================================

// Uninstall asks the platform to remove an application and confirms the
// removal by re-querying status. If the platform stays unreachable the
// compose containers and networks are removed directly and the outcome is
// OutcomeDegraded.
func (a *Adapter) Uninstall(ctx context.Context, appID string, preserveData bool) (Outcome, error) {
	logger := a.logger.With("app_id", appID, "op", "uninstall")
	path := fmt.Sprintf(a.cfg.UninstallPath, appID) + fmt.Sprintf("?delete_config_folder=%t", !preserveData)

	err := a.withRetry(ctx, "uninstall", func(ctx context.Context) error {
		_, err := a.request(ctx, "DELETE", path, "")
		return err
	})
	if err == nil {
		gone, confirmErr := a.confirm(ctx, func(s platform.Snapshot) bool {
			_, listed := s.Get(appID)
			return s.HasData() && !listed
		})
		if gone {
			logger.Info("uninstall confirmed")
			return OutcomeVerified, nil
		}
		if confirmErr == nil {
			return OutcomeFailed, fmt.Errorf("%w: %s still listed after uninstall", domain.ErrVerificationMismatch, appID)
		}
		err = confirmErr
	}
	if !errors.Is(err, domain.ErrPlatformUnavailable) {
		return OutcomeFailed, err
	}

	logger.Warn("platform unreachable, removing containers directly", "error", err)
	if cleanErr := a.Cleanup(ctx, appID, preserveData); cleanErr != nil {
		return OutcomeFailed, errors.Join(err, cleanErr)
	}
	return OutcomeDegraded, nil
}

// =============================================================================
// Toggle
// =============================================================================

// Toggle starts or stops an application through the platform and confirms
// the new running state. If the platform stays unreachable the compose
// containers are started or stopped directly and the outcome is
// OutcomeDegraded.
func (a *Adapter) Toggle(ctx context.Context, appID string, start bool) (Outcome, error) {
	logger := a.logger.With("app_id", appID, "op", "toggle", "start", start)
	action := "stop"
	if start {
		action = "start"
	}
	path := fmt.Sprintf(a.cfg.TogglePath, appID)

	err := a.withRetry(ctx, "toggle", func(ctx context.Context) error {
		_, err := a.request(ctx, "PUT", path, `"`+action+`"`)
		return err
	})
	if err == nil {
		ok, confirmErr := a.confirm(ctx, func(s platform.Snapshot) bool {
			if _, listed := s.Get(appID); !listed {
				return false
			}
			return a.statusFrom(ctx, s, appID).Running == start
		})
		if ok {
			logger.Info("toggle confirmed")
			return OutcomeVerified, nil
		}
		if confirmErr == nil {
			return OutcomeFailed, fmt.Errorf("%w: %s did not reach state %s", domain.ErrVerificationMismatch, appID, action)
		}
		err = confirmErr
	}
	if !errors.Is(err, domain.ErrPlatformUnavailable) {
		return OutcomeFailed, err
	}

	logger.Warn("platform unreachable, toggling containers directly", "error", err)
	if toggleErr := a.toggleContainers(ctx, appID, start); toggleErr != nil {
		return OutcomeFailed, errors.Join(err, toggleErr)
	}
	return OutcomeDegraded, nil
}

func (a *Adapter) toggleContainers(ctx context.Context, appID string, start bool) error {
	containers, err := a.appContainers(ctx, appID)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return fmt.Errorf("%w: no containers found for %s", domain.ErrExternalTool, appID)
	}

	var errs []error
	for _, c := range containers {
		var opErr error
		if start {
			opErr = a.docker.StartContainer(ctx, c.ID)
			if errors.Is(opErr, docker.ErrContainerAlreadyRunning) {
				opErr = nil
			}
		} else {
			timeout := a.cfg.StopTimeout
			opErr = a.docker.StopContainer(ctx, c.ID, &timeout)
			if errors.Is(opErr, docker.ErrContainerNotRunning) {
				opErr = nil
			}
		}
		if opErr != nil {
			errs = append(errs, opErr)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Cleanup
// =============================================================================

// Cleanup stops and removes every container and network belonging to the
// application. Volumes are kept when preserveData is set. Missing resources
// are not errors.
func (a *Adapter) Cleanup(ctx context.Context, appID string, preserveData bool) error {
	var errs []error

	containers, err := a.appContainers(ctx, appID)
	if err != nil {
		errs = append(errs, err)
	}
	for _, c := range containers {
		if c.Running() {
			timeout := a.cfg.StopTimeout
			if err := a.docker.StopContainer(ctx, c.ID, &timeout); err != nil &&
				!errors.Is(err, docker.ErrContainerNotFound) && !errors.Is(err, docker.ErrContainerNotRunning) {
				a.logger.Warn("stop container failed", "app_id", appID, "container", c.Name, "error", err)
			}
		}
		err := a.docker.RemoveContainer(ctx, c.ID, docker.RemoveOptions{Force: true, RemoveVolumes: !preserveData})
		if err != nil && !errors.Is(err, docker.ErrContainerNotFound) {
			errs = append(errs, err)
		}
	}

	networks, err := a.docker.ListNetworks(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, n := range networks {
		if !platform.NetworkBelongsToApp(n.Name, n.Labels, appID) {
			continue
		}
		if err := a.docker.RemoveNetwork(ctx, n.ID); err != nil && !errors.Is(err, docker.ErrNetworkNotFound) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: cleanup of %s: %w", domain.ErrExternalTool, appID, errors.Join(errs...))
	}
	a.logger.Info("cleanup finished", "app_id", appID, "containers", len(containers))
	return nil
}

// =============================================================================
// Pre-install Hook
// =============================================================================

// RunPreInstall runs a shell command inside the platform container, bounded
// by timeout. The container kills the command when timeout expires. Output
// lines go to collector. A non-zero exit wraps domain.ErrExternalTool;
// exceeding the timeout wraps domain.ErrTimeout.
func (a *Adapter) RunPreInstall(ctx context.Context, appID, command string, timeout time.Duration, collector LineCollector) error {
	// The in-container kill fires first; the grace covers reporting it.
	runCtx, cancel := context.WithTimeout(ctx, timeout+a.cfg.KillGrace)
	defer cancel()

	started := time.Now()
	res, err := a.docker.Exec(runCtx, a.cfg.PlatformContainer, docker.ExecSpec{
		Cmd:     []string{"sh", "-c", command},
		Env:     []string{"APP_ID=" + appID},
		Timeout: timeout,
	})
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, docker.ErrTimeout) || errors.Is(runCtx.Err(), context.DeadlineExceeded)) {
			return fmt.Errorf("%w: pre-install command for %s exceeded %s", domain.ErrTimeout, appID, timeout)
		}
		return fmt.Errorf("%w: pre-install command for %s: %v", domain.ErrExternalTool, appID, err)
	}

	emitLines(collector, "stdout", res.Stdout)
	emitLines(collector, "stderr", res.Stderr)

	if killedByTimeout(res.ExitCode) && time.Since(started) >= timeout {
		return fmt.Errorf("%w: pre-install command for %s exceeded %s", domain.ErrTimeout, appID, timeout)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: pre-install command for %s exited with code %d: %s",
			domain.ErrExternalTool, appID, res.ExitCode, lastLine(res.Stderr))
	}
	return nil
}

// killedByTimeout reports exit codes timeout(1) uses for an expired command.
func killedByTimeout(code int) bool {
	return code == 124 || code == 128+9
}

func emitLines(collector LineCollector, stream, out string) {
	if collector == nil {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			collector(stream, line)
		}
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
