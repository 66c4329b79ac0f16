package installer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/platform"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/docker"
)

// =============================================================================
// Platform Requests
// =============================================================================

// curl exit codes that mean the platform could not be reached: could not
// resolve host, connection refused, timed out, empty reply, receive failure.
var unreachableCurlCodes = map[int]bool{6: true, 7: true, 28: true, 52: true, 56: true}

const statusMarker = "\n__STATUS__:"

// request performs an HTTP call from inside the platform container and
// returns the response body. Unreachable platforms and 5xx answers wrap
// domain.ErrPlatformUnavailable; other failures wrap domain.ErrExternalTool.
func (a *Adapter) request(ctx context.Context, method, path string, body string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	url := strings.TrimRight(a.cfg.APIBaseURL, "/") + path
	cmd := []string{
		"curl", "-sS",
		"--max-time", curlSeconds(a.cfg.RequestTimeout),
		"-X", method,
		"-H", "Accept: application/json",
	}
	if a.cfg.AuthToken != "" {
		cmd = append(cmd, "-H", "Authorization: "+a.cfg.AuthToken)
	}
	if body != "" {
		cmd = append(cmd, "-H", "Content-Type: application/json", "--data", body)
	}
	cmd = append(cmd, "-w", statusMarker+"%{http_code}", url)

	res, err := a.docker.Exec(ctx, a.cfg.PlatformContainer, docker.ExecSpec{Cmd: cmd})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrPlatformUnavailable, method, path, err)
	}
	if res.ExitCode != 0 {
		sentinel := domain.ErrExternalTool
		if unreachableCurlCodes[res.ExitCode] {
			sentinel = domain.ErrPlatformUnavailable
		}
		return nil, fmt.Errorf("%w: %s %s: curl exit %d: %s", sentinel, method, path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	payload, code := splitStatus(res.Stdout)
	switch {
	case code == 0 || code >= 500:
		return nil, fmt.Errorf("%w: %s %s: http status %d", domain.ErrPlatformUnavailable, method, path, code)
	case code >= 400:
		return nil, fmt.Errorf("%w: %s %s: http status %d: %s", domain.ErrExternalTool, method, path, code, snippet(payload))
	}
	return []byte(payload), nil
}

// curlSeconds formats d for curl's --max-time, which accepts fractions.
// Anything under a millisecond is raised to one so the limit never reads
// as 0, which curl treats as no limit.
func curlSeconds(d time.Duration) string {
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func splitStatus(out string) (string, int) {
	idx := strings.LastIndex(out, statusMarker)
	if idx < 0 {
		return out, 0
	}
	code, _ := strconv.Atoi(strings.TrimSpace(out[idx+len(statusMarker):]))
	return out[:idx], code
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// =============================================================================
// Status Queries
// =============================================================================

// AppStatus is the installed and running state of one application.
type AppStatus struct {
	Installed bool `json:"installed"`
	Running   bool `json:"running"`
}

// query fetches and decodes the platform status. A reachable platform that
// answers with an unknown shape yields a ShapeNone snapshot and no error.
func (a *Adapter) query(ctx context.Context) (platform.Snapshot, error) {
	body, err := a.request(ctx, "GET", a.cfg.StatusPath, "")
	if err != nil {
		return platform.DecodeStatus(nil), err
	}
	snap := platform.DecodeStatus(body)
	if !snap.HasData() {
		a.logger.Debug("platform status carried no data", "bytes", len(body))
	}
	return snap, nil
}

// Snapshot returns the platform's current status. Failures are logged and
// reported as a snapshot with no data.
func (a *Adapter) Snapshot(ctx context.Context) platform.Snapshot {
	snap, err := a.query(ctx)
	if err != nil {
		a.logger.Warn("platform status unavailable", "error", err)
	}
	return snap
}

// QueryInstalled returns the ids of every application the platform reports.
func (a *Adapter) QueryInstalled(ctx context.Context) []string {
	return a.Snapshot(ctx).IDs()
}

// IsInstalled reports whether the platform lists the application.
func (a *Adapter) IsInstalled(ctx context.Context, appID string) bool {
	_, ok := a.Snapshot(ctx).Get(appID)
	return ok
}

// AppStatus derives an application's state from the platform status. When
// the platform omits a status field, the compose containers decide whether
// the application is running.
func (a *Adapter) AppStatus(ctx context.Context, appID string) AppStatus {
	return a.statusFrom(ctx, a.Snapshot(ctx), appID)
}

func (a *Adapter) statusFrom(ctx context.Context, snap platform.Snapshot, appID string) AppStatus {
	st, ok := snap.Get(appID)
	if ok && st.HasStatus() {
		return AppStatus{Installed: true, Running: st.Running()}
	}
	running, err := a.containersRunning(ctx, appID)
	if err != nil {
		a.logger.Warn("container state unavailable", "app_id", appID, "error", err)
	}
	return AppStatus{Installed: ok, Running: running}
}

func (a *Adapter) appContainers(ctx context.Context, appID string) ([]docker.ContainerInfo, error) {
	all, err := a.docker.ListContainers(ctx, docker.ListOptions{All: true})
	if err != nil {
		return nil, err
	}
	var owned []docker.ContainerInfo
	for _, c := range all {
		if platform.ContainerBelongsToApp(c.Name, c.Labels, appID) {
			owned = append(owned, c)
		}
	}
	return owned, nil
}

func (a *Adapter) containersRunning(ctx context.Context, appID string) (bool, error) {
	containers, err := a.appContainers(ctx, appID)
	if err != nil {
		return false, err
	}
	for _, c := range containers {
		if c.Running() {
			return true, nil
		}
	}
	return false, nil
}

// confirm re-queries the platform until check passes or attempts run out.
// It returns the last query error when the platform never answered.
func (a *Adapter) confirm(ctx context.Context, check func(platform.Snapshot) bool) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < a.cfg.ConfirmAttempts; attempt++ {
		if attempt > 0 {
			if err := a.sleep(ctx, a.cfg.ConfirmInterval); err != nil {
				return false, err
			}
		}
		snap, err := a.query(ctx)
		lastErr = err
		if err == nil && check(snap) {
			return true, nil
		}
	}
	if lastErr != nil && !errors.Is(lastErr, domain.ErrPlatformUnavailable) {
		lastErr = nil
	}
	return false, lastErr
}
