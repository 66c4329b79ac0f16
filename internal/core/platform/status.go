package platform

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// =============================================================================
// Status Response Shapes
// =============================================================================

// Shape identifies which known response layout a status body matched.
type Shape string

const (
	// ShapeNone means the body carried no usable data (empty, HTML, not
	// JSON, or an error object).
	ShapeNone Shape = "none"

	// ShapeArray is a bare array of app objects or id strings.
	ShapeArray Shape = "array"

	// ShapeWrapped is an object holding an "apps" or "installed" array.
	ShapeWrapped Shape = "wrapped"

	// ShapeKeyed is an object whose own keys are app ids.
	ShapeKeyed Shape = "keyed"
)

// AppState is what the platform reports about one installed app.
type AppState struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// HasStatus reports whether the platform included a status field.
func (s AppState) HasStatus() bool {
	return s.Status != ""
}

// Running reports whether the status names a running state.
func (s AppState) Running() bool {
	status := strings.ToLower(strings.TrimSpace(s.Status))
	switch status {
	case "running", "healthy", "started", "ok":
		return true
	}
	return strings.HasPrefix(status, "up")
}

// Snapshot is a decoded status response.
type Snapshot struct {
	Shape Shape
	Apps  map[string]AppState
}

// HasData reports whether the body matched a known shape.
func (s Snapshot) HasData() bool {
	return s.Shape != ShapeNone
}

// Get returns the state for an app id.
func (s Snapshot) Get(appID string) (AppState, bool) {
	st, ok := s.Apps[appID]
	return st, ok
}

// IDs returns the installed app ids, sorted.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Apps))
	for id := range s.Apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// Decoding
// =============================================================================

// decoder is the typed extractor for one shape.
type decoder func(raw any) (Snapshot, bool)

// decoders are tried in priority order; the first match wins.
var decoders = []decoder{
	decodeArray,
	decodeWrapped,
	decodeKeyed,
}

// DecodeStatus decodes a platform status body. It never fails: anything that
// matches no known shape yields a ShapeNone snapshot.
func DecodeStatus(body []byte) Snapshot {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || looksLikeHTML(trimmed) {
		return noData()
	}

	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return noData()
	}
	raw = unwrapEnvelope(raw)

	for _, decode := range decoders {
		if snap, ok := decode(raw); ok {
			return snap
		}
	}
	return noData()
}

func noData() Snapshot {
	return Snapshot{Shape: ShapeNone, Apps: map[string]AppState{}}
}

// looksLikeHTML catches error pages from the platform's web server.
func looksLikeHTML(body []byte) bool {
	return body[0] == '<'
}

// unwrapEnvelope strips the {"message": ..., "data": ...} wrapper the
// platform puts around most responses.
func unwrapEnvelope(raw any) any {
	obj, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	data, hasData := obj["data"]
	if !hasData {
		return raw
	}
	_, hasMessage := obj["message"]
	_, hasSuccess := obj["success"]
	_, hasCode := obj["code"]
	if !hasMessage && !hasSuccess && !hasCode && len(obj) != 1 {
		return raw
	}
	return data
}

func decodeArray(raw any) (Snapshot, bool) {
	items, ok := raw.([]any)
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Shape: ShapeArray, Apps: appsFromList(items)}, true
}

func decodeWrapped(raw any) (Snapshot, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Snapshot{}, false
	}
	for _, key := range []string{"apps", "installed"} {
		if items, ok := obj[key].([]any); ok {
			return Snapshot{Shape: ShapeWrapped, Apps: appsFromList(items)}, true
		}
	}
	return Snapshot{}, false
}

// decodeKeyed accepts an object only when every value is itself an object,
// which keeps error bodies like {"message": "unauthorized"} out.
func decodeKeyed(raw any) (Snapshot, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Snapshot{}, false
	}
	apps := make(map[string]AppState, len(obj))
	for id, v := range obj {
		entry, ok := v.(map[string]any)
		if !ok {
			return Snapshot{}, false
		}
		apps[id] = AppState{ID: id, Status: statusOf(entry)}
	}
	return Snapshot{Shape: ShapeKeyed, Apps: apps}, true
}

func appsFromList(items []any) map[string]AppState {
	apps := make(map[string]AppState, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if v != "" {
				apps[v] = AppState{ID: v}
			}
		case map[string]any:
			if id := idOf(v); id != "" {
				apps[id] = AppState{ID: id, Status: statusOf(v)}
			}
		}
	}
	return apps
}

// idFields are checked in order for an app object's identity.
var idFields = []string{"id", "app_id", "appid", "store_app_id", "name"}

func idOf(obj map[string]any) string {
	for _, key := range idFields {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	if info, ok := obj["store_info"].(map[string]any); ok {
		if s, ok := info["store_app_id"].(string); ok {
			return s
		}
	}
	return ""
}

func statusOf(obj map[string]any) string {
	for _, key := range []string{"status", "state"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
