package compose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Port Rewrite
// =============================================================================

// ExposeFromPorts converts a compose ports list into container-side expose
// entries. Host bindings are dropped. Entries keep a "/proto" suffix only
// when the protocol is not tcp.
//
// Example:
//
//	ExposeFromPorts([]any{"8080:80", "9090"})
//	// Returns: ["80", "9090"]
func ExposeFromPorts(ports []any) []string {
	var out []string
	for _, p := range ports {
		out = append(out, containerPorts(p)...)
	}
	return dedupe(out)
}

func containerPorts(entry any) []string {
	switch p := entry.(type) {
	case int:
		return []string{strconv.Itoa(p)}
	case string:
		return containerPortsFromString(p)
	case map[string]any:
		target := scalarString(p["target"])
		if target == "" {
			return nil
		}
		proto, _ := p["protocol"].(string)
		return []string{exposeEntry(target, proto)}
	default:
		return nil
	}
}

func containerPortsFromString(spec string) []string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}

	if !strings.Contains(spec, "${") {
		if mappings, err := nat.ParsePortSpec(spec); err == nil {
			out := make([]string, 0, len(mappings))
			for _, m := range mappings {
				out = append(out, exposeEntry(m.Port.Port(), m.Port.Proto()))
			}
			return out
		}
	}

	// Unparseable or still templated: the container side is the last
	// segment outside any ${...}.
	parts := splitOutsideBraces(spec, ':')
	last := parts[len(parts)-1]
	port, proto, _ := strings.Cut(last, "/")
	return []string{exposeEntry(port, proto)}
}

func exposeEntry(port, proto string) string {
	proto = strings.ToLower(strings.TrimSpace(proto))
	if proto == "" || proto == "tcp" {
		return port
	}
	return port + "/" + proto
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// firstPortNumber strips the protocol from an expose entry and, for ranges,
// keeps the first port.
func firstPortNumber(entry string) string {
	port, _, _ := strings.Cut(entry, "/")
	port, _, _ = strings.Cut(port, "-")
	return port
}

// =============================================================================
// Scalar Helpers
// =============================================================================

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func toStringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := scalarString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
