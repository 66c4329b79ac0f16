package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExposeFromPorts(t *testing.T) {
	tests := []struct {
		name     string
		ports    []any
		expected []string
	}{
		{"published and container only", []any{"8080:80", "9090"}, []string{"80", "9090"}},
		{"host ip", []any{"127.0.0.1:8080:80"}, []string{"80"}},
		{"udp kept", []any{"5353:53/udp"}, []string{"53/udp"}},
		{"tcp suffix dropped", []any{"443:443/tcp"}, []string{"443"}},
		{"integer", []any{3000}, []string{"3000"}},
		{"range expands", []any{"7000-7001:8000-8001"}, []string{"8000", "8001"}},
		{"long form", []any{map[string]any{"target": 80, "published": "8080", "protocol": "tcp"}}, []string{"80"}},
		{"long form udp", []any{map[string]any{"target": "53", "protocol": "udp"}}, []string{"53/udp"}},
		{"templated host port", []any{"${WEB_PORT:-8080}:80"}, []string{"80"}},
		{"duplicates removed", []any{"80:80", "8080:80"}, []string{"80"}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExposeFromPorts(tt.ports)
			if len(tt.expected) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRewritePorts_MergesExistingExpose(t *testing.T) {
	svc := map[string]any{
		"expose": []any{3000, "80"},
		"ports":  []any{"8080:80", "9090"},
	}
	rewritePorts(svc)

	assert.NotContains(t, svc, "ports")
	assert.Equal(t, []any{"3000", "80", "9090"}, svc["expose"])
}

func TestRewritePorts_NothingToExpose(t *testing.T) {
	svc := map[string]any{"image": "worker"}
	rewritePorts(svc)
	assert.NotContains(t, svc, "expose")
}

func TestFirstPortNumber(t *testing.T) {
	assert.Equal(t, "80", firstPortNumber("80"))
	assert.Equal(t, "53", firstPortNumber("53/udp"))
	assert.Equal(t, "8000", firstPortNumber("8000-8010"))
}
