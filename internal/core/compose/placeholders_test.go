package compose

import (
	"testing"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	values := Placeholders("myapp", testSettings(), "")

	tests := []struct {
		input    string
		expected string
	}{
		{"/data/${PUID}/x", "/data/1000/x"},
		{"${REF_DOMAIN}", "myapp-example.com"},
		{"${APP_ID}-${AppID}", "myapp-myapp"},
		{"${REF_SCHEME}://${REF_DOMAIN}:${REF_PORT}", "https://myapp-example.com:443"},
		{"${PGID:-0}", "1000"},
		{"${UNKNOWN}", "${UNKNOWN}"},
		{"${UNKNOWN:-fallback}", "${UNKNOWN:-fallback}"},
		{"$PUID", "$PUID"},
		{"/DATA/$${PUID}/x", "/DATA/$${PUID}/x"},
		{"$$$${PUID}", "$$$${PUID}"},
		{"$$${PUID}", "$$1000"},
		{"$${PUID}-${PGID}", "$${PUID}-1000"},
		{"no placeholders", "no placeholders"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.input, values))
		})
	}
}

func TestRefDomain(t *testing.T) {
	s := testSettings()
	assert.Equal(t, "myapp-example.com", RefDomain("myapp", s, ""))
	assert.Equal(t, "myapp-example.com", RefDomain("myapp", s, "80"))
	assert.Equal(t, "myapp-example.com", RefDomain("myapp", s, "443"))
	assert.Equal(t, "myapp-example.com:8080", RefDomain("myapp", s, "8080"))

	s.RefSeparator = "."
	assert.Equal(t, "myapp.example.com", RefDomain("myapp", s, ""))

	assert.Equal(t, "myapp", RefDomain("myapp", domain.Settings{}, ""))
}

func TestSubstituteValue_NestedAndNonStrings(t *testing.T) {
	values := map[string]string{"PUID": "1000"}
	in := map[string]any{
		"a": "${PUID}",
		"b": []any{"x-${PUID}", 7, true},
		"c": nil,
	}
	out := substituteValue(in, values).(map[string]any)

	assert.Equal(t, "1000", out["a"])
	assert.Equal(t, []any{"x-1000", 7, true}, out["b"])
	assert.Nil(t, out["c"])
}
