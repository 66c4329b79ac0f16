package compose

import (
	"context"
	"testing"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{"empty", "   \n", ErrEmptyInput},
		{"invalid yaml", "services: [", ErrInvalidYAML},
		{"scalar document", "just text", ErrInvalidYAML},
		{"no services", "name: myapp\n", ErrNoServices},
		{"empty services", "name: myapp\nservices: {}\n", ErrNoServices},
		{"service not mapping", "name: myapp\nservices:\n  web: nginx\n", ErrInvalidService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestParse_ServiceOrder(t *testing.T) {
	d, err := Parse("name: x\nservices:\n  zeta:\n    image: z\n  alpha:\n    image: a\n  mid:\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, d.ServiceNames())
	assert.Equal(t, "zeta", d.MainService())
	assert.NotNil(t, d.Service("mid"))
}

func TestDescriptor_Clone(t *testing.T) {
	d, err := Parse(appDescriptor)
	require.NoError(t, err)

	c := d.Clone()
	c.Service("web")["image"] = "changed"
	c.Metadata()["title"].(map[string]any)["en_us"] = "changed"

	assert.Equal(t, "nginx:1.25", d.Service("web")["image"])
	assert.Equal(t, "My App", d.Metadata()["title"].(map[string]any)["en_us"])
}

func TestDescriptor_HostPaths(t *testing.T) {
	content := `
name: myapp
services:
  web:
    image: nginx
    volumes:
      - /DATA/AppData/myapp/config:/config
      - /DATA/AppData/myapp/config:/config2:ro
      - data:/data
      - ./relative:/rel
      - type: bind
        source: /DATA/Media
        target: /media
      - type: volume
        source: named
        target: /named
  worker:
    image: worker
    volumes:
      - /DATA/AppData/myapp/jobs:/jobs
`
	d, err := Parse(content)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/DATA/AppData/myapp/config",
		"/DATA/AppData/myapp/jobs",
		"/DATA/Media",
	}, d.HostPaths())
}

func TestDescriptor_HostPathsUnescapesDollar(t *testing.T) {
	d, err := Parse("name: myapp\nservices:\n  web:\n    volumes:\n      - /DATA/$${PUID}/x:/y\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"/DATA/${PUID}/x"}, d.HostPaths())
}

func TestDescriptor_MarshalRoundTrip(t *testing.T) {
	d, err := Parse(appDescriptor)
	require.NoError(t, err)

	data, err := d.Marshal()
	require.NoError(t, err)

	again, err := Parse(string(data))
	require.NoError(t, err)
	assert.Equal(t, "myapp", again.AppID())
	assert.ElementsMatch(t, d.ServiceNames(), again.ServiceNames())
}

func TestSplitOutsideBraces(t *testing.T) {
	assert.Equal(t, []string{"${A:-/x}", "/y", "ro"}, splitOutsideBraces("${A:-/x}:/y:ro", ':'))
	assert.Equal(t, []string{"plain"}, splitOutsideBraces("plain", ':'))
}

// =============================================================================
// Build Target Tests
// =============================================================================

func TestBuildTargets(t *testing.T) {
	content := `
name: myapp
services:
  api:
    build: ./api
  web:
    image: ghcr.io/me/web:dev
    build:
      context: web
      dockerfile: docker/Dockerfile.prod
      target: runtime
      args:
        - VERSION=1.2
        - EMPTY
  db:
    image: postgres:16
`
	d, err := Parse(content)
	require.NoError(t, err)

	targets, err := BuildTargets(d)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "api", targets[0].Service)
	assert.Equal(t, "api", targets[0].Context)
	assert.Equal(t, "Dockerfile", targets[0].Dockerfile)
	assert.Equal(t, "myapp-api:latest", targets[0].Image)

	assert.Equal(t, "web", targets[1].Context)
	assert.Equal(t, "docker/Dockerfile.prod", targets[1].Dockerfile)
	assert.Equal(t, "runtime", targets[1].Target)
	assert.Equal(t, "ghcr.io/me/web:dev", targets[1].Image)
	require.NotNil(t, targets[1].Args["VERSION"])
	assert.Equal(t, "1.2", *targets[1].Args["VERSION"])
	assert.Nil(t, targets[1].Args["EMPTY"])

	ApplyBuiltImages(d, targets)
	assert.Equal(t, "myapp-api:latest", d.Service("api")["image"])
	assert.NotContains(t, d.Service("api"), "build")
	assert.NotContains(t, d.Service("web"), "build")
	assert.Equal(t, []string{"ghcr.io/me/web:dev", "myapp-api:latest", "postgres:16"}, d.Images())
}

func TestBuildTargets_RejectsEscapingContext(t *testing.T) {
	for _, ctx := range []string{"../other", "/etc", "https://github.com/x/y.git", "a/../../b"} {
		d, err := Parse("name: myapp\nservices:\n  api:\n    build: " + ctx + "\n")
		require.NoError(t, err)

		_, err = BuildTargets(d)
		assert.ErrorIs(t, err, ErrInvalidBuild, ctx)
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_NormalizedDescriptor(t *testing.T) {
	out := normalizeFixture(t, appDescriptor, testSettings())
	assert.NoError(t, Validate(context.Background(), out.Rich))
}

func TestValidate_RejectsSchemaViolation(t *testing.T) {
	d, err := Parse("name: myapp\nservices:\n  web:\n    image: nginx\n    restart: [always]\n")
	require.NoError(t, err)

	err = Validate(context.Background(), d)
	assert.ErrorIs(t, err, ErrSchema)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
