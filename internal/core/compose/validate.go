package compose

import (
	"context"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
)

// =============================================================================
// Schema Validation
// =============================================================================

// Validate checks a descriptor against the compose schema using compose-go.
// Interpolation, env_file resolution and extends are skipped: the platform
// resolves them at install time and the files may not exist here.
func Validate(ctx context.Context, d *Descriptor) error {
	content, err := d.Marshal()
	if err != nil {
		return NewParseError("", err.Error(), ErrInvalidYAML)
	}

	projectName := d.AppID()
	if projectName == "" {
		return NewParseError("name", "application id is required", ErrMissingAppID)
	}

	_, err = loader.LoadWithContext(ctx, types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "docker-compose.yml",
				Content:  content,
				Config:   deepCopy(d.doc).(map[string]any),
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(projectName, true)
		opts.SkipInterpolation = true
		opts.SkipResolveEnvironment = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "dependency cycle detected") {
			return NewParseError("depends_on", msg, ErrSchema)
		}
		return NewParseError("", msg, ErrSchema)
	}
	return nil
}
