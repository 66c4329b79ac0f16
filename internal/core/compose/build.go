package compose

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// =============================================================================
// Build Targets
// =============================================================================

// BuildTarget is a service whose image is built from the source tree.
type BuildTarget struct {
	Service    string
	Context    string // relative to the repository root, slash separated
	Dockerfile string // relative to Context
	Target     string
	Args       map[string]*string
	Image      string
}

// BuildTargets lists services that declare a build section, in document
// order. The image tag is the service's image when set, otherwise
// "<appid>-<service>:latest".
func BuildTargets(d *Descriptor) ([]BuildTarget, error) {
	var targets []BuildTarget
	for _, name := range d.order {
		svc := d.Service(name)
		raw, ok := svc["build"]
		if !ok {
			continue
		}

		target := BuildTarget{Service: name, Context: ".", Dockerfile: "Dockerfile"}
		switch b := raw.(type) {
		case string:
			target.Context = b
		case map[string]any:
			if c := scalarString(b["context"]); c != "" {
				target.Context = c
			}
			if f := scalarString(b["dockerfile"]); f != "" {
				target.Dockerfile = f
			}
			target.Target = scalarString(b["target"])
			target.Args = buildArgs(b["args"])
		default:
			return nil, NewParseError("services."+name+".build", "build must be a string or mapping", ErrInvalidBuild)
		}

		cleaned := path.Clean(target.Context)
		if strings.Contains(target.Context, "://") || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return nil, NewParseError("services."+name+".build", fmt.Sprintf("context %q must stay inside the repository", target.Context), ErrInvalidBuild)
		}
		target.Context = cleaned

		target.Image = scalarString(svc["image"])
		if target.Image == "" {
			target.Image = fmt.Sprintf("%s-%s:latest", d.AppID(), name)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func buildArgs(v any) map[string]*string {
	args := map[string]*string{}
	switch a := v.(type) {
	case map[string]any:
		for k, val := range a {
			if val == nil {
				args[k] = nil
				continue
			}
			s := scalarString(val)
			args[k] = &s
		}
	case []any:
		for _, item := range a {
			k, val, found := strings.Cut(scalarString(item), "=")
			if !found {
				args[k] = nil
				continue
			}
			args[k] = &val
		}
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// ApplyBuiltImages points built services at their local images and removes
// their build sections so the platform never rebuilds them.
func ApplyBuiltImages(d *Descriptor, targets []BuildTarget) {
	for _, t := range targets {
		svc := d.Service(t.Service)
		if svc == nil {
			continue
		}
		svc["image"] = t.Image
		delete(svc, "build")
	}
}

// Images returns the distinct images referenced by services, sorted.
func (d *Descriptor) Images() []string {
	seen := map[string]bool{}
	for _, name := range d.order {
		if img := scalarString(d.Service(name)["image"]); img != "" {
			seen[img] = true
		}
	}
	out := make([]string, 0, len(seen))
	for img := range seen {
		out = append(out, img)
	}
	sort.Strings(out)
	return out
}
