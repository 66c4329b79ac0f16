package compose

import (
	"fmt"
	"path"
	"strings"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Normalization
// =============================================================================

// Normalized is the output of Normalize.
type Normalized struct {
	AppID       string
	MainService string

	// Rich keeps every directive and is written to the platform's metadata path.
	Rich *Descriptor

	// Clean has the install-time directive removed.
	Clean *Descriptor
}

// Normalize rewrites a descriptor into the shape the platform installs.
// The input is not modified. Applying Normalize to Rich again with the same
// settings yields an identical Rich descriptor.
//
// Rules, in order:
//  1. a top-level name (the application id) is required
//  2. the main service is the x-casaos main pointer, else the first service
//  3. APP_ID is injected into every service's environment
//  4. ports become container-side expose entries; ports is removed
//  5. known placeholders are substituted in environment, volumes, command,
//     entrypoint, working_dir and labels
//  6. relative bind sources move under the app data directory; home-relative
//     sources and paths escaping that directory are rejected
//  7. the main service gets hostname, user and icon
//  8. x-casaos is completed with is_uncontrolled, store_app_id, main and,
//     when a reference domain is set, hostname, scheme and port_map
//  9. the clean variant drops the pre-install directive
func Normalize(d *Descriptor, settings domain.Settings) (*Normalized, error) {
	settings = settings.Normalize()
	rich := d.Clone()

	appID := rich.AppID()
	if appID == "" {
		return nil, NewParseError("name", "application id is required", ErrMissingAppID)
	}

	main := rich.MainService()
	meta := rich.ensureMetadata()
	values := Placeholders(appID, settings, metaString(meta, MetaWebUIPort))

	for _, name := range rich.order {
		svc := rich.Service(name)
		injectAppID(svc, appID)
		rewritePorts(svc)
		substituteService(svc, values)
		if err := resolveBindSources(svc, AppDataDir(appID)); err != nil {
			return nil, NewParseError("services."+name+".volumes", err.Error(), ErrBindSource)
		}
	}

	enrichMainService(rich, main, settings)
	completeMetadata(rich, appID, main, settings)

	clean := rich.Clone()
	delete(clean.ensureMetadata(), MetaPreInstall)

	return &Normalized{
		AppID:       appID,
		MainService: main,
		Rich:        rich,
		Clean:       clean,
	}, nil
}

// injectAppID sets APP_ID in list or mapping environments.
func injectAppID(svc map[string]any, appID string) {
	switch env := svc["environment"].(type) {
	case map[string]any:
		env[AppIDEnv] = appID
	case []any:
		prefix := AppIDEnv + "="
		for i, item := range env {
			if s, ok := item.(string); ok && (s == AppIDEnv || strings.HasPrefix(s, prefix)) {
				env[i] = prefix + appID
				return
			}
		}
		svc["environment"] = append(env, prefix+appID)
	default:
		svc["environment"] = map[string]any{AppIDEnv: appID}
	}
}

// rewritePorts merges published ports into expose and removes ports.
func rewritePorts(svc map[string]any) {
	existing := toStringList(svc["expose"])
	ports, _ := svc["ports"].([]any)
	merged := dedupe(append(existing, ExposeFromPorts(ports)...))
	delete(svc, "ports")

	if len(merged) == 0 {
		delete(svc, "expose")
		return
	}
	expose := make([]any, len(merged))
	for i, p := range merged {
		expose[i] = p
	}
	svc["expose"] = expose
}

// substituteService applies placeholder substitution to the fields the
// platform resolves at install time.
func substituteService(svc map[string]any, values map[string]string) {
	for _, key := range []string{"environment", "command", "entrypoint", "working_dir", "labels"} {
		if v, ok := svc[key]; ok {
			svc[key] = substituteValue(v, values)
		}
	}

	volumes, _ := svc["volumes"].([]any)
	for i, v := range volumes {
		switch vol := v.(type) {
		case string:
			volumes[i] = Substitute(vol, values)
		case map[string]any:
			if src, ok := vol["source"].(string); ok {
				vol["source"] = Substitute(src, values)
			}
		}
	}
}

// =============================================================================
// Bind Sources
// =============================================================================

// AppDataRoot is the host directory holding per-app persistent data.
const AppDataRoot = "/DATA/AppData"

// AppDataDir returns the directory relative bind sources resolve against.
// Pattern: /DATA/AppData/{appID}
func AppDataDir(appID string) string {
	return path.Join(AppDataRoot, appID)
}

// resolveBindSources rewrites relative bind sources to absolute paths under
// dataDir. Compose would otherwise resolve them against the metadata
// directory, which is replaced on every deployment.
func resolveBindSources(svc map[string]any, dataDir string) error {
	volumes, _ := svc["volumes"].([]any)
	for i, v := range volumes {
		switch vol := v.(type) {
		case string:
			parts := splitOutsideBraces(vol, ':')
			if len(parts) < 2 || !isRelativeSource(parts[0]) {
				continue
			}
			src, err := resolveSource(parts[0], dataDir)
			if err != nil {
				return err
			}
			parts[0] = src
			volumes[i] = strings.Join(parts, ":")
		case map[string]any:
			src, _ := vol["source"].(string)
			typ, _ := vol["type"].(string)
			if src == "" || strings.HasPrefix(src, "/") {
				continue
			}
			if typ != "bind" && !(typ == "" && isRelativeSource(src)) {
				continue
			}
			resolved, err := resolveSource(src, dataDir)
			if err != nil {
				return err
			}
			vol["source"] = resolved
		}
	}
	return nil
}

// isRelativeSource reports whether a short-syntax source is a host path
// rather than a named volume.
func isRelativeSource(src string) bool {
	return src == "." || src == ".." || src == "~" ||
		strings.HasPrefix(src, "./") || strings.HasPrefix(src, "../") || strings.HasPrefix(src, "~/")
}

func resolveSource(src, dataDir string) (string, error) {
	if strings.HasPrefix(src, "~") {
		return "", fmt.Errorf("home-relative source %q is not supported, use an absolute path", src)
	}
	resolved := path.Join(dataDir, src)
	if resolved != dataDir && !strings.HasPrefix(resolved, dataDir+"/") {
		return "", fmt.Errorf("source %q escapes %s", src, dataDir)
	}
	return resolved, nil
}

func enrichMainService(d *Descriptor, main string, settings domain.Settings) {
	svc := d.Service(main)
	if svc == nil {
		return
	}
	svc["hostname"] = d.AppID()
	svc["user"] = settings.User()

	meta := d.ensureMetadata()
	icon := metaString(meta, MetaIcon)
	if icon == "" {
		icon = labelValue(svc, IconLabel)
	}
	if icon == "" {
		return
	}
	meta[MetaIcon] = icon
	setLabel(svc, IconLabel, icon)
}

func completeMetadata(d *Descriptor, appID, main string, settings domain.Settings) {
	meta := d.ensureMetadata()
	meta[MetaIsUncontrolled] = false
	meta[MetaStoreAppID] = appID
	meta[MetaMain] = main

	if settings.RefDomain == "" {
		return
	}
	exposed := d.ExposedPorts(main)
	if len(exposed) == 0 {
		return
	}
	sep := settings.RefSeparator
	meta[MetaHostname] = firstPortNumber(exposed[0]) + sep + appID + sep + settings.RefDomain
	meta[MetaScheme] = settings.Scheme()
	meta[MetaPortMap] = settings.Port()
}

// =============================================================================
// Label Helpers
// =============================================================================

func labelValue(svc map[string]any, key string) string {
	switch labels := svc["labels"].(type) {
	case map[string]any:
		return scalarString(labels[key])
	case []any:
		prefix := key + "="
		for _, item := range labels {
			if s, ok := item.(string); ok && strings.HasPrefix(s, prefix) {
				return strings.TrimPrefix(s, prefix)
			}
		}
	}
	return ""
}

func setLabel(svc map[string]any, key, value string) {
	switch labels := svc["labels"].(type) {
	case map[string]any:
		labels[key] = value
	case []any:
		prefix := key + "="
		for i, item := range labels {
			if s, ok := item.(string); ok && strings.HasPrefix(s, prefix) {
				labels[i] = prefix + value
				return
			}
		}
		svc["labels"] = append(labels, prefix+value)
	default:
		svc["labels"] = map[string]any{key: value}
	}
}
