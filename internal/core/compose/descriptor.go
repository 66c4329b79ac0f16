package compose

import (
	"bytes"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Vendor Metadata Keys
// =============================================================================

const (
	// MetadataKey is the platform's vendor extension block.
	MetadataKey = "x-casaos"

	MetaMain           = "main"
	MetaIcon           = "icon"
	MetaPreInstall     = "pre-install-cmd"
	MetaWebUIPort      = "webui_port"
	MetaIsUncontrolled = "is_uncontrolled"
	MetaStoreAppID     = "store_app_id"
	MetaHostname       = "hostname"
	MetaScheme         = "scheme"
	MetaPortMap        = "port_map"

	// AppIDEnv is injected into every service.
	AppIDEnv = "APP_ID"

	// IconLabel carries the icon on the main service.
	IconLabel = "icon"
)

// =============================================================================
// Descriptor
// =============================================================================

// Descriptor is a parsed compose document. Unknown keys are preserved so the
// platform receives everything the author wrote.
type Descriptor struct {
	doc   map[string]any
	order []string
}

// Parse reads a descriptor and remembers the document order of its services.
func Parse(content string) (*Descriptor, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewParseError("", "descriptor is empty", ErrEmptyInput)
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(content), &root); err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, NewParseError("", "top level must be a mapping", ErrInvalidYAML)
	}

	var doc map[string]any
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	services, ok := doc["services"].(map[string]any)
	if !ok || len(services) == 0 {
		return nil, NewParseError("services", "at least one service is required", ErrNoServices)
	}
	for name, svc := range services {
		switch svc.(type) {
		case map[string]any:
		case nil:
			services[name] = map[string]any{}
		default:
			return nil, NewParseError("services."+name, "service must be a mapping", ErrInvalidService)
		}
	}

	return &Descriptor{doc: doc, order: serviceOrder(root.Content[0])}, nil
}

// serviceOrder returns service names in document order.
func serviceOrder(top *yaml.Node) []string {
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != "services" || top.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		services := top.Content[i+1]
		names := make([]string, 0, len(services.Content)/2)
		for j := 0; j+1 < len(services.Content); j += 2 {
			names = append(names, services.Content[j].Value)
		}
		return names
	}
	return nil
}

// Marshal serializes the descriptor with two-space indentation.
func (d *Descriptor) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	return &Descriptor{
		doc:   deepCopy(d.doc).(map[string]any),
		order: append([]string(nil), d.order...),
	}
}

// AppID returns the top-level name, or "" when absent.
func (d *Descriptor) AppID() string {
	name, _ := d.doc["name"].(string)
	return strings.TrimSpace(name)
}

// ServiceNames returns the declared services in document order.
func (d *Descriptor) ServiceNames() []string {
	return append([]string(nil), d.order...)
}

// Service returns the named service definition, or nil.
func (d *Descriptor) Service(name string) map[string]any {
	services, _ := d.doc["services"].(map[string]any)
	svc, _ := services[name].(map[string]any)
	return svc
}

// Metadata returns the vendor metadata block, or nil.
func (d *Descriptor) Metadata() map[string]any {
	meta, _ := d.doc[MetadataKey].(map[string]any)
	return meta
}

func (d *Descriptor) ensureMetadata() map[string]any {
	meta := d.Metadata()
	if meta == nil {
		meta = map[string]any{}
		d.doc[MetadataKey] = meta
	}
	return meta
}

// MainService returns the explicit metadata pointer when it names a declared
// service, otherwise the first declared service.
func (d *Descriptor) MainService() string {
	if main := metaString(d.Metadata(), MetaMain); main != "" && d.Service(main) != nil {
		return main
	}
	if len(d.order) == 0 {
		return ""
	}
	return d.order[0]
}

// PreInstallCommand returns the install-time shell directive, if any.
func (d *Descriptor) PreInstallCommand() string {
	return metaString(d.Metadata(), MetaPreInstall)
}

// HostPaths returns the absolute host paths used as bind-mount sources,
// sorted and without duplicates. A $$ escape is returned as the single '$'
// compose passes to the daemon.
func (d *Descriptor) HostPaths() []string {
	seen := map[string]bool{}
	for _, name := range d.order {
		volumes, _ := d.Service(name)["volumes"].([]any)
		for _, v := range volumes {
			if src := bindSource(v); src != "" {
				seen[strings.ReplaceAll(src, "$$", "$")] = true
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// bindSource extracts an absolute host path from a short or long volume entry.
func bindSource(v any) string {
	switch vol := v.(type) {
	case string:
		parts := splitOutsideBraces(vol, ':')
		if len(parts) >= 2 && strings.HasPrefix(parts[0], "/") {
			return parts[0]
		}
	case map[string]any:
		src, _ := vol["source"].(string)
		typ, _ := vol["type"].(string)
		if strings.HasPrefix(src, "/") && (typ == "" || typ == "bind") {
			return src
		}
	}
	return ""
}

// ExposedPorts returns a service's expose entries as strings.
func (d *Descriptor) ExposedPorts(service string) []string {
	return toStringList(d.Service(service)["expose"])
}

// =============================================================================
// Helpers
// =============================================================================

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(scalarString(v))
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}

// splitOutsideBraces splits s on sep, ignoring separators inside ${...}.
func splitOutsideBraces(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '$' && i+1 < len(s) && s[i+1] == '{':
			depth++
			i++
		case s[i] == '}' && depth > 0:
			depth--
		case s[i] == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
