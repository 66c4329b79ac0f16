package compose

import (
	"regexp"
	"strings"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Placeholder Substitution
// =============================================================================

// Known placeholder names.
const (
	PlaceholderPUID      = "PUID"
	PlaceholderPGID      = "PGID"
	PlaceholderAppID     = "APP_ID"
	PlaceholderAppIDAlt  = "AppID"
	PlaceholderRefDomain = "REF_DOMAIN"
	PlaceholderRefScheme = "REF_SCHEME"
	PlaceholderRefPort   = "REF_PORT"
)

// placeholderRegex matches ${VAR} plus the compose modifier forms
// ${VAR:-x}, ${VAR-x}, ${VAR:?x}, ${VAR?x}, ${VAR:+x} and ${VAR+x}.
// Group 1 is the variable name.
var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::?[-?+][^}]*)?\}`)

// Placeholders builds the substitution table for one application.
func Placeholders(appID string, settings domain.Settings, uiPort string) map[string]string {
	settings = settings.Normalize()
	return map[string]string{
		PlaceholderPUID:      settings.PUID,
		PlaceholderPGID:      settings.PGID,
		PlaceholderAppID:     appID,
		PlaceholderAppIDAlt:  appID,
		PlaceholderRefDomain: RefDomain(appID, settings, uiPort),
		PlaceholderRefScheme: settings.Scheme(),
		PlaceholderRefPort:   settings.Port(),
	}
}

// RefDomain composes appid + separator + domain. A ":port" suffix is added
// only when the declared UI port is set and is not 80 or 443. Without a
// configured domain the application id alone is returned.
//
// Example:
//
//	RefDomain("myapp", Settings{RefDomain: "example.com", RefSeparator: "-"}, "")
//	// Returns: "myapp-example.com"
func RefDomain(appID string, settings domain.Settings, uiPort string) string {
	settings = settings.Normalize()
	host := appID
	if settings.RefDomain != "" {
		host = appID + settings.RefSeparator + settings.RefDomain
	}
	switch uiPort {
	case "", "80", "443":
		return host
	default:
		return host + ":" + uiPort
	}
}

// Substitute replaces known placeholders. Modifiers on a known name are
// dropped along with it. Unknown placeholders are kept verbatim, and so are
// placeholders escaped as $${VAR}, which compose reads as a literal ${VAR}.
//
// Examples:
//
//	Substitute("/data/${PUID}/x", map[string]string{"PUID": "1000"})
//	// Returns: "/data/1000/x"
//
//	Substitute("${DB_PASSWORD}", map[string]string{"PUID": "1000"})
//	// Returns: "${DB_PASSWORD}"
//
//	Substitute("/data/$${PUID}/x", map[string]string{"PUID": "1000"})
//	// Returns: "/data/$${PUID}/x"
func Substitute(value string, values map[string]string) string {
	matches := placeholderRegex.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		val, ok := values[value[m[2]:m[3]]]
		if !ok || escaped(value, start) {
			continue
		}
		b.WriteString(value[last:start])
		b.WriteString(val)
		last = end
	}
	b.WriteString(value[last:])
	return b.String()
}

// escaped reports whether the '$' at i is preceded by an odd run of '$',
// making it part of a $$ escape.
func escaped(value string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && value[j] == '$'; j-- {
		n++
	}
	return n%2 == 1
}

// substituteValue applies Substitute to strings and to strings inside lists
// and mappings. Other scalars are returned unchanged.
func substituteValue(v any, values map[string]string) any {
	switch val := v.(type) {
	case string:
		return Substitute(val, values)
	case []any:
		for i, item := range val {
			val[i] = substituteValue(item, values)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = substituteValue(item, values)
		}
		return val
	default:
		return v
	}
}
