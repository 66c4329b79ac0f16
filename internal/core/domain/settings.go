package domain

// =============================================================================
// Global Settings
// =============================================================================

const (
	DefaultConcurrencyLimit = 1
	DefaultPUID             = "1000"
	DefaultPGID             = "1000"
	DefaultRefScheme        = "http"
	DefaultRefSeparator     = "-"
)

// Settings holds values shared by every deployment. A snapshot is read for
// each normalization and each scheduler dispatch.
type Settings struct {
	ConcurrencyLimit int    `json:"concurrency_limit"`
	PUID             string `json:"puid"`
	PGID             string `json:"pgid"`
	RefDomain        string `json:"ref_domain"`
	RefScheme        string `json:"ref_scheme"`
	RefPort          string `json:"ref_port"`
	RefSeparator     string `json:"ref_separator"`
}

// DefaultSettings returns the values used when nothing has been persisted.
func DefaultSettings() Settings {
	return Settings{
		ConcurrencyLimit: DefaultConcurrencyLimit,
		PUID:             DefaultPUID,
		PGID:             DefaultPGID,
		RefScheme:        DefaultRefScheme,
		RefSeparator:     DefaultRefSeparator,
	}
}

// Normalize fills zero values with defaults.
func (s Settings) Normalize() Settings {
	if s.ConcurrencyLimit < 1 {
		s.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if s.PUID == "" {
		s.PUID = DefaultPUID
	}
	if s.PGID == "" {
		s.PGID = DefaultPGID
	}
	if s.RefScheme == "" {
		s.RefScheme = DefaultRefScheme
	}
	if s.RefSeparator == "" {
		s.RefSeparator = DefaultRefSeparator
	}
	return s
}

// Scheme returns the reference scheme, defaulting to http.
func (s Settings) Scheme() string {
	if s.RefScheme == "" {
		return DefaultRefScheme
	}
	return s.RefScheme
}

// Port returns the reference port, derived from the scheme when unset.
func (s Settings) Port() string {
	if s.RefPort != "" {
		return s.RefPort
	}
	if s.Scheme() == "https" {
		return "443"
	}
	return "80"
}

// User returns the "uid:gid" runtime user.
func (s Settings) User() string {
	s = s.Normalize()
	return s.PUID + ":" + s.PGID
}
