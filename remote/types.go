package remote

// SiteInfo is the normalized /status payload.
type SiteInfo struct {
	WordPressVersion string         `json:"wordpress_version"`
	PHPVersion       string         `json:"php_version"`
	PluginsCount     int            `json:"plugins_count"`
	ThemesCount      int            `json:"themes_count"`
	SiteName         string         `json:"site_name,omitempty"`
	SiteURL          string         `json:"site_url,omitempty"`
	PluginVersion    string         `json:"plugin_version,omitempty"`
	Namespace        string         `json:"namespace"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Plugin is the canonical plugin shape. File is the plugin basename
// ("akismet/akismet.php") when the remote reports one.
type Plugin struct {
	File            string `json:"file,omitempty"`
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	Active          bool   `json:"active"`
	UpdateAvailable bool   `json:"update_available"`
	NewVersion      string `json:"new_version,omitempty"`
}

// Identifier is the value passed back to the remote update endpoint.
func (p Plugin) Identifier() string {
	return firstNonEmpty(p.File, p.Slug, p.Name)
}

// Theme is the canonical theme shape keyed by stylesheet.
type Theme struct {
	Stylesheet      string `json:"stylesheet"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	Active          bool   `json:"active"`
	UpdateAvailable bool   `json:"update_available"`
	NewVersion      string `json:"new_version,omitempty"`
}

// User is the canonical WordPress user shape.
type User struct {
	ID         int64    `json:"id"`
	Login      string   `json:"login"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	Registered string   `json:"registered,omitempty"`
}

type CoreUpdate struct {
	CurrentVersion string `json:"current_version"`
	NewVersion     string `json:"new_version"`
}

type PluginUpdate struct {
	Plugin         string `json:"plugin"`
	Slug           string `json:"slug,omitempty"`
	Name           string `json:"name"`
	CurrentVersion string `json:"current_version"`
	NewVersion     string `json:"new_version"`
}

type ThemeUpdate struct {
	Theme          string `json:"theme"`
	Name           string `json:"name"`
	CurrentVersion string `json:"current_version"`
	NewVersion     string `json:"new_version"`
}

// Updates lists pending updates. WordPress is nil when core is current.
type Updates struct {
	WordPress *CoreUpdate    `json:"wordpress"`
	Plugins   []PluginUpdate `json:"plugins"`
	Themes    []ThemeUpdate  `json:"themes"`
}

// Total counts every pending update.
func (u *Updates) Total() int {
	n := len(u.Plugins) + len(u.Themes)
	if u.WordPress != nil {
		n++
	}
	return n
}

// HasPlugin reports whether an update is still pending for the identifier,
// matched against the plugin path, slug, or name.
func (u *Updates) HasPlugin(id string) bool {
	for _, p := range u.Plugins {
		if matchesIdentifier(id, p.Plugin, p.Slug, p.Name) {
			return true
		}
	}
	return false
}

func (u *Updates) HasTheme(id string) bool {
	for _, t := range u.Themes {
		if matchesIdentifier(id, t.Theme, t.Name) {
			return true
		}
	}
	return false
}

// KeyStatus is the result of a pre-flight key check.
type KeyStatus string

const (
	KeyValid         KeyStatus = "valid"
	KeyInvalid       KeyStatus = "invalid_key"
	KeyPluginMissing KeyStatus = "plugin_missing"
)

// MutationResult is the remote's answer to a single-item mutation.
type MutationResult struct {
	Message    string `json:"message,omitempty"`
	NewVersion string `json:"new_version,omitempty"`
	Namespace  string `json:"namespace"`
}
