package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// The functions in this file map raw companion-plugin payloads onto the
// canonical shapes. They never perform I/O. Supporting a new plugin variant
// means adding a field alias here, not touching the call sites.

var (
	pluginFileKeys  = []string{"file", "plugin_file", "basename", "path", "_key"}
	nameKeys        = []string{"name", "Name", "title"}
	newVersionKeys  = []string{"new_version", "update_version", "latest_version"}
	listWrapperKeys = []string{"data", "items", "results"}
)

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// NormalizeSiteInfo maps a /status payload. The fields may sit under
// site_info, under data, or at the top level.
func NormalizeSiteInfo(v any) (*SiteInfo, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("status payload is %T, not an object", v)
	}
	info := m
	for _, key := range []string{"site_info", "data"} {
		if nested, ok := m[key].(map[string]any); ok {
			info = nested
			break
		}
	}

	si := &SiteInfo{
		WordPressVersion: str(info, "wordpress_version", "wp_version", "core_version"),
		PHPVersion:       str(info, "php_version", "php"),
		PluginsCount:     count(info, "plugins_count", "plugin_count", "plugins"),
		ThemesCount:      count(info, "themes_count", "theme_count", "themes"),
		SiteName:         str(info, "site_name", "blogname", "name"),
		SiteURL:          str(info, "site_url", "home_url", "url"),
		PluginVersion:    str(info, "plugin_version", "wrms_version", "wrm_version"),
	}

	known := map[string]bool{
		"wordpress_version": true, "wp_version": true, "core_version": true,
		"php_version": true, "php": true,
		"plugins_count": true, "plugin_count": true, "plugins": true,
		"themes_count": true, "theme_count": true, "themes": true,
		"site_name": true, "blogname": true, "name": true,
		"site_url": true, "home_url": true, "url": true,
		"plugin_version": true, "wrms_version": true, "wrm_version": true,
		"success": true, "site_info": true, "data": true,
	}
	for k, val := range info {
		if known[k] {
			continue
		}
		if si.Extra == nil {
			si.Extra = map[string]any{}
		}
		si.Extra[k] = val
	}
	return si, nil
}

// NormalizePlugins maps a plugin listing. Accepts a bare array, an object
// wrapping the array under "plugins", or an object keyed by plugin file.
func NormalizePlugins(v any) []Plugin {
	recs := records(v, "plugins")
	out := make([]Plugin, 0, len(recs))
	for _, r := range recs {
		p := normalizePlugin(r)
		if p.Identifier() == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func normalizePlugin(r map[string]any) Plugin {
	file := str(r, pluginFileKeys...)
	slug := str(r, "slug")
	// "plugin" holds the basename in newer payloads and the bare slug in
	// older ones.
	if pv := str(r, "plugin"); pv != "" {
		if isPluginFile(pv) {
			if file == "" {
				file = pv
			}
		} else if slug == "" {
			slug = pv
		}
	}
	if slug == "" {
		slug = slugOf(file)
	}
	p := Plugin{
		File:       file,
		Slug:       slug,
		Name:       firstNonEmpty(str(r, append(nameKeys, "plugin_name")...), slug),
		Version:    str(r, "version", "Version", "current_version"),
		Active:     active(r, "active", "is_active", "network_active"),
		NewVersion: newVersion(r),
	}
	avail, found := boolean(r, "update_available", "has_update", "update")
	p.UpdateAvailable = (found && avail) || p.NewVersion != ""
	return p
}

// NormalizeThemes maps a theme listing.
func NormalizeThemes(v any) []Theme {
	recs := records(v, "themes")
	out := make([]Theme, 0, len(recs))
	for _, r := range recs {
		name := str(r, nameKeys...)
		t := Theme{
			Stylesheet: firstNonEmpty(str(r, "stylesheet", "slug", "_key", "theme"), name),
			Version:    str(r, "version", "Version", "current_version"),
			Active:     active(r, "active", "is_active"),
			NewVersion: newVersion(r),
		}
		t.Name = firstNonEmpty(name, t.Stylesheet)
		if t.Stylesheet == "" {
			continue
		}
		avail, found := boolean(r, "update_available", "has_update", "update")
		t.UpdateAvailable = (found && avail) || t.NewVersion != ""
		out = append(out, t)
	}
	return out
}

// NormalizeUsers maps a user listing.
func NormalizeUsers(v any) []User {
	recs := records(v, "users")
	out := make([]User, 0, len(recs))
	for _, r := range recs {
		u := User{
			ID:         integer(r, "id", "ID", "user_id"),
			Login:      str(r, "login", "user_login", "username"),
			Email:      str(r, "email", "user_email"),
			Roles:      roles(r),
			Registered: normalizeTime(str(r, "registered", "user_registered", "registered_date", "date_registered")),
		}
		if u.ID == 0 && u.Login == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}

// NormalizeUpdates maps an /updates payload. A nil payload, a missing
// "updates" object, or empty arrays all mean nothing is pending.
func NormalizeUpdates(v any) *Updates {
	u := &Updates{Plugins: []PluginUpdate{}, Themes: []ThemeUpdate{}}
	m, ok := v.(map[string]any)
	if !ok {
		return u
	}
	if nested, ok := m["updates"].(map[string]any); ok {
		m = nested
	}

	core := m["wordpress"]
	if core == nil {
		core = m["core"]
	}
	u.WordPress = normalizeCoreUpdate(core)

	for _, r := range records(m["plugins"]) {
		id := str(r, append([]string{"plugin"}, append(pluginFileKeys, "slug", "name")...)...)
		if id == "" {
			continue
		}
		slug := firstNonEmpty(str(r, "slug"), slugOf(id))
		nv := newVersion(r)
		u.Plugins = append(u.Plugins, PluginUpdate{
			Plugin:         id,
			Slug:           slug,
			Name:           firstNonEmpty(str(r, nameKeys...), slug),
			CurrentVersion: currentVersion(r, nv),
			NewVersion:     nv,
		})
	}

	for _, r := range records(m["themes"]) {
		id := str(r, "theme", "stylesheet", "slug", "_key", "name")
		if id == "" {
			continue
		}
		nv := newVersion(r)
		u.Themes = append(u.Themes, ThemeUpdate{
			Theme:          id,
			Name:           firstNonEmpty(str(r, nameKeys...), id),
			CurrentVersion: currentVersion(r, nv),
			NewVersion:     nv,
		})
	}
	return u
}

func normalizeCoreUpdate(v any) *CoreUpdate {
	var entries []map[string]any
	switch c := v.(type) {
	case map[string]any:
		entries = []map[string]any{c}
	case []any:
		entries = records(c)
	}
	for _, e := range entries {
		if strings.EqualFold(str(e, "response"), "latest") {
			continue
		}
		nv := str(e, "new_version", "version", "latest", "update_version")
		cur := str(e, "current_version", "current", "installed_version")
		if nv == "" || nv == cur {
			continue
		}
		return &CoreUpdate{CurrentVersion: cur, NewVersion: nv}
	}
	return nil
}

// currentVersion reads the installed version of an update entry. "version"
// is ambiguous between payload variants and is only trusted when it
// differs from the new version.
func currentVersion(r map[string]any, nv string) string {
	if cur := str(r, "current_version", "installed_version", "old_version", "Version"); cur != "" {
		return cur
	}
	if v := str(r, "version"); v != "" && v != nv {
		return v
	}
	return ""
}

func newVersion(r map[string]any) string {
	if nv := str(r, newVersionKeys...); nv != "" {
		return nv
	}
	if nested, ok := r["update"].(map[string]any); ok {
		return str(nested, append(newVersionKeys, "version")...)
	}
	return ""
}

func active(r map[string]any, keys ...string) bool {
	if b, found := boolean(r, keys...); found {
		return b
	}
	return strings.EqualFold(str(r, "status"), "active")
}

func roles(r map[string]any) []string {
	out := []string{}
	switch v := r["roles"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		for role, granted := range v {
			if truthy(granted) {
				out = append(out, role)
			}
		}
		sort.Strings(out)
	case string:
		out = splitList(v)
	}
	if len(out) == 0 {
		if role := str(r, "role"); role != "" {
			out = splitList(role)
		}
	}
	return out
}

// records turns a list-ish value into objects. Objects keyed by identifier
// get the key copied into "_key" and are returned in key order.
func records(v any, wrappers ...string) []map[string]any {
	switch val := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		for _, key := range append(wrappers, listWrapperKeys...) {
			if inner, ok := val[key]; ok {
				return records(inner, wrappers...)
			}
		}
		keys := make([]string, 0, len(val))
		for k, item := range val {
			if _, ok := item.(map[string]any); !ok {
				return nil
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			src := val[k].(map[string]any)
			m := make(map[string]any, len(src)+1)
			for mk, mv := range src {
				m[mk] = mv
			}
			m["_key"] = k
			out = append(out, m)
		}
		return out
	default:
		return nil
	}
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func boolean(m map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b, true
		case string, json.Number, float64:
			return truthy(b), true
		}
	}
	return false, false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "on", "active":
			return true
		}
	case json.Number:
		n, err := b.Float64()
		return err == nil && n != 0
	case float64:
		return b != 0
	}
	return false
}

func integer(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

// count reads a numeric count, or the length of a list stored under the
// same key.
func count(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			return len(v)
		case map[string]any:
			return len(v)
		}
		if n := integer(m, k); n > 0 {
			return int(n)
		}
	}
	return 0
}

func normalizeTime(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isPluginFile(s string) bool {
	return strings.Contains(s, "/") || strings.HasSuffix(s, ".php")
}

// slugOf derives a slug from a plugin basename: "akismet/akismet.php" and
// "hello.php" give "akismet" and "hello".
func slugOf(id string) string {
	if id == "" {
		return ""
	}
	if dir, _ := path.Split(id); dir != "" {
		return strings.TrimSuffix(dir, "/")
	}
	return strings.TrimSuffix(id, ".php")
}

func matchesIdentifier(id string, candidates ...string) bool {
	if id == "" {
		return false
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if strings.EqualFold(id, c) || strings.EqualFold(slugOf(id), slugOf(c)) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
