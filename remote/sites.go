package remote

import (
	"context"
	"errors"
	"net/http"
)

// FetchStatus returns the site's core, PHP, and inventory summary.
func (c *Client) FetchStatus(ctx context.Context) (*SiteInfo, error) {
	resp, err := c.get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	info, err := NormalizeSiteInfo(resp.payload)
	if err != nil {
		return nil, NewError(KindUnexpectedResponseFormat, "GET /status", err.Error(), nil)
	}
	info.Namespace = resp.strategy.Namespace
	return info, nil
}

// FetchUpdates returns pending core, plugin, and theme updates. An empty
// successful answer means the site is up to date. Missing current versions
// are backfilled from the plugin and theme listings, and only when needed.
func (c *Client) FetchUpdates(ctx context.Context) (*Updates, error) {
	resp, err := c.get(ctx, "/updates")
	if err != nil {
		return nil, err
	}
	u := NormalizeUpdates(resp.payload)
	c.backfill(ctx, u)
	return u, nil
}

func (c *Client) backfill(ctx context.Context, u *Updates) {
	if u.WordPress != nil && u.WordPress.CurrentVersion == "" {
		if info, err := c.FetchStatus(ctx); err == nil {
			u.WordPress.CurrentVersion = info.WordPressVersion
		} else {
			c.log.Debugw("core version backfill failed", "error", err)
		}
	}

	if needsPluginBackfill(u.Plugins) {
		plugins, err := c.FetchPlugins(ctx)
		if err != nil {
			c.log.Debugw("plugin version backfill failed", "error", err)
		}
		for i := range u.Plugins {
			pu := &u.Plugins[i]
			if pu.CurrentVersion != "" {
				continue
			}
			for _, p := range plugins {
				if matchesIdentifier(pu.Plugin, p.File, p.Slug, p.Name) {
					pu.CurrentVersion = p.Version
					if pu.Name == "" {
						pu.Name = p.Name
					}
					break
				}
			}
		}
	}

	if needsThemeBackfill(u.Themes) {
		themes, err := c.FetchThemes(ctx)
		if err != nil {
			c.log.Debugw("theme version backfill failed", "error", err)
		}
		for i := range u.Themes {
			tu := &u.Themes[i]
			if tu.CurrentVersion != "" {
				continue
			}
			for _, t := range themes {
				if matchesIdentifier(tu.Theme, t.Stylesheet, t.Name) {
					tu.CurrentVersion = t.Version
					if tu.Name == "" {
						tu.Name = t.Name
					}
					break
				}
			}
		}
	}
}

func needsPluginBackfill(ps []PluginUpdate) bool {
	for _, p := range ps {
		if p.CurrentVersion == "" {
			return true
		}
	}
	return false
}

func needsThemeBackfill(ts []ThemeUpdate) bool {
	for _, t := range ts {
		if t.CurrentVersion == "" {
			return true
		}
	}
	return false
}

// FetchPlugins lists installed plugins.
func (c *Client) FetchPlugins(ctx context.Context) ([]Plugin, error) {
	resp, err := c.get(ctx, "/plugins")
	if err != nil {
		return nil, err
	}
	return NormalizePlugins(resp.payload), nil
}

// FetchThemes lists installed themes.
func (c *Client) FetchThemes(ctx context.Context) ([]Theme, error) {
	resp, err := c.get(ctx, "/themes")
	if err != nil {
		return nil, err
	}
	return NormalizeThemes(resp.payload), nil
}

// FetchUsers lists the site's WordPress users.
func (c *Client) FetchUsers(ctx context.Context) ([]User, error) {
	resp, err := c.get(ctx, "/users")
	if err != nil {
		return nil, err
	}
	return NormalizeUsers(resp.payload), nil
}

// ValidateAPIKey is a pre-flight check against /status. Conditions other
// than a rejected key or a missing plugin are returned as errors.
func (c *Client) ValidateAPIKey(ctx context.Context) (KeyStatus, error) {
	_, err := c.get(ctx, "/status")
	switch {
	case err == nil:
		return KeyValid, nil
	case errors.Is(err, ErrInvalidAPIKey):
		return KeyInvalid, nil
	case errors.Is(err, ErrPluginNotInstalled):
		return KeyPluginMissing, nil
	default:
		return "", err
	}
}

// Maintenance reads the remote maintenance-mode flag.
func (c *Client) Maintenance(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, "/maintenance")
	if err != nil {
		return false, err
	}
	m, ok := resp.payload.(map[string]any)
	if !ok {
		return false, NewError(KindUnexpectedResponseFormat, "GET /maintenance", "maintenance payload is not an object", nil)
	}
	if nested, ok := m["data"].(map[string]any); ok {
		m = nested
	}
	enabled, _ := boolean(m, "enabled", "maintenance_mode", "maintenance", "active")
	return enabled, nil
}

// SetMaintenance toggles the remote maintenance-mode flag.
func (c *Client) SetMaintenance(ctx context.Context, enabled bool) error {
	_, err := c.call(ctx, request{
		method:   http.MethodPost,
		endpoint: "/maintenance",
		body:     map[string]bool{"enabled": enabled},
		mutating: true,
	})
	return err
}
