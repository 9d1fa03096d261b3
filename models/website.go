package models

import "time"

// ConnectionStatus reflects the outcome of the most recent remote call
// made against a website.
type ConnectionStatus string

const (
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionError     ConnectionStatus = "error"
	ConnectionUnknown   ConnectionStatus = "unknown"
)

// Client is an agency customer owning one or more websites.
type Client struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"-"`
	Name      string    `db:"name" json:"name" binding:"required"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Website is a managed WordPress site. The API key and SSH password are
// write-only and never serialized back to callers.
type Website struct {
	ID               int64            `db:"id" json:"id"`
	ClientID         int64            `db:"client_id" json:"clientId"`
	Name             string           `db:"name" json:"name"`
	URL              string           `db:"url" json:"url"`
	APIKey           string           `db:"api_key" json:"-"`
	ConnectionStatus ConnectionStatus `db:"connection_status" json:"connectionStatus"`
	LastCheckedAt    *time.Time       `db:"last_checked_at" json:"lastCheckedAt,omitempty"`
	SSHHost          string           `db:"ssh_host" json:"sshHost,omitempty"`
	SSHUser          string           `db:"ssh_user" json:"sshUser,omitempty"`
	SSHPassword      string           `db:"ssh_password" json:"-"`
	WPPath           string           `db:"wp_path" json:"wpPath,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}

// HasSSH reports whether the website carries enough detail to be reached
// over SSH for provisioning.
func (w *Website) HasSSH() bool {
	return w.SSHHost != "" && w.SSHUser != "" && w.SSHPassword != ""
}

// WebsiteInput is the create payload; unlike Website it accepts the API key.
type WebsiteInput struct {
	ClientID    int64  `json:"clientId" binding:"required"`
	Name        string `json:"name"`
	URL         string `json:"url" binding:"required"`
	APIKey      string `json:"apiKey" binding:"required"`
	SSHHost     string `json:"sshHost"`
	SSHUser     string `json:"sshUser"`
	SSHPassword string `json:"sshPassword"`
	WPPath      string `json:"wpPath"`
}

// Scan is one persisted snapshot summary taken during a sync.
type Scan struct {
	ID               int64     `db:"id" json:"id"`
	WebsiteID        int64     `db:"website_id" json:"websiteId"`
	WordPressVersion string    `db:"wordpress_version" json:"wordpressVersion"`
	PHPVersion       string    `db:"php_version" json:"phpVersion"`
	PluginsCount     int       `db:"plugins_count" json:"pluginsCount"`
	ThemesCount      int       `db:"themes_count" json:"themesCount"`
	CoreUpdate       bool      `db:"core_update" json:"coreUpdate"`
	PluginUpdates    int       `db:"plugin_updates" json:"pluginUpdates"`
	ThemeUpdates     int       `db:"theme_updates" json:"themeUpdates"`
	CheckedAt        time.Time `db:"checked_at" json:"checkedAt"`
}
