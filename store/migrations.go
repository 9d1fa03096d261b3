package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// migration is one schema step. Statements run one at a time since the
// MySQL driver rejects multi-statement Exec by default.
type migration struct {
	Version int
	Name    string
	SQLite  []string
	MySQL   []string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_core_tables",
		SQLite: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email TEXT NOT NULL UNIQUE,
				password_hash BLOB NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS clients (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users(id),
				name TEXT NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS websites (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				client_id INTEGER NOT NULL REFERENCES clients(id),
				name TEXT NOT NULL DEFAULT '',
				url TEXT NOT NULL,
				api_key TEXT NOT NULL,
				connection_status TEXT NOT NULL DEFAULT 'unknown',
				last_checked_at DATETIME NULL,
				ssh_host TEXT NOT NULL DEFAULT '',
				ssh_user TEXT NOT NULL DEFAULT '',
				ssh_password TEXT NOT NULL DEFAULT '',
				wp_path TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_websites_client ON websites(client_id)`,
		},
		MySQL: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARBINARY(255) NOT NULL,
				created_at DATETIME(6) NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS clients (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL DEFAULT '',
				created_at DATETIME(6) NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS websites (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				client_id BIGINT NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				url VARCHAR(2048) NOT NULL,
				api_key VARCHAR(512) NOT NULL,
				connection_status VARCHAR(16) NOT NULL DEFAULT 'unknown',
				last_checked_at DATETIME(6) NULL,
				ssh_host VARCHAR(255) NOT NULL DEFAULT '',
				ssh_user VARCHAR(255) NOT NULL DEFAULT '',
				ssh_password VARCHAR(512) NOT NULL DEFAULT '',
				wp_path VARCHAR(1024) NOT NULL DEFAULT '',
				created_at DATETIME(6) NOT NULL,
				INDEX idx_websites_client (client_id),
				FOREIGN KEY (client_id) REFERENCES clients(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
	{
		Version: 2,
		Name:    "create_history_tables",
		SQLite: []string{
			`CREATE TABLE IF NOT EXISTS site_scans (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				website_id INTEGER NOT NULL REFERENCES websites(id),
				wordpress_version TEXT NOT NULL DEFAULT '',
				php_version TEXT NOT NULL DEFAULT '',
				plugins_count INTEGER NOT NULL DEFAULT 0,
				themes_count INTEGER NOT NULL DEFAULT 0,
				core_update BOOLEAN NOT NULL DEFAULT 0,
				plugin_updates INTEGER NOT NULL DEFAULT 0,
				theme_updates INTEGER NOT NULL DEFAULT 0,
				checked_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_site_scans_website ON site_scans(website_id, checked_at)`,
			`CREATE TABLE IF NOT EXISTS update_logs (
				id TEXT PRIMARY KEY,
				website_id INTEGER NOT NULL REFERENCES websites(id),
				user_id INTEGER NOT NULL,
				success BOOLEAN NOT NULL,
				maintenance_mode BOOLEAN NOT NULL,
				error_kind TEXT NOT NULL DEFAULT '',
				result TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_update_logs_website ON update_logs(website_id, started_at)`,
			`CREATE TABLE IF NOT EXISTS activities (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				website_id INTEGER NULL,
				level TEXT NOT NULL,
				message TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, created_at)`,
		},
		MySQL: []string{
			`CREATE TABLE IF NOT EXISTS site_scans (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				website_id BIGINT NOT NULL,
				wordpress_version VARCHAR(32) NOT NULL DEFAULT '',
				php_version VARCHAR(32) NOT NULL DEFAULT '',
				plugins_count INT NOT NULL DEFAULT 0,
				themes_count INT NOT NULL DEFAULT 0,
				core_update BOOLEAN NOT NULL DEFAULT FALSE,
				plugin_updates INT NOT NULL DEFAULT 0,
				theme_updates INT NOT NULL DEFAULT 0,
				checked_at DATETIME(6) NOT NULL,
				INDEX idx_site_scans_website (website_id, checked_at),
				FOREIGN KEY (website_id) REFERENCES websites(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS update_logs (
				id CHAR(36) PRIMARY KEY,
				website_id BIGINT NOT NULL,
				user_id BIGINT NOT NULL,
				success BOOLEAN NOT NULL,
				maintenance_mode BOOLEAN NOT NULL,
				error_kind VARCHAR(64) NOT NULL DEFAULT '',
				result MEDIUMTEXT NOT NULL,
				started_at DATETIME(6) NOT NULL,
				finished_at DATETIME(6) NOT NULL,
				INDEX idx_update_logs_website (website_id, started_at),
				FOREIGN KEY (website_id) REFERENCES websites(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS activities (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				website_id BIGINT NULL,
				level VARCHAR(16) NOT NULL,
				message TEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				INDEX idx_activities_user (user_id, created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
}

// Migrate applies every pending migration in version order.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	var applied []int
	if err := s.db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		stmts := m.SQLite
		if s.driver == DriverMySQL {
			stmts = m.MySQL
		}
		err := s.Transaction(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		s.log.Infow("applied migration", "version", m.Version, "name", m.Name)
	}
	return nil
}
