package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"wp-fleet-manager/models"
)

const websiteColumns = `w.id, w.client_id, w.name, w.url, w.api_key, w.connection_status, w.last_checked_at,
	w.ssh_host, w.ssh_user, w.ssh_password, w.wp_path, w.created_at`

// CreateWebsite inserts a website under one of the user's clients.
func (s *Store) CreateWebsite(ctx context.Context, userID int64, w *models.Website) error {
	if _, err := s.GetClient(ctx, userID, w.ClientID); err != nil {
		return err
	}
	w.CreatedAt = time.Now().UTC()
	if w.ConnectionStatus == "" {
		w.ConnectionStatus = models.ConnectionUnknown
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO websites (client_id, name, url, api_key, connection_status, ssh_host, ssh_user, ssh_password, wp_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ClientID, w.Name, w.URL, w.APIKey, w.ConnectionStatus, w.SSHHost, w.SSHUser, w.SSHPassword, w.WPPath, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert website: %w", err)
	}
	w.ID, err = res.LastInsertId()
	return err
}

// ListWebsites returns the user's websites, optionally for one client.
func (s *Store) ListWebsites(ctx context.Context, userID, clientID int64) ([]models.Website, error) {
	query := `SELECT ` + websiteColumns + ` FROM websites w JOIN clients c ON c.id = w.client_id WHERE c.user_id = ?`
	args := []any{userID}
	if clientID > 0 {
		query += ` AND w.client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY w.name, w.id`

	websites := []models.Website{}
	if err := s.db.SelectContext(ctx, &websites, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	return websites, nil
}

// GetWebsite loads a website the user owns through its client.
func (s *Store) GetWebsite(ctx context.Context, userID, id int64) (*models.Website, error) {
	var w models.Website
	err := s.db.GetContext(ctx, &w,
		`SELECT `+websiteColumns+` FROM websites w JOIN clients c ON c.id = w.client_id WHERE w.id = ? AND c.user_id = ?`,
		id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// UpdateConnectionStatus records the outcome of the latest remote call.
func (s *Store) UpdateConnectionStatus(ctx context.Context, id int64, status models.ConnectionStatus, checkedAt time.Time) error {
	return affected(s.db.ExecContext(ctx,
		`UPDATE websites SET connection_status = ?, last_checked_at = ? WHERE id = ?`,
		status, checkedAt.UTC(), id))
}

// CountByConnectionStatus tallies every website by status.
func (s *Store) CountByConnectionStatus(ctx context.Context) (map[models.ConnectionStatus]int, error) {
	var rows []struct {
		Status models.ConnectionStatus `db:"connection_status"`
		N      int                     `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT connection_status, COUNT(*) AS n FROM websites GROUP BY connection_status`); err != nil {
		return nil, fmt.Errorf("failed to count websites: %w", err)
	}
	counts := map[models.ConnectionStatus]int{}
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

func (s *Store) DeleteWebsite(ctx context.Context, userID, id int64) error {
	if _, err := s.GetWebsite(ctx, userID, id); err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return deleteWebsiteRows(ctx, tx, id)
	})
}

func deleteWebsiteRows(ctx context.Context, tx *sqlx.Tx, id int64) error {
	for _, stmt := range []string{
		`DELETE FROM site_scans WHERE website_id = ?`,
		`DELETE FROM update_logs WHERE website_id = ?`,
		`DELETE FROM activities WHERE website_id = ?`,
		`DELETE FROM websites WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete website %d: %w", id, err)
		}
	}
	return nil
}
