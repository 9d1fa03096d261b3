package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"wp-fleet-manager/models"
)

func (s *Store) CreateClient(ctx context.Context, c *models.Client) error {
	c.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (user_id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Name, c.Email, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListClients(ctx context.Context, userID int64) ([]models.Client, error) {
	clients := []models.Client{}
	err := s.db.SelectContext(ctx, &clients,
		`SELECT id, user_id, name, email, created_at FROM clients WHERE user_id = ? ORDER BY name, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

func (s *Store) GetClient(ctx context.Context, userID, id int64) (*models.Client, error) {
	var c models.Client
	err := s.db.GetContext(ctx, &c,
		`SELECT id, user_id, name, email, created_at FROM clients WHERE id = ? AND user_id = ?`,
		id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// DeleteClient removes a client with its websites and their history.
func (s *Store) DeleteClient(ctx context.Context, userID, id int64) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		var ids []int64
		if err := tx.SelectContext(ctx, &ids,
			`SELECT w.id FROM websites w JOIN clients c ON c.id = w.client_id WHERE c.id = ? AND c.user_id = ?`,
			id, userID); err != nil {
			return err
		}
		for _, websiteID := range ids {
			if err := deleteWebsiteRows(ctx, tx, websiteID); err != nil {
				return err
			}
		}
		return affected(tx.ExecContext(ctx, `DELETE FROM clients WHERE id = ? AND user_id = ?`, id, userID))
	})
}
