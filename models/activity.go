package models

import "time"

// Activity represents a log entry for an action.
type Activity struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	WebsiteID *int64    `db:"website_id" json:"websiteId,omitempty"`
	Level     string    `db:"level" json:"level"` // e.g., "info", "error"
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}
