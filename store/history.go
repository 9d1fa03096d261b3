package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wp-fleet-manager/models"
)

func (s *Store) InsertScan(ctx context.Context, scan *models.Scan) error {
	if scan.CheckedAt.IsZero() {
		scan.CheckedAt = time.Now().UTC()
	}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO site_scans (website_id, wordpress_version, php_version, plugins_count, themes_count,
			core_update, plugin_updates, theme_updates, checked_at)
		VALUES (:website_id, :wordpress_version, :php_version, :plugins_count, :themes_count,
			:core_update, :plugin_updates, :theme_updates, :checked_at)`,
		scan)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	scan.ID, err = res.LastInsertId()
	return err
}

// ListScans returns a website's scans, newest first.
func (s *Store) ListScans(ctx context.Context, websiteID int64, limit int) ([]models.Scan, error) {
	scans := []models.Scan{}
	err := s.db.SelectContext(ctx, &scans,
		`SELECT id, website_id, wordpress_version, php_version, plugins_count, themes_count,
			core_update, plugin_updates, theme_updates, checked_at
		FROM site_scans WHERE website_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?`,
		websiteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

// updateLogRow keeps the result as text so both drivers scan it.
type updateLogRow struct {
	models.UpdateLog
	ResultText string `db:"result_text"`
}

// InsertUpdateLog persists one orchestration run under a fresh UUID.
func (s *Store) InsertUpdateLog(ctx context.Context, websiteID, userID int64, result *models.UpdateResult) (*models.UpdateLog, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode update result: %w", err)
	}
	entry := &models.UpdateLog{
		ID:              uuid.NewString(),
		WebsiteID:       websiteID,
		UserID:          userID,
		Success:         result.Success,
		MaintenanceMode: result.MaintenanceMode,
		ErrorKind:       result.ErrorKind,
		Result:          raw,
		StartedAt:       result.StartedAt.UTC(),
		FinishedAt:      result.FinishedAt.UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO update_logs (id, website_id, user_id, success, maintenance_mode, error_kind, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.WebsiteID, entry.UserID, entry.Success, entry.MaintenanceMode, entry.ErrorKind,
		string(raw), entry.StartedAt, entry.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert update log: %w", err)
	}
	return entry, nil
}

// ListUpdateLogs returns a website's update runs, newest first.
func (s *Store) ListUpdateLogs(ctx context.Context, websiteID int64, limit int) ([]models.UpdateLog, error) {
	var rows []updateLogRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, website_id, user_id, success, maintenance_mode, error_kind, result AS result_text, started_at, finished_at
		FROM update_logs WHERE website_id = ? ORDER BY started_at DESC LIMIT ?`,
		websiteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list update logs: %w", err)
	}
	logs := make([]models.UpdateLog, 0, len(rows))
	for _, r := range rows {
		entry := r.UpdateLog
		entry.Result = json.RawMessage(r.ResultText)
		logs = append(logs, entry)
	}
	return logs, nil
}

// LogActivity appends to the audit trail. Failures are logged, not
// returned, so an audit write never fails the action it records.
func (s *Store) LogActivity(ctx context.Context, userID int64, websiteID *int64, level, message string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (user_id, website_id, level, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, websiteID, level, message, time.Now().UTC())
	if err != nil {
		s.log.Errorw("failed to write activity", "error", err, "message", message)
	}
}

// ListActivities returns the user's latest activities, newest first.
func (s *Store) ListActivities(ctx context.Context, userID int64, limit int) ([]models.Activity, error) {
	activities := []models.Activity{}
	err := s.db.SelectContext(ctx, &activities,
		`SELECT id, user_id, website_id, level, message, created_at
		FROM activities WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activities, nil
}
