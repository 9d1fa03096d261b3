package models

import (
	"encoding/json"
	"strings"
	"time"
)

// UpdateRequest is the set of items submitted for one bulk update.
type UpdateRequest struct {
	WordPress bool     `json:"wordpress"`
	Plugins   []string `json:"plugins"`
	Themes    []string `json:"themes"`
}

// Empty reports whether nothing was requested.
func (r UpdateRequest) Empty() bool {
	return !r.WordPress && len(r.Plugins) == 0 && len(r.Themes) == 0
}

// Normalized trims identifiers and drops blanks and duplicates, keeping
// the caller's order.
func (r UpdateRequest) Normalized() UpdateRequest {
	return UpdateRequest{
		WordPress: r.WordPress,
		Plugins:   dedupe(r.Plugins),
		Themes:    dedupe(r.Themes),
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

type ItemType string

const (
	ItemWordPress ItemType = "wordpress"
	ItemPlugin    ItemType = "plugin"
	ItemTheme     ItemType = "theme"
)

type ItemOutcome string

const (
	OutcomeSucceeded  ItemOutcome = "succeeded"
	OutcomeFailed     ItemOutcome = "failed"
	OutcomeInProgress ItemOutcome = "in_progress"
)

// ItemResult is the outcome of updating one core, plugin, or theme target.
type ItemResult struct {
	Type    ItemType    `json:"type"`
	Target  string      `json:"target"`
	Plugin  string      `json:"plugin,omitempty"`
	Theme   string      `json:"theme,omitempty"`
	Success bool        `json:"success"`
	Outcome ItemOutcome `json:"outcome"`
	Message string      `json:"message,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// NewItemResult returns a pending result for the given target.
func NewItemResult(t ItemType, target string) ItemResult {
	item := ItemResult{Type: t, Target: target, Outcome: OutcomeFailed}
	switch t {
	case ItemPlugin:
		item.Plugin = target
	case ItemTheme:
		item.Theme = target
	}
	return item
}

func (i *ItemResult) Succeed(message string) {
	i.Success = true
	i.Outcome = OutcomeSucceeded
	i.Message = message
	i.Kind = ""
}

func (i *ItemResult) Fail(kind, message string) {
	i.Success = false
	i.Outcome = OutcomeFailed
	i.Kind = kind
	i.Message = message
}

func (i *ItemResult) Pending(kind, message string) {
	i.Success = false
	i.Outcome = OutcomeInProgress
	i.Kind = kind
	i.Message = message
}

// UpdateResult aggregates one orchestration run.
type UpdateResult struct {
	Success         bool         `json:"success"`
	MaintenanceMode bool         `json:"maintenance_mode"`
	WordPress       *ItemResult  `json:"wordpress,omitempty"`
	Plugins         []ItemResult `json:"plugins"`
	Themes          []ItemResult `json:"themes"`
	Warnings        []string     `json:"warnings,omitempty"`
	ErrorKind       string       `json:"error_kind,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
}

func NewUpdateResult(started time.Time) *UpdateResult {
	return &UpdateResult{
		Plugins:   []ItemResult{},
		Themes:    []ItemResult{},
		StartedAt: started,
	}
}

// Items returns every item result in execution order.
func (r *UpdateResult) Items() []ItemResult {
	items := make([]ItemResult, 0, 1+len(r.Plugins)+len(r.Themes))
	if r.WordPress != nil {
		items = append(items, *r.WordPress)
	}
	items = append(items, r.Plugins...)
	return append(items, r.Themes...)
}

// Failed returns the items that did not succeed, so callers can retry just
// that subset.
func (r *UpdateResult) Failed() UpdateRequest {
	var retry UpdateRequest
	for _, item := range r.Items() {
		if item.Outcome != OutcomeFailed {
			continue
		}
		switch item.Type {
		case ItemWordPress:
			retry.WordPress = true
		case ItemPlugin:
			retry.Plugins = append(retry.Plugins, item.Target)
		case ItemTheme:
			retry.Themes = append(retry.Themes, item.Target)
		}
	}
	return retry
}

func (r *UpdateResult) Warn(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Finish computes the overall flag and error kind. success holds only when
// every requested item succeeded; partialKind and pendingKind name the kinds
// reported for mixed and still-running outcomes.
func (r *UpdateResult) Finish(finished time.Time, partialKind, pendingKind string) {
	r.FinishedAt = finished
	items := r.Items()

	var succeeded, failed, pending int
	firstFailure := ""
	for _, item := range items {
		switch item.Outcome {
		case OutcomeSucceeded:
			succeeded++
		case OutcomeInProgress:
			pending++
		default:
			failed++
			if firstFailure == "" {
				firstFailure = item.Kind
			}
		}
	}

	r.Success = failed == 0 && pending == 0
	switch {
	case failed > 0 && (succeeded > 0 || pending > 0):
		r.ErrorKind = partialKind
	case failed > 0:
		r.ErrorKind = firstFailure
	case pending > 0:
		r.ErrorKind = pendingKind
	default:
		r.ErrorKind = ""
	}
}

// UpdateLog is the persisted audit row for one orchestration run.
type UpdateLog struct {
	ID              string          `db:"id" json:"id"`
	WebsiteID       int64           `db:"website_id" json:"websiteId"`
	UserID          int64           `db:"user_id" json:"userId"`
	Success         bool            `db:"success" json:"success"`
	MaintenanceMode bool            `db:"maintenance_mode" json:"maintenanceMode"`
	ErrorKind       string          `db:"error_kind" json:"errorKind,omitempty"`
	Result          json.RawMessage `db:"result" json:"result"`
	StartedAt       time.Time       `db:"started_at" json:"startedAt"`
	FinishedAt      time.Time       `db:"finished_at" json:"finishedAt"`
}
