package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"wp-fleet-manager/metrics"
	"wp-fleet-manager/models"
	"wp-fleet-manager/remote"
	"wp-fleet-manager/utils"
)

// RemoteSite is the part of remote.Client the orchestrator drives.
type RemoteSite interface {
	SetMaintenance(ctx context.Context, enabled bool) error
	UpdateCore(ctx context.Context) (*remote.MutationResult, error)
	UpdatePlugin(ctx context.Context, plugin string) (*remote.MutationResult, error)
	UpdateTheme(ctx context.Context, theme string) (*remote.MutationResult, error)
	FetchUpdates(ctx context.Context) (*remote.Updates, error)
}

// OrchestratorOptions tunes post-timeout verification.
type OrchestratorOptions struct {
	VerifyAttempts     int
	VerifyInterval     time.Duration
	MaintenanceTimeout time.Duration
	Logger             *zap.SugaredLogger
}

// UpdateOrchestrator runs one bulk update against one website: core first,
// then plugins, then themes, one call at a time, inside a maintenance-mode
// bracket. It holds no per-site state.
type UpdateOrchestrator struct {
	verifyAttempts     int
	verifyInterval     time.Duration
	maintenanceTimeout time.Duration
	log                *zap.SugaredLogger
	now                func() time.Time
}

func NewUpdateOrchestrator(opts OrchestratorOptions) *UpdateOrchestrator {
	o := &UpdateOrchestrator{
		verifyAttempts:     opts.VerifyAttempts,
		verifyInterval:     opts.VerifyInterval,
		maintenanceTimeout: opts.MaintenanceTimeout,
		log:                opts.Logger,
		now:                time.Now,
	}
	if o.verifyAttempts <= 0 {
		o.verifyAttempts = 3
	}
	if o.verifyInterval <= 0 {
		o.verifyInterval = 5 * time.Second
	}
	if o.maintenanceTimeout <= 0 {
		o.maintenanceTimeout = 30 * time.Second
	}
	if o.log == nil {
		o.log = utils.Named("orchestrator")
	}
	return o
}

// Run performs the requested updates. It never returns an error: every
// failure is recorded on the item it belongs to.
func (o *UpdateOrchestrator) Run(ctx context.Context, site RemoteSite, req models.UpdateRequest) *models.UpdateResult {
	req = req.Normalized()
	result := models.NewUpdateResult(o.now())
	if req.Empty() {
		result.Finish(o.now(), string(remote.KindPartialUpdateFailure), string(remote.KindUpdateInProgressTimeout))
		return result
	}

	o.withMaintenance(ctx, site, result, func() {
		if req.WordPress {
			item := o.runItem(ctx, site, models.NewItemResult(models.ItemWordPress, "wordpress"))
			result.WordPress = &item
		}
		for _, plugin := range req.Plugins {
			result.Plugins = append(result.Plugins, o.runItem(ctx, site, models.NewItemResult(models.ItemPlugin, plugin)))
		}
		for _, theme := range req.Themes {
			result.Themes = append(result.Themes, o.runItem(ctx, site, models.NewItemResult(models.ItemTheme, theme)))
		}
	})

	result.Finish(o.now(), string(remote.KindPartialUpdateFailure), string(remote.KindUpdateInProgressTimeout))
	for _, item := range result.Items() {
		metrics.UpdateItemsTotal.WithLabelValues(string(item.Type), string(item.Outcome)).Inc()
	}
	o.log.Infow("update run finished", "success", result.Success, "error_kind", result.ErrorKind, "items", len(result.Items()))
	return result
}

// withMaintenance enables maintenance mode, runs fn, and disables it again
// on every exit path. Failing to enable only degrades the run.
func (o *UpdateOrchestrator) withMaintenance(ctx context.Context, site RemoteSite, result *models.UpdateResult, fn func()) {
	if err := site.SetMaintenance(ctx, true); err != nil {
		o.log.Warnw("could not enable maintenance mode", "error", err)
		result.Warn(fmt.Sprintf("maintenance mode could not be enabled, updating without it: %v", err))
	} else {
		result.MaintenanceMode = true
	}

	defer func() {
		// The caller's context may already be cancelled; the site must not
		// be left in maintenance mode regardless.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.maintenanceTimeout)
		defer cancel()
		if err := site.SetMaintenance(dctx, false); err != nil {
			o.log.Errorw("could not disable maintenance mode", "error", err)
			result.Warn(fmt.Sprintf("maintenance mode could not be disabled, check the site: %v", err))
		}
	}()

	fn()
}

// runItem performs one update call. A panic in the call is contained to
// the item.
func (o *UpdateOrchestrator) runItem(ctx context.Context, site RemoteSite, item models.ItemResult) (out models.ItemResult) {
	out = item
	log := o.log.With("type", item.Type, "target", item.Target)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("update call panicked", "panic", r)
			out.Fail(string(remote.KindRemoteError), fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Fail(string(remote.KindSiteUnreachable), "run cancelled before this item started")
		return out
	}

	res, err := o.call(ctx, site, item)
	switch {
	case err == nil:
		out.Succeed(firstNonEmpty(res.Message, "updated"))
		log.Infow("item updated")
	case remote.IsTimeout(err):
		log.Warnw("item update timed out, verifying", "error", err)
		o.verifyAfterTimeout(ctx, site, &out)
	default:
		out.Fail(string(remote.KindOf(err)), err.Error())
		log.Warnw("item update failed", "error", err)
	}
	return out
}

func (o *UpdateOrchestrator) call(ctx context.Context, site RemoteSite, item models.ItemResult) (*remote.MutationResult, error) {
	switch item.Type {
	case models.ItemWordPress:
		return site.UpdateCore(ctx)
	case models.ItemPlugin:
		return site.UpdatePlugin(ctx, item.Target)
	case models.ItemTheme:
		return site.UpdateTheme(ctx, item.Target)
	default:
		return nil, fmt.Errorf("unknown item type %q", item.Type)
	}
}

var errStillPending = errors.New("update still pending")

// verifyAfterTimeout polls the pending update list with exponential backoff
// instead of re-issuing the mutation. An item that vanished from the list
// completed; one that is still listed is reported as in progress.
func (o *UpdateOrchestrator) verifyAfterTimeout(ctx context.Context, site RemoteSite, item *models.ItemResult) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.verifyInterval
	eb.MaxInterval = 4 * o.verifyInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.verifyAttempts-1)), ctx)

	check := func() error {
		updates, err := site.FetchUpdates(ctx)
		if err != nil {
			return err
		}
		if stillPending(updates, item) {
			return errStillPending
		}
		return nil
	}

	if err := backoff.Retry(check, policy); err != nil {
		item.Pending(string(remote.KindUpdateInProgressTimeout), remote.KindUpdateInProgressTimeout.Remediation())
		return
	}
	item.Succeed("completed after timeout")
}

func stillPending(u *remote.Updates, item *models.ItemResult) bool {
	switch item.Type {
	case models.ItemWordPress:
		return u.WordPress != nil
	case models.ItemPlugin:
		return u.HasPlugin(item.Target)
	case models.ItemTheme:
		return u.HasTheme(item.Target)
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
