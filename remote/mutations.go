package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wp-fleet-manager/models"
)

// UpdateCore updates WordPress core.
func (c *Client) UpdateCore(ctx context.Context) (*MutationResult, error) {
	return c.mutate(ctx, "/update-wordpress", nil, models.UpdateRequest{WordPress: true})
}

// UpdatePlugin updates one plugin by file path or slug.
func (c *Client) UpdatePlugin(ctx context.Context, plugin string) (*MutationResult, error) {
	return c.mutate(ctx, "/update-plugin", map[string]string{"plugin": plugin}, models.UpdateRequest{Plugins: []string{plugin}})
}

// UpdateTheme updates one theme by stylesheet.
func (c *Client) UpdateTheme(ctx context.Context, theme string) (*MutationResult, error) {
	return c.mutate(ctx, "/update-theme", map[string]string{"theme": theme}, models.UpdateRequest{Themes: []string{theme}})
}

// mutate posts a single-item update. Plugin builds without the single-item
// routes answer 404 on every namespace, in which case the same item is sent
// through the bulk endpoint instead.
func (c *Client) mutate(ctx context.Context, endpoint string, body any, single models.UpdateRequest) (*MutationResult, error) {
	resp, err := c.post(ctx, endpoint, body)
	if err == nil {
		return mutationResult(resp), nil
	}
	if !errors.Is(err, ErrPluginNotInstalled) {
		return nil, err
	}

	c.log.Infow("single-item route missing, using bulk endpoint", "endpoint", endpoint)
	bulk, bulkErr := c.PerformUpdates(ctx, single)
	if bulkErr != nil {
		return nil, bulkErr
	}
	items := bulk.Items()
	if len(items) == 0 {
		if bulk.Success {
			return &MutationResult{}, nil
		}
		return nil, NewError(KindRemoteError, "POST /updates/perform", "bulk update reported failure", nil)
	}
	item := items[0]
	if !item.Success {
		return nil, NewError(KindRemoteError, "POST /updates/perform", firstNonEmpty(item.Message, "update failed"), nil)
	}
	return &MutationResult{Message: item.Message}, nil
}

func mutationResult(resp *response) *MutationResult {
	res := &MutationResult{Namespace: resp.strategy.Namespace}
	if m, ok := resp.payload.(map[string]any); ok {
		res.Message = str(m, "message", "msg")
		res.NewVersion = str(m, "new_version", "version")
		if nested, ok := m["data"].(map[string]any); ok && res.NewVersion == "" {
			res.NewVersion = str(nested, "new_version", "version")
		}
	}
	return res
}

// PerformUpdates sends a bulk update in one call and maps the remote's
// per-item report onto an UpdateResult. Items the remote does not report
// on are marked failed.
func (c *Client) PerformUpdates(ctx context.Context, req models.UpdateRequest) (*models.UpdateResult, error) {
	req = req.Normalized()
	started := time.Now()
	resp, err := c.post(ctx, "/updates/perform", map[string]any{
		"wordpress": req.WordPress,
		"plugins":   nonNil(req.Plugins),
		"themes":    nonNil(req.Themes),
	})
	if err != nil {
		return nil, err
	}

	m, _ := resp.payload.(map[string]any)
	if nested, ok := m["results"].(map[string]any); ok {
		m = nested
	} else if nested, ok := m["data"].(map[string]any); ok {
		m = nested
	}

	result := models.NewUpdateResult(started)
	if req.WordPress {
		item := models.NewItemResult(models.ItemWordPress, "wordpress")
		reportItem(&item, coreReport(m))
		result.WordPress = &item
	}
	plugins := records(m["plugins"])
	for _, id := range req.Plugins {
		item := models.NewItemResult(models.ItemPlugin, id)
		reportItem(&item, findReport(plugins, id, append([]string{"plugin"}, append(pluginFileKeys, "slug", "name")...)...))
		result.Plugins = append(result.Plugins, item)
	}
	themes := records(m["themes"])
	for _, id := range req.Themes {
		item := models.NewItemResult(models.ItemTheme, id)
		reportItem(&item, findReport(themes, id, "theme", "stylesheet", "slug", "name"))
		result.Themes = append(result.Themes, item)
	}
	result.Finish(time.Now(), string(KindPartialUpdateFailure), string(KindUpdateInProgressTimeout))
	return result, nil
}

func coreReport(m map[string]any) map[string]any {
	for _, key := range []string{"wordpress", "core"} {
		switch v := m[key].(type) {
		case map[string]any:
			return v
		case bool:
			return map[string]any{"success": v}
		}
	}
	return nil
}

func findReport(recs []map[string]any, id string, keys ...string) map[string]any {
	for _, r := range recs {
		for _, k := range keys {
			if v := str(r, k); v != "" && matchesIdentifier(id, v) {
				return r
			}
		}
	}
	return nil
}

func reportItem(item *models.ItemResult, r map[string]any) {
	if r == nil {
		item.Fail(string(KindRemoteError), "remote did not report on this item")
		return
	}
	msg := str(r, "message", "error", "msg")
	if ok, found := boolean(r, "success", "updated"); found && ok {
		item.Succeed(msg)
		return
	}
	item.Fail(string(KindRemoteError), firstNonEmpty(msg, "update failed"))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Describe renders an error with its remediation hint for operators.
func Describe(err error) string {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return err.Error()
	}
	if hint := rerr.Kind.Remediation(); hint != "" {
		return fmt.Sprintf("%s. %s", rerr.Error(), hint)
	}
	return rerr.Error()
}
