package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wp-fleet-manager/metrics"
	"wp-fleet-manager/models"
	"wp-fleet-manager/remote"
	"wp-fleet-manager/utils"
)

// SiteReader is the read side of remote.Client used by a sync.
type SiteReader interface {
	FetchStatus(ctx context.Context) (*remote.SiteInfo, error)
	FetchUpdates(ctx context.Context) (*remote.Updates, error)
}

// SyncStore is the persistence a sync needs.
type SyncStore interface {
	UpdateConnectionStatus(ctx context.Context, id int64, status models.ConnectionStatus, checkedAt time.Time) error
	InsertScan(ctx context.Context, scan *models.Scan) error
	CountByConnectionStatus(ctx context.Context) (map[models.ConnectionStatus]int, error)
	LogActivity(ctx context.Context, userID int64, websiteID *int64, level, message string)
}

// ClientFactory builds the remote client for a website. Tests swap it for
// one that returns fakes.
type ClientFactory func(w *models.Website) (*remote.Client, error)

// NewClientFactory returns a factory sharing one set of client options.
func NewClientFactory(opts remote.Options) ClientFactory {
	return func(w *models.Website) (*remote.Client, error) {
		return remote.NewClient(w.URL, w.APIKey, opts)
	}
}

// SiteOutcome is one website's result within a fleet sync.
type SiteOutcome struct {
	WebsiteID        int64                   `json:"websiteId"`
	Name             string                  `json:"name"`
	ConnectionStatus models.ConnectionStatus `json:"connectionStatus"`
	Scan             *models.Scan            `json:"scan,omitempty"`
	Error            string                  `json:"error,omitempty"`
	Kind             string                  `json:"kind,omitempty"`
}

type SyncService struct {
	store       SyncStore
	readers     func(w *models.Website) (SiteReader, error)
	concurrency int
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewSyncService(st SyncStore, factory ClientFactory, concurrency int) *SyncService {
	return newSyncService(st, func(w *models.Website) (SiteReader, error) {
		return factory(w)
	}, concurrency)
}

func newSyncService(st SyncStore, readers func(w *models.Website) (SiteReader, error), concurrency int) *SyncService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &SyncService{
		store:       st,
		readers:     readers,
		concurrency: concurrency,
		log:         utils.Named("sync"),
		now:         time.Now,
	}
}

const recordTimeout = 10 * time.Second

// Record persists the connection status implied by the outcome of a remote
// call. Every remote call made on behalf of a website ends here, and the
// write goes through even when ctx is already cancelled.
func (s *SyncService) Record(ctx context.Context, w *models.Website, callErr error) models.ConnectionStatus {
	status := remote.ConnectionStatusFor(callErr)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.store.UpdateConnectionStatus(ctx, w.ID, status, s.now()); err != nil {
		s.log.Errorw("failed to record connection status", "website", w.ID, "error", err)
	}
	w.ConnectionStatus = status
	return status
}

// SyncWebsite reads status and pending updates and stores a scan row.
func (s *SyncService) SyncWebsite(ctx context.Context, w *models.Website) (*models.Scan, error) {
	reader, err := s.readers(w)
	if err != nil {
		s.Record(ctx, w, err)
		return nil, err
	}

	info, err := reader.FetchStatus(ctx)
	if err != nil {
		s.Record(ctx, w, err)
		return nil, err
	}
	updates, err := reader.FetchUpdates(ctx)
	s.Record(ctx, w, err)
	if err != nil {
		return nil, err
	}

	scan := &models.Scan{
		WebsiteID:        w.ID,
		WordPressVersion: info.WordPressVersion,
		PHPVersion:       info.PHPVersion,
		PluginsCount:     info.PluginsCount,
		ThemesCount:      info.ThemesCount,
		CoreUpdate:       updates.WordPress != nil,
		PluginUpdates:    len(updates.Plugins),
		ThemeUpdates:     len(updates.Themes),
		CheckedAt:        s.now().UTC(),
	}
	if err := s.store.InsertScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("failed to store scan: %w", err)
	}
	return scan, nil
}

// SyncAll syncs every website with bounded concurrency. A failing site
// never stops the others; outcomes keep the input order.
func (s *SyncService) SyncAll(ctx context.Context, userID int64, websites []models.Website) []SiteOutcome {
	outcomes := make([]SiteOutcome, len(websites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range websites {
		i := i
		w := &websites[i]
		g.Go(func() error {
			out := SiteOutcome{WebsiteID: w.ID, Name: w.Name}
			scan, err := s.SyncWebsite(gctx, w)
			out.ConnectionStatus = w.ConnectionStatus
			if err != nil {
				out.Error = remote.Describe(err)
				out.Kind = string(remote.KindOf(err))
			}
			out.Scan = scan
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}
	s.store.LogActivity(ctx, userID, nil, "info", fmt.Sprintf("Fleet sync finished: %d websites, %d failed.", len(websites), failed))
	s.RefreshStatusGauge(ctx)
	return outcomes
}

// RefreshStatusGauge republishes the per-status website counts.
func (s *SyncService) RefreshStatusGauge(ctx context.Context) {
	counts, err := s.store.CountByConnectionStatus(ctx)
	if err != nil {
		s.log.Warnw("failed to refresh connection gauge", "error", err)
		return
	}
	for _, status := range []models.ConnectionStatus{models.ConnectionConnected, models.ConnectionError, models.ConnectionUnknown} {
		metrics.WebsiteConnectionStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
