// Package catalogsync polls the upstream inventory app and keeps the local
// equipment projection current.
package catalogsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"rental-availability-backend/config"
	"rental-availability-backend/internal/store"
)

// Upserter persists catalog items and reports which equipment ids changed.
type Upserter interface {
	UpsertCatalog(ctx context.Context, items []store.CatalogItem) ([]string, error)
}

// Refresher drops cached catalog reads.
type Refresher interface {
	Flush()
}

// Refreshers flushes several caches at once.
type Refreshers []Refresher

func (rs Refreshers) Flush() {
	for _, r := range rs {
		r.Flush()
	}
}

// Service orchestrates the catalog sync.
type Service struct {
	cfg       *config.CatalogSyncConfig
	store     Upserter
	refresher Refresher
	client    *http.Client
	logger    *slog.Logger
}

// NewService creates and initializes a new catalog sync service. refresher
// may be nil.
func NewService(cfg *config.CatalogSyncConfig, upserter Upserter, refresher Refresher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid proxy URL, catalog sync will not use a proxy", "proxy", cfg.HTTPProxy, "error", err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:       cfg,
		store:     upserter,
		refresher: refresher,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		logger: logger,
	}
}

// Run syncs once and then on every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("catalog sync is disabled, not starting")
		return
	}
	s.logger.Info("starting catalog sync", "interval", s.cfg.Interval)

	s.SyncOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("catalog sync shutting down")
			return
		case <-timer.C:
			s.SyncOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SyncOnce fetches every page of the upstream catalog and upserts it. It
// returns the ids of equipment whose projection changed.
func (s *Service) SyncOnce(ctx context.Context) []string {
	s.logger.Debug("executing catalog sync cycle")

	var allItems []store.CatalogItem
	total := 1
	pageSize := s.cfg.Request.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			s.logger.Error("error fetching catalog page", "page", page, "error", err)
			fetchErr = err
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		allItems = append(allItems, resp.Data.Items...)
		s.logger.Debug("fetched catalog page", "page", page, "total", total, "items", len(allItems))
	}

	// A failed fetch with nothing retrieved must not touch the projection.
	if fetchErr != nil && len(allItems) == 0 {
		s.logger.Warn("catalog sync aborted: fetch failed with no items retrieved")
		return nil
	}
	if len(allItems) == 0 {
		s.logger.Info("catalog sync finished: no items to process")
		return nil
	}

	changed, err := s.store.UpsertCatalog(ctx, allItems)
	if err != nil {
		s.logger.Error("error upserting catalog", "error", err)
		return nil
	}

	if len(changed) > 0 && s.refresher != nil {
		// Category listings embed every item, so any change invalidates them all.
		s.refresher.Flush()
	}

	s.logger.Info("catalog sync finished", "items", len(allItems), "changed", len(changed))
	return changed
}

func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	if apiResp.Code != 0 {
		return nil, fmt.Errorf("API returned non-zero application code: %d", apiResp.Code)
	}

	return &apiResp, nil
}
