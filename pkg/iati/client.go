package iati

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"aidimport/internal/cache"
	"aidimport/internal/config"
	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
)

// Client fetches activity records from the IATI datastore
type Client interface {
	// FetchActivitiesByIdentifiers returns the records published under the
	// given IATI identifiers, in datastore order
	FetchActivitiesByIdentifiers(ctx context.Context, ids []string) ([]model.ActivityRecord, error)

	// FetchOrganisationActivities returns up to rows activities reported
	// by one organisation
	FetchOrganisationActivities(ctx context.Context, orgRef string, rows int) ([]model.ActivityRecord, error)

	// Close stops the rate limiter
	Close()
}

type client struct {
	httpClient *http.Client
	cfg        config.IATIConfig
	cache      cache.Cache

	requestTicker *time.Ticker
	requestChan   chan struct{}
}

// New creates a rate-limited datastore client. cache may be nil to disable
// response caching.
func New(cfg config.IATIConfig, responseCache cache.Cache) Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 1 {
		rpm = 30
	}
	interval := time.Minute / time.Duration(rpm-1)

	log.Info().
		Int("requests_per_minute", rpm).
		Dur("request_interval", interval).
		Str("datastore_url", cfg.DatastoreURL).
		Msg("Initializing IATI datastore client")

	ticker := time.NewTicker(interval)

	// Buffered channel of request tokens, refilled by the ticker
	requestChan := make(chan struct{}, 1)
	requestChan <- struct{}{}

	go func() {
		for range ticker.C {
			select {
			case requestChan <- struct{}{}:
			default:
				// Buffer full, skip this token
			}
		}
	}()

	return &client{
		httpClient:    &http.Client{Timeout: time.Second * 30},
		cfg:           cfg,
		cache:         responseCache,
		requestTicker: ticker,
		requestChan:   requestChan,
	}
}

func (c *client) Close() {
	c.requestTicker.Stop()
}

// request performs one rate-limited GET against the datastore, consulting
// the response cache first when enabled
func (c *client) request(ctx context.Context, url string) ([]byte, error) {
	if c.cacheEnabled() {
		if body, err := c.cache.Get(ctx, url); err == nil {
			return body, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Datastore cache read failed")
		}
	}

	// Wait for a rate-limit token
	select {
	case <-c.requestChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Datastore request failed")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("url", url).Msg("Datastore returned non-OK status")
		return nil, fmt.Errorf("datastore returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("url", url).
		Int("size", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Datastore request completed")

	if c.cacheEnabled() {
		ttl := time.Duration(c.cfg.DefaultCacheTTL) * time.Second
		if err := c.cache.Set(ctx, url, body, ttl); err != nil {
			log.Warn().Err(err).Msg("Datastore cache write failed")
		}
	}

	return body, nil
}

func (c *client) cacheEnabled() bool {
	return c.cfg.Cache && c.cache != nil
}
