// Package simapi is the REST client for the simulation server. Every game
// mutation returns the full authoritative snapshot, which callers feed to the
// reconciler exactly like a channel full-sync.
package simapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8000.
	BaseURL string

	// MaxRetries bounds attempts for idempotent reads. Defaults to 3.
	MaxRetries int

	// RetryDelay is the first backoff interval. Defaults to 200ms.
	RetryDelay time.Duration

	// FetchTimeout bounds a shared tick fetch, which outlives the callers
	// that gave up on it. Defaults to 30s.
	FetchTimeout time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	cfg   Config
	http  *http.Client
	log   *zap.Logger
	ticks singleflight.Group
}

func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient, log: cfg.Logger.Named("simapi")}
}

type CreateGameRequest struct {
	HomeTeamID  string `json:"home_team_id"`
	AwayTeamID  string `json:"away_team_id"`
	Pacing      string `json:"pacing,omitempty"`
	HumanTeamID string `json:"human_team_id,omitempty"`
}

// Settings is a partial update; nil fields are left alone.
type Settings struct {
	Pacing      *string `json:"pacing,omitempty"`
	HumanTeamID *string `json:"human_team_id,omitempty"`
}

func (c *Client) CreateGame(ctx context.Context, req CreateGameRequest) (types.GameSnapshot, error) {
	var snap types.GameSnapshot
	err := c.do(ctx, http.MethodPost, "/api/games", req, &snap)
	return snap, err
}

func (c *Client) Step(ctx context.Context, gameID string) (types.GameSnapshot, error) {
	return c.gameAction(ctx, gameID, "step")
}

func (c *Client) Pause(ctx context.Context, gameID string) (types.GameSnapshot, error) {
	return c.gameAction(ctx, gameID, "pause")
}

func (c *Client) Resume(ctx context.Context, gameID string) (types.GameSnapshot, error) {
	return c.gameAction(ctx, gameID, "resume")
}

func (c *Client) UpdateSettings(ctx context.Context, gameID string, s Settings) (types.GameSnapshot, error) {
	var snap types.GameSnapshot
	err := c.do(ctx, http.MethodPatch, gamePath(gameID, "settings"), s, &snap)
	return snap, err
}

func (c *Client) gameAction(ctx context.Context, gameID, action string) (types.GameSnapshot, error) {
	var snap types.GameSnapshot
	err := c.do(ctx, http.MethodPost, gamePath(gameID, action), nil, &snap)
	return snap, err
}

type ticksResponse struct {
	Ticks []types.Tick `json:"ticks"`
}

// Ticks fetches the complete tick sequence of one play. Concurrent calls for
// the same play share a single request. Transient failures are retried with
// exponential backoff; 4xx responses are not.
//
// Cancelling ctx returns early for this caller only; the shared request keeps
// running for the others, bounded by FetchTimeout.
//
// The returned slice is owned by the caller, but the ticks' inner slices may
// be shared with other callers and must not be modified.
func (c *Client) Ticks(ctx context.Context, gameID, playID string) ([]types.Tick, error) {
	key := gameID + "/" + playID
	ch := c.ticks.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()
		return c.fetchTicks(fctx, gameID, playID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug("tick fetch coalesced", zap.String("play", key))
		}
		return slices.Clone(res.Val.([]types.Tick)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetchTicks(ctx context.Context, gameID, playID string) ([]types.Tick, error) {
	path := gamePath(gameID, "plays", playID, "ticks")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryDelay

	attempt := 0
	return backoff.Retry(ctx, func() ([]types.Tick, error) {
		attempt++
		var resp ticksResponse
		err := c.do(ctx, http.MethodGet, path, nil, &resp)
		if err == nil {
			return resp.Ticks, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, backoff.Permanent(err)
		}
		c.log.Info("tick fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.cfg.MaxRetries)))
}

func gamePath(gameID string, parts ...string) string {
	segs := make([]string, 0, len(parts)+3)
	segs = append(segs, "", "api", "games", url.PathEscape(gameID))
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("simapi: marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("simapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("simapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("simapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("simapi: decode %s %s: %w", method, path, err)
	}
	return nil
}
