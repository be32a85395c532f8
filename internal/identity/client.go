package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"formhub/internal/identity/models"
	platformredis "formhub/internal/platform/redis"
	"formhub/pkg/platform/circuit"
)

// Lookup resolves user ids to display summaries. Implementations never
// return an error; failed lookups degrade to placeholder summaries.
type Lookup interface {
	GetUser(ctx context.Context, id uuid.UUID) models.UserSummary
	GetUsers(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]models.UserSummary
}

const lookupFanOutLimit = 8

// Client talks to the external identity service over HTTP JSON, with an
// optional redis read-through cache and a circuit breaker that short-circuits
// lookups while the service is down.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *platformredis.Client
	cacheTTL time.Duration
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithCache enables the redis read-through cache. A nil cache leaves caching
// disabled.
func WithCache(cache *platformredis.Client, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(breaker *circuit.Breaker) ClientOption {
	return func(c *Client) {
		if breaker != nil {
			c.breaker = breaker
		}
	}
}

// NewClient constructs an identity service client.
func NewClient(baseURL string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 3 * time.Second},
		cacheTTL: 5 * time.Minute,
		breaker:  circuit.New("identity"),
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// GetUser resolves a single user id, falling back to a placeholder summary
// when the lookup fails for any reason.
func (c *Client) GetUser(ctx context.Context, id uuid.UUID) models.UserSummary {
	if summary, ok := c.fromCache(ctx, id); ok {
		return summary
	}
	if c.breaker.IsOpen() {
		return models.PlaceholderUser(id)
	}

	summary, err := c.fetch(ctx, id)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.Warn("identity circuit opened", "error", err)
		}
		c.logger.Debug("identity lookup failed", "user_id", id, "error", err)
		return models.PlaceholderUser(id)
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("identity circuit closed")
	}
	c.toCache(ctx, summary)
	return summary
}

// GetUsers resolves a batch of ids with a bounded parallel fan-out. The
// result always contains an entry for every distinct id.
func (c *Client) GetUsers(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]models.UserSummary {
	distinct := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	var mu sync.Mutex
	out := make(map[uuid.UUID]models.UserSummary, len(distinct))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(lookupFanOutLimit)
	for _, id := range distinct {
		group.Go(func() error {
			summary := c.GetUser(groupCtx, id)
			mu.Lock()
			out[id] = summary
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors; Wait only joins them.
	_ = group.Wait()
	return out
}

func (c *Client) fetch(ctx context.Context, id uuid.UUID) (models.UserSummary, error) {
	url := fmt.Sprintf("%s/api/users/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.UserSummary{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return models.UserSummary{}, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var summary models.UserSummary
		if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
			return models.UserSummary{}, fmt.Errorf("decode user: %w", err)
		}
		summary.ID = id
		return summary, nil
	case resp.StatusCode == http.StatusNotFound:
		// A missing user is an answer, not a service failure.
		return models.PlaceholderUser(id), nil
	default:
		return models.UserSummary{}, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}
}

func cacheKey(id uuid.UUID) string {
	return "identity:user:" + id.String()
}

func (c *Client) fromCache(ctx context.Context, id uuid.UUID) (models.UserSummary, bool) {
	if c.cache == nil {
		return models.UserSummary{}, false
	}
	raw, err := c.cache.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return models.UserSummary{}, false
	}
	var summary models.UserSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return models.UserSummary{}, false
	}
	return summary, true
}

func (c *Client) toCache(ctx context.Context, summary models.UserSummary) {
	if c.cache == nil || summary.Placeholder {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(summary.ID), raw, c.cacheTTL).Err(); err != nil {
		c.logger.Debug("identity cache write failed", "error", err)
	}
}
