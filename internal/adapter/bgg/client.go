// Package bgg implements the remote catalog client: the ranked CSV dump,
// per-user owned collections, and chunked detail streaming, with the retry
// and pacing discipline the service requires.
package bgg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heartmarshall/bggcatalog/internal/config"
	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// sleepFunc waits for d or until ctx is done. Injectable so tests can
// observe and skip real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client talks to the remote catalog service.
type Client struct {
	cfg        config.BGGConfig
	httpClient *http.Client
	log        *slog.Logger
	sleep      sleepFunc
}

// NewClient creates a Client from config.
func NewClient(cfg config.BGGConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        logger.With("adapter", "bgg"),
		sleep:      defaultSleep,
	}
}

// get performs one GET with the shared cross-endpoint policy: network
// errors retry exponentially, 429 waits out the rate limit on its own
// budget, 401/403 abort, and an oversize-request 400 surfaces as a data
// error. Any other status is returned to the caller, whose endpoint
// decides how to poll.
func (c *Client) get(ctx context.Context, url string) (int, []byte, error) {
	netAttempt := 0
	rateAttempt := 0

	for {
		status, body, err := c.doOnce(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			netAttempt++
			if netAttempt > c.cfg.MaxRetries {
				return 0, nil, fmt.Errorf("bgg: request failed after %d retries: %w", c.cfg.MaxRetries, err)
			}
			delay := min(time.Duration(1<<netAttempt)*time.Second, c.cfg.MaxBackoff)
			c.log.WarnContext(ctx, "bgg transient error, retrying",
				slog.String("url", url),
				slog.Int("attempt", netAttempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return 0, nil, err
			}
			continue
		}

		switch {
		case status == http.StatusTooManyRequests:
			rateAttempt++
			if rateAttempt > c.cfg.MaxRateRetries {
				return 0, nil, fmt.Errorf("bgg: rate limit persisted after %d retries: %w",
					c.cfg.MaxRateRetries, domain.ErrRateLimited)
			}
			delay := rateLimitDelay(body, rateAttempt)
			c.log.WarnContext(ctx, "bgg rate limited, backing off",
				slog.String("url", url),
				slog.Int("attempt", rateAttempt),
				slog.Duration("delay", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return 0, nil, err
			}
			continue

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return 0, nil, fmt.Errorf("bgg: status %d: %w", status, domain.ErrRemoteFatal)

		case status == http.StatusBadRequest && strings.Contains(strings.ToLower(string(body)), "cannot load more than"):
			return 0, nil, fmt.Errorf("bgg: request exceeds the service's batch limit: %w", domain.ErrDataIntegrity)
		}

		return status, body, nil
	}
}

// doOnce runs a single HTTP round trip. On 429 the Retry-After header is
// smuggled back through the body slot so get can honor it.
func (c *Client) doOnce(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("bgg: create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, []byte(resp.Header.Get("Retry-After")), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("bgg: read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// rateLimitDelay honors an exact Retry-After when the service sends one,
// otherwise backs off linearly up to a minute.
func rateLimitDelay(retryAfter []byte, attempt int) time.Duration {
	if s := strings.TrimSpace(string(retryAfter)); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return min(time.Duration(10*attempt)*time.Second, 60*time.Second)
}

// queuedDelay is the poll interval for queued (202) responses.
func queuedDelay(attempt int) time.Duration {
	return min(time.Duration(5*attempt)*time.Second, 30*time.Second)
}
