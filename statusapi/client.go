package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cvmcloud/deployer/interfaces"
)

// RetryPolicy is the backoff policy applied to rate-limited status requests.
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      int
}

// DefaultRetryPolicy matches the status service's documented rate limits.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: time.Second,
	Multiplier:      2,
	MaxInterval:     30 * time.Second,
	MaxRetries:      5,
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxInterval
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Client talks to the status service.
type Client struct {
	// BaseURL is the service root, without a trailing slash.
	BaseURL string

	// HTTPClient defaults to http.DefaultClient when nil.
	HTTPClient *http.Client

	// Retry overrides DefaultRetryPolicy when non-zero.
	Retry RetryPolicy

	Log *slog.Logger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) retryPolicy() RetryPolicy {
	if c.Retry == (RetryPolicy{}) {
		return DefaultRetryPolicy
	}
	return c.Retry
}

// Info fetches per-application status records for the given app ids.
func (c *Client) Info(ctx context.Context, apps []common.Address) ([]interfaces.AppInfo, error) {
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.Hex())
	}
	infoURL := fmt.Sprintf("%s/info?apps=%s", c.BaseURL, strings.Join(ids, ","))

	resp, err := c.doWithRetry(ctx, infoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &interfaces.NetworkError{Op: "status fetch", URL: infoURL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var infos []interfaces.AppInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("could not parse status response: %w", err)
	}
	return infos, nil
}

// AppStatus fetches the lifecycle status and ip of a single application.
func (c *Client) AppStatus(ctx context.Context, app common.Address) (interfaces.AppLifecycleState, string, error) {
	infos, err := c.Info(ctx, []common.Address{app})
	if err != nil {
		return "", "", err
	}
	for _, info := range infos {
		if info.App == app {
			return info.Status, info.IP, nil
		}
	}
	return "", "", &interfaces.NetworkError{Op: "status fetch",
		Err: fmt.Errorf("app %s missing from response", app.Hex())}
}

// doWithRetry issues the request, retrying only on HTTP 429. The delay
// starts at the policy's initial interval and doubles per attempt up to the
// cap; a server-supplied Retry-After hint overrides the computed delay. After
// the retry budget is exhausted the last response is returned as-is.
func (c *Client) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	policy := c.retryPolicy()
	bo := policy.newBackOff()

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return nil, &interfaces.NetworkError{Op: "status fetch", URL: url, Err: err}
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= policy.MaxRetries {
			return resp, nil
		}

		delay := bo.NextBackOff()
		if hint := retryAfterHint(resp, policy.MaxInterval); hint > 0 {
			delay = hint
		}
		resp.Body.Close()

		if c.Log != nil {
			c.Log.Warn("status service rate limited, backing off",
				"url", url, "attempt", attempt+1, "delay", delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// retryAfterHint parses a Retry-After header, capped at the policy maximum.
func retryAfterHint(resp *http.Response, maxDelay time.Duration) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	hint := time.Duration(seconds) * time.Second
	if hint > maxDelay {
		return maxDelay
	}
	return hint
}
