package nsfwapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fedimod/mrf/mrf/cachestore"
	"github.com/fedimod/mrf/util"

	"github.com/PuerkitoBio/purell"
	"github.com/carlmjohnson/versioninfo"
	"github.com/google/go-querystring/query"
	"github.com/sony/gobreaker"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Cache namespace for classifier scores.
const scoreCacheName = "nsfw-score"

// Upper bound on classifier response size.
const maxResponseBytes = 64 * 1024

var (
	ErrBadStatus         = errors.New("classifier returned non-2xx status")
	ErrMalformedResponse = errors.New("classifier response is not a score")
)

// Score returned by the classifier for a single media URL. Higher is more likely NSFW.
type Classification struct {
	Score float64 `json:"score"`
}

// Failure to get a score for a media URL, for any reason. Policies treat this as "classification unavailable".
type ClassificationError struct {
	URL string
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classifying %s: %v", e.URL, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// Anything which can score media URLs. Implemented by Client; tests may substitute a fake.
//
// Implementations must report every failure to obtain a score (transport, status, timeout, decoding) as a *ClassificationError: the policy treats those as "no verdict" and lets the media through. Any other error is taken as a fault in the caller or implementation, and fails the activity.
type Classifier interface {
	Classify(ctx context.Context, baseURL, mediaURL string, timeout time.Duration) (*Classification, error)
}

// HTTP client for the external NSFW classifier service.
//
// Safe for concurrent use. Concurrent requests for the same media URL are coalesced into a single classifier request.
type Client struct {
	HTTPClient *http.Client
	// If not nil, rate-limits outbound classifier requests
	Limiter *rate.Limiter
	// If not nil, classifier requests are made through this breaker, which fails fast when the classifier is down
	Breaker *gobreaker.CircuitBreaker
	// If not nil, successful scores are cached here
	Cache     cachestore.CacheStore
	UserAgent string
	Logger    *slog.Logger

	group singleflight.Group
}

var _ Classifier = (*Client)(nil)

func NewClient(cache cachestore.CacheStore, limiter *rate.Limiter) *Client {
	logger := slog.Default().With("component", "nsfwapi")
	return &Client{
		HTTPClient: util.RobustHTTPClient(),
		Limiter:    limiter,
		Breaker:    NewBreaker(logger),
		Cache:      cache,
		UserAgent:  "mrf/" + versioninfo.Short(),
		Logger:     logger,
	}
}

// Circuit breaker which opens after five consecutive classifier failures, and probes again after thirty seconds.
func NewBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nsfwapi",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("classifier circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

type classifyParams struct {
	URL string `url:"url"`
}

// Builds the classifier request URL: the base URL with the media URL added as the "url" query parameter.
//
// An empty base path becomes "/". Query parameters already present on the base URL are kept.
func BuildRequestURL(baseURL, mediaURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid classifier URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid classifier URL: %q", baseURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	params, err := query.Values(classifyParams{URL: mediaURL})
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Cache key for a (classifier, media) pair. Media URLs are normalized first, so trivially different spellings share an entry.
func scoreCacheKey(baseURL, mediaURL string) string {
	norm, err := purell.NormalizeURLString(mediaURL, purell.FlagsSafe|purell.FlagRemoveFragment)
	if err != nil {
		norm = mediaURL
	}
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(baseURL+"\n"+norm)))
}

// Scores a single media URL. All failures are returned as *ClassificationError.
//
// If timeout is positive, the whole classification (including rate-limit waits and retries) is bounded by it.
func (c *Client) Classify(ctx context.Context, baseURL, mediaURL string, timeout time.Duration) (*Classification, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	key := scoreCacheKey(baseURL, mediaURL)
	if cl := c.cachedScore(ctx, key); cl != nil {
		classifierCacheHits.Inc()
		return cl, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if c.Breaker == nil {
			return c.fetch(ctx, baseURL, mediaURL)
		}
		return c.Breaker.Execute(func() (any, error) {
			return c.fetch(ctx, baseURL, mediaURL)
		})
	})
	if err != nil {
		classifierFailures.WithLabelValues(failureCause(err)).Inc()
		return nil, &ClassificationError{URL: mediaURL, Err: err}
	}
	cl := v.(*Classification)

	if c.Cache != nil {
		val := strconv.FormatFloat(cl.Score, 'g', -1, 64)
		if err := c.Cache.Set(ctx, scoreCacheName, key, val); err != nil {
			c.logger().Warn("failed to cache classifier score", "url", mediaURL, "err", err)
		}
	}
	return cl, nil
}

func (c *Client) cachedScore(ctx context.Context, key string) *Classification {
	if c.Cache == nil {
		return nil
	}
	val, err := c.Cache.Get(ctx, scoreCacheName, key)
	if err != nil {
		c.logger().Warn("score cache lookup failed", "err", err)
		return nil
	}
	if val == "" {
		return nil
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil
	}
	return &Classification{Score: score}
}

func (c *Client) fetch(ctx context.Context, baseURL, mediaURL string) (*Classification, error) {
	reqURL, err := BuildRequestURL(baseURL, mediaURL)
	if err != nil {
		return nil, err
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	start := time.Now()
	defer func() {
		classifierDuration.Observe(time.Since(start).Seconds())
	}()

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		classifierCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	classifierCount.WithLabelValues(fmt.Sprint(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var body struct {
		Score *float64 `json:"score"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if body.Score == nil {
		return nil, fmt.Errorf("%w: missing score field", ErrMalformedResponse)
	}
	if !(*body.Score >= 0 && *body.Score <= 1) {
		return nil, fmt.Errorf("%w: score out of range: %v", ErrMalformedResponse, *body.Score)
	}
	return &Classification{Score: *body.Score}, nil
}

func failureCause(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrBadStatus):
		return "status"
	case errors.Is(err, ErrMalformedResponse):
		return "decode"
	}
	return "transport"
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
