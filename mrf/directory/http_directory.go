package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// ActivityPub content type, as sent in the Accept header when fetching actors.
const ActivityJSONType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// Resolves actors by fetching their ActivityPub actor document from the origin server.
//
// Does no caching; wrap in a CacheDirectory for that.
type HTTPDirectory struct {
	Client *http.Client
	// If not nil, rate-limits outbound actor fetches
	Limiter *rate.Limiter
	// Upper bound on actor document size, in bytes. Zero means 1 MByte.
	MaxBodyBytes int64
	UserAgent    string
}

var _ Directory = (*HTTPDirectory)(nil)

func NewHTTPDirectory(client *http.Client, limiter *rate.Limiter) HTTPDirectory {
	return HTTPDirectory{
		Client:    client,
		Limiter:   limiter,
		UserAgent: "mrf/" + versioninfo.Short(),
	}
}

// Subset of the ActivityPub actor document which is needed here.
type actorDoc struct {
	ID        string `json:"id"`
	Followers string `json:"followers"`
}

func (d *HTTPDirectory) LookupActor(ctx context.Context, actorID string) (*User, error) {
	start := time.Now()
	u, status, err := d.fetchActor(ctx, actorID)
	actorFetches.WithLabelValues(status).Inc()
	actorFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return u, err
}

func (d *HTTPDirectory) fetchActor(ctx context.Context, actorID string) (*User, string, error) {
	u, err := url.Parse(actorID)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, "invalid", fmt.Errorf("%w: not an http(s) actor id: %q", ErrActorNotFound, actorID)
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return nil, "error", fmt.Errorf("%w: %w", ErrActorResolutionFailed, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorID, nil)
	if err != nil {
		return nil, "error", fmt.Errorf("%w: %w", ErrActorResolutionFailed, err)
	}
	req.Header.Set("Accept", ActivityJSONType+", application/activity+json")
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "error", fmt.Errorf("%w: %w", ErrActorResolutionFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, "notfound", fmt.Errorf("%w: %s (HTTP %d)", ErrActorNotFound, actorID, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, "error", fmt.Errorf("%w: HTTP status %d", ErrActorResolutionFailed, resp.StatusCode)
	}

	limit := d.MaxBodyBytes
	if limit <= 0 {
		limit = 1024 * 1024
	}
	var doc actorDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, limit)).Decode(&doc); err != nil {
		return nil, "error", fmt.Errorf("%w: parsing actor document: %w", ErrActorResolutionFailed, err)
	}
	if doc.ID != actorID {
		return nil, "mismatch", fmt.Errorf("%w: actor document id %q does not match %q", ErrActorResolutionFailed, doc.ID, actorID)
	}
	if doc.Followers == "" {
		return nil, "nofollowers", fmt.Errorf("%w: %s has no followers collection", ErrActorNotFound, actorID)
	}
	return &User{ID: doc.ID, FollowerAddress: doc.Followers}, "ok", nil
}

func (d *HTTPDirectory) Purge(ctx context.Context, actorID string) error {
	return nil
}
