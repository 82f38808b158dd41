package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheDirectory struct {
	Inner       Directory
	ErrTTL      time.Duration
	userCache   *expirable.LRU[string, UserEntry]
	lookupChans sync.Map
}

type UserEntry struct {
	Updated time.Time
	User    *User
	Err     error
}

var _ Directory = (*CacheDirectory)(nil)

// Capacity of zero means unlimited size. Similarly, ttl of zero means unlimited duration.
func NewCacheDirectory(inner Directory, capacity int, hitTTL, errTTL time.Duration) CacheDirectory {
	return CacheDirectory{
		ErrTTL:    errTTL,
		Inner:     inner,
		userCache: expirable.NewLRU[string, UserEntry](capacity, nil, hitTTL),
	}
}

func (d *CacheDirectory) IsUserStale(e *UserEntry) bool {
	if e.Err != nil && time.Since(e.Updated) > d.ErrTTL {
		return true
	}
	return false
}

func (d *CacheDirectory) updateUser(ctx context.Context, actorID string) UserEntry {
	u, err := d.Inner.LookupActor(ctx, actorID)
	// persist the lookup error, instead of processing it immediately
	entry := UserEntry{
		Updated: time.Now(),
		User:    u,
		Err:     err,
	}
	// context cancellation of this particular caller is not a property of the actor
	if err != nil && ctx.Err() != nil {
		return entry
	}
	d.userCache.Add(actorID, entry)
	return entry
}

func (d *CacheDirectory) LookupActor(ctx context.Context, actorID string) (*User, error) {
	u, _, err := d.LookupActorWithCacheState(ctx, actorID)
	return u, err
}

func (d *CacheDirectory) LookupActorWithCacheState(ctx context.Context, actorID string) (*User, bool, error) {
	entry, ok := d.userCache.Get(actorID)
	if ok && !d.IsUserStale(&entry) {
		userCacheHits.Inc()
		return entry.User, true, entry.Err
	}
	userCacheMisses.Inc()

	// Coalesce multiple requests for the same actor
	res := make(chan struct{})
	val, loaded := d.lookupChans.LoadOrStore(actorID, res)
	if loaded {
		userRequestsCoalesced.Inc()
		// Wait for the result from the pending request
		select {
		case <-val.(chan struct{}):
			// The result should now be in the cache
			entry, ok := d.userCache.Get(actorID)
			if ok && !d.IsUserStale(&entry) {
				return entry.User, false, entry.Err
			}
			return nil, false, fmt.Errorf("%w: user not found in cache after coalesce returned", ErrActorResolutionFailed)
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	newEntry := d.updateUser(ctx, actorID)

	// Cleanup the coalesce map and close the results channel
	d.lookupChans.Delete(actorID)
	// Callers waiting will now get the result from the cache
	close(res)

	if newEntry.Err != nil {
		return nil, false, newEntry.Err
	}
	if newEntry.User != nil {
		return newEntry.User, false, nil
	}
	return nil, false, fmt.Errorf("unexpected control-flow error")
}

func (d *CacheDirectory) Purge(ctx context.Context, actorID string) error {
	d.userCache.Remove(actorID)
	return d.Inner.Purge(ctx, actorID)
}
