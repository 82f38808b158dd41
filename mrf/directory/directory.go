package directory

import (
	"context"
	"errors"
)

// Minimal view of a user account, as needed by moderation policies.
type User struct {
	// ActivityPub actor id (URL)
	ID string `json:"id"`
	// URL of the actor's followers collection
	FollowerAddress string `json:"followers"`
}

// Lookup of users by ActivityPub actor id.
//
// Some example implementations of this interface:
//   - in-memory fixture (MockDirectory)
//   - local caching layer in front of another directory (CacheDirectory)
//   - fetching actor documents from remote servers (HTTPDirectory)
//   - the social server's own database (DBDirectory)
type Directory interface {
	LookupActor(ctx context.Context, actorID string) (*User, error)

	// Flushes any cache of the indicated actor. If directory is not using caching, can ignore this.
	Purge(ctx context.Context, actorID string) error
}

// Indicates that the lookup completed, but the actor does not exist (or has no followers collection).
var ErrActorNotFound = errors.New("actor not found")

// Indicates that the lookup could not be completed. A wrapped error may provide more context.
var ErrActorResolutionFailed = errors.New("actor resolution failed")
