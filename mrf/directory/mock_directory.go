package directory

import (
	"context"
	"sync"
)

// A fake user directory, for use in tests
type MockDirectory struct {
	mu    *sync.RWMutex
	Users map[string]User
}

var _ Directory = (*MockDirectory)(nil)

func NewMockDirectory() MockDirectory {
	return MockDirectory{
		mu:    &sync.RWMutex{},
		Users: make(map[string]User),
	}
}

func (d *MockDirectory) Insert(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Users[u.ID] = u
}

func (d *MockDirectory) LookupActor(ctx context.Context, actorID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.Users[actorID]
	if !ok {
		return nil, ErrActorNotFound
	}
	return &u, nil
}

func (d *MockDirectory) Purge(ctx context.Context, actorID string) error {
	return nil
}
