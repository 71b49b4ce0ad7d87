// Package library maintains a cached view of the server's recently added
// media, feeding the list UI without a server round-trip per page load.
package library

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftworks/playdeck/internal/jellyfin"
)

// Lister fetches recently added items from the media server.
type Lister interface {
	LatestMedia(ctx context.Context, userID, parentID string, limit int) ([]jellyfin.BaseItem, error)
}

// Cache holds the latest-media snapshot for one user.
type Cache struct {
	client Lister
	userID string
	limit  int

	mu        sync.RWMutex
	items     []jellyfin.BaseItem
	fetchedAt time.Time
}

// NewCache creates an empty cache; call Refresh to populate it.
func NewCache(client Lister, userID string, limit int) *Cache {
	return &Cache{
		client: client,
		userID: userID,
		limit:  limit,
	}
}

// Items returns the cached snapshot and when it was fetched. A zero time
// means the cache has never been populated.
func (c *Cache) Items() ([]jellyfin.BaseItem, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]jellyfin.BaseItem, len(c.items))
	copy(items, c.items)
	return items, c.fetchedAt
}

// Refresh fetches the latest media and replaces the snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	items, err := c.client.LatestMedia(ctx, c.userID, "", c.limit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.items = items
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	log.Debug().Int("items", len(items)).Msg("Latest media cache refreshed")
	return nil
}
