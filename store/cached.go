package store

import (
	"context"
	"sync"
	"time"
)

// CachedLinkStore wraps a LinkStore with RWMutex-guarded bidirectional
// maps, using a cache-first strategy with database fallback. Message
// IDs are immutable once linked, so cached entries never go stale; a
// DeleteLink evicts both directions.
type CachedLinkStore struct {
	discordToStoat map[string]string
	stoatToDiscord map[string]string
	channels       map[string]int64
	mutex          sync.RWMutex
	db             LinkStore
}

// NewCachedLinkStore creates a cache-first wrapper around a backing store
func NewCachedLinkStore(db LinkStore) *CachedLinkStore {
	return &CachedLinkStore{
		discordToStoat: make(map[string]string),
		stoatToDiscord: make(map[string]string),
		channels:       make(map[string]int64),
		db:             db,
	}
}

// StoreLink records the pair in the backing store and the cache
func (c *CachedLinkStore) StoreLink(ctx context.Context, link Link) error {
	if err := c.db.StoreLink(ctx, link); err != nil {
		return err
	}
	c.mutex.Lock()
	c.discordToStoat[link.DiscordMessageID] = link.StoatMessageID
	c.stoatToDiscord[link.StoatMessageID] = link.DiscordMessageID
	c.channels[link.DiscordMessageID] = link.DiscordChannelID
	c.channels[link.StoatMessageID] = link.DiscordChannelID
	c.mutex.Unlock()
	return nil
}

// StoatID retrieves the Stoat message ID linked to a Discord message,
// checking the cache before the backing store
func (c *CachedLinkStore) StoatID(ctx context.Context, discordMessageID string) (string, bool, error) {
	c.mutex.RLock()
	stoatID, ok := c.discordToStoat[discordMessageID]
	c.mutex.RUnlock()
	if ok {
		return stoatID, true, nil
	}

	stoatID, found, err := c.db.StoatID(ctx, discordMessageID)
	if err != nil || !found {
		return "", false, err
	}

	c.mutex.Lock()
	c.discordToStoat[discordMessageID] = stoatID
	c.stoatToDiscord[stoatID] = discordMessageID
	c.mutex.Unlock()
	return stoatID, true, nil
}

// DiscordID retrieves the Discord message ID linked to a Stoat message,
// checking the cache before the backing store
func (c *CachedLinkStore) DiscordID(ctx context.Context, stoatMessageID string) (string, bool, error) {
	c.mutex.RLock()
	discordID, ok := c.stoatToDiscord[stoatMessageID]
	c.mutex.RUnlock()
	if ok {
		return discordID, true, nil
	}

	discordID, found, err := c.db.DiscordID(ctx, stoatMessageID)
	if err != nil || !found {
		return "", false, err
	}

	c.mutex.Lock()
	c.stoatToDiscord[stoatMessageID] = discordID
	c.discordToStoat[discordID] = stoatMessageID
	c.mutex.Unlock()
	return discordID, true, nil
}

// DiscordChannel retrieves the Discord channel a link belongs to
func (c *CachedLinkStore) DiscordChannel(ctx context.Context, messageID string) (int64, bool, error) {
	c.mutex.RLock()
	channelID, ok := c.channels[messageID]
	c.mutex.RUnlock()
	if ok {
		return channelID, true, nil
	}

	channelID, found, err := c.db.DiscordChannel(ctx, messageID)
	if err != nil || !found {
		return 0, false, err
	}

	c.mutex.Lock()
	c.channels[messageID] = channelID
	c.mutex.Unlock()
	return channelID, true, nil
}

// DeleteLink removes the link from the backing store and evicts both
// cache directions
func (c *CachedLinkStore) DeleteLink(ctx context.Context, messageID string) error {
	if err := c.db.DeleteLink(ctx, messageID); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	stoatID, ok := c.discordToStoat[messageID]
	if ok {
		delete(c.discordToStoat, messageID)
		delete(c.stoatToDiscord, stoatID)
		delete(c.channels, messageID)
		delete(c.channels, stoatID)
		return nil
	}
	discordID, ok := c.stoatToDiscord[messageID]
	if ok {
		delete(c.stoatToDiscord, messageID)
		delete(c.discordToStoat, discordID)
		delete(c.channels, messageID)
		delete(c.channels, discordID)
	}
	return nil
}

// CleanupOldLinks delegates to the backing store and resets the cache.
// Cleanup runs rarely enough that rebuilding the cache lazily is cheaper
// than tracking per-entry ages.
func (c *CachedLinkStore) CleanupOldLinks(ctx context.Context, olderThan time.Duration) (int64, error) {
	removed, err := c.db.CleanupOldLinks(ctx, olderThan)
	if err != nil {
		return removed, err
	}

	c.mutex.Lock()
	c.discordToStoat = make(map[string]string)
	c.stoatToDiscord = make(map[string]string)
	c.channels = make(map[string]int64)
	c.mutex.Unlock()
	return removed, nil
}

// Close closes the backing store
func (c *CachedLinkStore) Close() error {
	return c.db.Close()
}
