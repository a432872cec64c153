package store

import (
	"context"
	"sync"
	"time"
)

// Link joins a relayed message to its source: the Discord message ID and
// the Stoat message ID refer to the same logical message, one side being
// the original and the other the bridged copy. Links are what make edit
// and delete propagation possible.
type Link struct {
	DiscordMessageID string
	StoatMessageID   string
	DiscordChannelID int64
	CreatedAt        time.Time
}

// LinkStore defines the interface for message-link persistence
type LinkStore interface {
	// StoreLink records a Discord<->Stoat message pair
	StoreLink(ctx context.Context, link Link) error

	// StoatID retrieves the Stoat message ID linked to a Discord message
	StoatID(ctx context.Context, discordMessageID string) (string, bool, error)

	// DiscordID retrieves the Discord message ID linked to a Stoat message
	DiscordID(ctx context.Context, stoatMessageID string) (string, bool, error)

	// DiscordChannel retrieves the Discord channel a link belongs to,
	// keyed by either side's message ID
	DiscordChannel(ctx context.Context, messageID string) (int64, bool, error)

	// DeleteLink removes a link, keyed by either side's message ID
	DeleteLink(ctx context.Context, messageID string) error

	// CleanupOldLinks removes links older than the specified duration
	CleanupOldLinks(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close closes the store
	Close() error
}

// MemoryLinkStore implements LinkStore with in-process maps. This is the
// default when the database is disabled; links survive only for the
// process lifetime.
type MemoryLinkStore struct {
	mutex     sync.RWMutex
	byDiscord map[string]Link
	byStoat   map[string]Link
}

// NewMemoryLinkStore creates a new in-memory link store
func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{
		byDiscord: make(map[string]Link),
		byStoat:   make(map[string]Link),
	}
}

// StoreLink records a message pair in both direction maps
func (m *MemoryLinkStore) StoreLink(ctx context.Context, link Link) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.byDiscord[link.DiscordMessageID] = link
	m.byStoat[link.StoatMessageID] = link
	return nil
}

// StoatID retrieves the Stoat message ID linked to a Discord message
func (m *MemoryLinkStore) StoatID(ctx context.Context, discordMessageID string) (string, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	link, ok := m.byDiscord[discordMessageID]
	if !ok {
		return "", false, nil
	}
	return link.StoatMessageID, true, nil
}

// DiscordID retrieves the Discord message ID linked to a Stoat message
func (m *MemoryLinkStore) DiscordID(ctx context.Context, stoatMessageID string) (string, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	link, ok := m.byStoat[stoatMessageID]
	if !ok {
		return "", false, nil
	}
	return link.DiscordMessageID, true, nil
}

// DiscordChannel retrieves the Discord channel a link belongs to
func (m *MemoryLinkStore) DiscordChannel(ctx context.Context, messageID string) (int64, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if link, ok := m.byDiscord[messageID]; ok {
		return link.DiscordChannelID, true, nil
	}
	if link, ok := m.byStoat[messageID]; ok {
		return link.DiscordChannelID, true, nil
	}
	return 0, false, nil
}

// DeleteLink removes a link, keyed by either side's message ID
func (m *MemoryLinkStore) DeleteLink(ctx context.Context, messageID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	link, ok := m.byDiscord[messageID]
	if !ok {
		link, ok = m.byStoat[messageID]
	}
	if !ok {
		return nil
	}
	delete(m.byDiscord, link.DiscordMessageID)
	delete(m.byStoat, link.StoatMessageID)
	return nil
}

// CleanupOldLinks removes links older than the specified duration
func (m *MemoryLinkStore) CleanupOldLinks(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var removed int64
	for id, link := range m.byDiscord {
		if link.CreatedAt.Before(cutoff) {
			delete(m.byDiscord, id)
			delete(m.byStoat, link.StoatMessageID)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store
func (m *MemoryLinkStore) Close() error {
	return nil
}
