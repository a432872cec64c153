package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLinkStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLinkStore()

	link := Link{
		DiscordMessageID: "123456789",
		StoatMessageID:   "01ABCDEF",
		DiscordChannelID: 111111111111,
	}
	if err := s.StoreLink(ctx, link); err != nil {
		t.Fatalf("StoreLink failed: %v", err)
	}

	stoatID, found, err := s.StoatID(ctx, "123456789")
	if err != nil || !found {
		t.Fatalf("StoatID: found=%v, err=%v", found, err)
	}
	if stoatID != "01ABCDEF" {
		t.Errorf("expected stoat ID 01ABCDEF, got %s", stoatID)
	}

	discordID, found, err := s.DiscordID(ctx, "01ABCDEF")
	if err != nil || !found {
		t.Fatalf("DiscordID: found=%v, err=%v", found, err)
	}
	if discordID != "123456789" {
		t.Errorf("expected discord ID 123456789, got %s", discordID)
	}

	// Channel lookup works from either side.
	for _, id := range []string{"123456789", "01ABCDEF"} {
		channelID, found, err := s.DiscordChannel(ctx, id)
		if err != nil || !found {
			t.Fatalf("DiscordChannel(%s): found=%v, err=%v", id, found, err)
		}
		if channelID != 111111111111 {
			t.Errorf("DiscordChannel(%s): expected 111111111111, got %d", id, channelID)
		}
	}

	// Unknown IDs miss without error.
	if _, found, err := s.StoatID(ctx, "missing"); found || err != nil {
		t.Errorf("expected miss for unknown ID, found=%v, err=%v", found, err)
	}

	// Delete by either side removes both directions.
	if err := s.DeleteLink(ctx, "01ABCDEF"); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if _, found, _ := s.StoatID(ctx, "123456789"); found {
		t.Error("expected link removed from discord side")
	}
	if _, found, _ := s.DiscordID(ctx, "01ABCDEF"); found {
		t.Error("expected link removed from stoat side")
	}
}

func TestMemoryLinkStoreCleanup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLinkStore()

	old := Link{
		DiscordMessageID: "1",
		StoatMessageID:   "a",
		DiscordChannelID: 1,
		CreatedAt:        time.Now().Add(-48 * time.Hour),
	}
	fresh := Link{
		DiscordMessageID: "2",
		StoatMessageID:   "b",
		DiscordChannelID: 1,
	}
	if err := s.StoreLink(ctx, old); err != nil {
		t.Fatalf("StoreLink failed: %v", err)
	}
	if err := s.StoreLink(ctx, fresh); err != nil {
		t.Fatalf("StoreLink failed: %v", err)
	}

	removed, err := s.CleanupOldLinks(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldLinks failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, found, _ := s.StoatID(ctx, "1"); found {
		t.Error("expected old link removed")
	}
	if _, found, _ := s.StoatID(ctx, "2"); !found {
		t.Error("expected fresh link retained")
	}
}

// countingStore wraps MemoryLinkStore to count backing lookups, so tests
// can verify the cache-first strategy.
type countingStore struct {
	*MemoryLinkStore
	stoatLookups   int
	discordLookups int
}

func (c *countingStore) StoatID(ctx context.Context, discordMessageID string) (string, bool, error) {
	c.stoatLookups++
	return c.MemoryLinkStore.StoatID(ctx, discordMessageID)
}

func (c *countingStore) DiscordID(ctx context.Context, stoatMessageID string) (string, bool, error) {
	c.discordLookups++
	return c.MemoryLinkStore.DiscordID(ctx, stoatMessageID)
}

func TestCachedLinkStore(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryLinkStore: NewMemoryLinkStore()}
	s := NewCachedLinkStore(backing)

	link := Link{
		DiscordMessageID: "123",
		StoatMessageID:   "abc",
		DiscordChannelID: 42,
	}
	if err := s.StoreLink(ctx, link); err != nil {
		t.Fatalf("StoreLink failed: %v", err)
	}

	// Repeated lookups are served from cache.
	for i := 0; i < 3; i++ {
		stoatID, found, err := s.StoatID(ctx, "123")
		if err != nil || !found || stoatID != "abc" {
			t.Fatalf("StoatID: got %q found=%v err=%v", stoatID, found, err)
		}
	}
	if backing.stoatLookups != 0 {
		t.Errorf("expected 0 backing lookups after StoreLink, got %d", backing.stoatLookups)
	}

	// A cold cache falls through to the backing store, then caches.
	cold := NewCachedLinkStore(backing)
	for i := 0; i < 3; i++ {
		discordID, found, err := cold.DiscordID(ctx, "abc")
		if err != nil || !found || discordID != "123" {
			t.Fatalf("DiscordID: got %q found=%v err=%v", discordID, found, err)
		}
	}
	if backing.discordLookups != 1 {
		t.Errorf("expected 1 backing lookup for cold cache, got %d", backing.discordLookups)
	}

	// Delete evicts both directions.
	if err := s.DeleteLink(ctx, "123"); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if _, found, _ := s.StoatID(ctx, "123"); found {
		t.Error("expected link removed after delete")
	}
	if _, found, _ := s.DiscordID(ctx, "abc"); found {
		t.Error("expected reverse direction removed after delete")
	}
}

func TestCachedLinkStoreMiss(t *testing.T) {
	ctx := context.Background()
	s := NewCachedLinkStore(NewMemoryLinkStore())

	if _, found, err := s.StoatID(ctx, "nope"); found || err != nil {
		t.Errorf("expected miss, found=%v err=%v", found, err)
	}
	if _, found, err := s.DiscordChannel(ctx, "nope"); found || err != nil {
		t.Errorf("expected channel miss, found=%v err=%v", found, err)
	}
}
