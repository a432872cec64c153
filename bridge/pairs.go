package bridge

import (
	"fmt"
	"sync"

	"github.com/hannes/stoat-bridge/discord"
)

// Pair is one bridged channel pairing. Position N of the Discord list
// is bridged with position N of the Stoat list.
type Pair struct {
	DiscordChannelID int64  `json:"discord_channel_id"`
	StoatChannelID   string `json:"stoat_channel_id"`
}

// PairStatus is a pair plus its runtime readiness, as reported on the
// admin server.
type PairStatus struct {
	Pair
	WebhookReady bool `json:"webhook_ready"`
	StoatReady   bool `json:"stoat_ready"`
}

// pairState tracks per-pair runtime state: the Discord webhook used for
// Stoat->Discord relaying, and whether the Stoat channel was fetched.
type pairState struct {
	pair       Pair
	webhook    *discord.Webhook
	stoatReady bool
}

// Table is the bidirectional channel pair mapping. Both directions key
// into the same pairState, so readiness updates are visible to both
// relay directions.
type Table struct {
	mutex      sync.RWMutex
	byDiscord  map[int64]*pairState
	byStoat    map[string]*pairState
	webhookIDs map[string]struct{}
	ordered    []*pairState
}

// NewTable builds the pair table from positional channel ID lists.
func NewTable(discordIDs []int64, stoatIDs []string) (*Table, error) {
	if len(discordIDs) != len(stoatIDs) {
		return nil, fmt.Errorf("bridge: channel list length mismatch: %d Discord IDs vs %d Stoat IDs",
			len(discordIDs), len(stoatIDs))
	}
	if len(discordIDs) == 0 {
		return nil, fmt.Errorf("bridge: at least one channel pair is required")
	}

	table := &Table{
		byDiscord:  make(map[int64]*pairState, len(discordIDs)),
		byStoat:    make(map[string]*pairState, len(discordIDs)),
		webhookIDs: make(map[string]struct{}, len(discordIDs)),
	}
	for i := range discordIDs {
		state := &pairState{pair: Pair{
			DiscordChannelID: discordIDs[i],
			StoatChannelID:   stoatIDs[i],
		}}
		table.byDiscord[discordIDs[i]] = state
		table.byStoat[stoatIDs[i]] = state
		table.ordered = append(table.ordered, state)
	}
	return table, nil
}

// Len returns the number of configured pairs.
func (t *Table) Len() int {
	return len(t.ordered)
}

// StoatChannel returns the Stoat channel paired with a Discord channel.
func (t *Table) StoatChannel(discordChannelID int64) (string, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	state, ok := t.byDiscord[discordChannelID]
	if !ok {
		return "", false
	}
	return state.pair.StoatChannelID, true
}

// DiscordChannel returns the Discord channel paired with a Stoat channel.
func (t *Table) DiscordChannel(stoatChannelID string) (int64, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	state, ok := t.byStoat[stoatChannelID]
	if !ok {
		return 0, false
	}
	return state.pair.DiscordChannelID, true
}

// SetWebhook records the webhook used to relay into a Discord channel.
func (t *Table) SetWebhook(discordChannelID int64, webhook *discord.Webhook) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	state, ok := t.byDiscord[discordChannelID]
	if !ok {
		return
	}
	state.webhook = webhook
	t.webhookIDs[webhook.ID] = struct{}{}
}

// Webhook returns the webhook for a Discord channel, if set up.
func (t *Table) Webhook(discordChannelID int64) (*discord.Webhook, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	state, ok := t.byDiscord[discordChannelID]
	if !ok || state.webhook == nil {
		return nil, false
	}
	return state.webhook, true
}

// WebhookForStoat returns the webhook of the Discord channel paired
// with a Stoat channel, if set up.
func (t *Table) WebhookForStoat(stoatChannelID string) (*discord.Webhook, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	state, ok := t.byStoat[stoatChannelID]
	if !ok || state.webhook == nil {
		return nil, false
	}
	return state.webhook, true
}

// IsBridgeWebhook reports whether a webhook ID belongs to the bridge.
// Used to suppress echo: messages the bridge itself posted into Discord
// arrive back on the gateway attributed to these webhooks.
func (t *Table) IsBridgeWebhook(webhookID string) bool {
	if webhookID == "" {
		return false
	}
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	_, ok := t.webhookIDs[webhookID]
	return ok
}

// SetStoatReady marks a Stoat channel as fetched and relayable.
func (t *Table) SetStoatReady(stoatChannelID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if state, ok := t.byStoat[stoatChannelID]; ok {
		state.stoatReady = true
	}
}

// StoatReady reports whether a Stoat channel is ready to receive.
func (t *Table) StoatReady(stoatChannelID string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	state, ok := t.byStoat[stoatChannelID]
	return ok && state.stoatReady
}

// Status returns per-pair readiness in configuration order.
func (t *Table) Status() []PairStatus {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	status := make([]PairStatus, 0, len(t.ordered))
	for _, state := range t.ordered {
		status = append(status, PairStatus{
			Pair:         state.pair,
			WebhookReady: state.webhook != nil,
			StoatReady:   state.stoatReady,
		})
	}
	return status
}

// ReadyCount returns the number of pairs ready in both directions.
func (t *Table) ReadyCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	var count int
	for _, state := range t.ordered {
		if state.webhook != nil && state.stoatReady {
			count++
		}
	}
	return count
}
