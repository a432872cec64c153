package bridge

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hannes/stoat-bridge/discord"
	"github.com/hannes/stoat-bridge/stoat"
	"github.com/hannes/stoat-bridge/store"
)

// Content and author-name limits enforced on relayed messages.
const (
	// MaxContentLength caps relayed message content on both platforms.
	MaxContentLength = 2000
	// MaxWebhookUsername caps the username override on Discord webhooks.
	MaxWebhookUsername = 80
	// MaxMasqueradeName caps the masquerade name on Stoat sends.
	MaxMasqueradeName = 32
)

// webhookName is the name given to webhooks the bridge creates.
const webhookName = "Stoat Bridge"

// storeTimeout bounds link-store operations on the relay path.
const storeTimeout = 5 * time.Second

// selfEditTTL is how long a self-edit mark is kept while waiting for
// the platform to emit the matching update event.
const selfEditTTL = time.Minute

// DiscordAPI is the slice of the Discord REST client the relay uses.
type DiscordAPI interface {
	GetChannel(ctx context.Context, channelID string) (*discord.Channel, error)
	ChannelWebhooks(ctx context.Context, channelID string) ([]discord.Webhook, error)
	CreateWebhook(ctx context.Context, channelID, name string) (*discord.Webhook, error)
	ExecuteWebhook(ctx context.Context, webhook *discord.Webhook, message discord.WebhookMessage) (*discord.Message, error)
	EditWebhookMessage(ctx context.Context, webhook *discord.Webhook, messageID, content string) error
	DeleteWebhookMessage(ctx context.Context, webhook *discord.Webhook, messageID string) error
}

// StoatAPI is the slice of the Stoat REST client the relay uses.
type StoatAPI interface {
	FetchChannel(ctx context.Context, channelID string) (*stoat.Channel, error)
	FetchUser(ctx context.Context, userID string) (*stoat.User, error)
	SendMessage(ctx context.Context, channelID, content string, masquerade *stoat.Masquerade) (*stoat.Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	CDNURL() string
}

// RelayConfig holds the collaborators and settings of a Relay.
type RelayConfig struct {
	Discord     DiscordAPI
	Stoat       StoatAPI
	Table       *Table
	Links       store.LinkStore
	Metrics     *Metrics
	LogMessages bool // Log relayed message content
	Sentry      bool // Report relay errors to Sentry
}

// Relay consumes events from both platforms and mirrors messages into
// the paired channel on the other side. Per-message failures are logged
// and counted; they never stop the relay.
type Relay struct {
	discord     DiscordAPI
	stoat       StoatAPI
	table       *Table
	links       store.LinkStore
	metrics     *Metrics
	logMessages bool
	sentry      bool

	mutex       sync.RWMutex
	selfDiscord string
	selfStoat   string
	stoatUsers  map[string]*stoat.User
	selfEdits   map[string]selfEdit
}

// selfEdit counts pending update events expected for a message the
// relay itself edited. Update events carry no author, so suppression
// works by remembering which edits the bridge originated.
type selfEdit struct {
	count int
	at    time.Time
}

// NewRelay creates a new relay
func NewRelay(config RelayConfig) (*Relay, error) {
	if config.Discord == nil || config.Stoat == nil {
		return nil, fmt.Errorf("bridge: both platform clients are required")
	}
	if config.Table == nil {
		return nil, fmt.Errorf("bridge: pair table is required")
	}
	if config.Links == nil {
		return nil, fmt.Errorf("bridge: link store is required")
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Relay{
		discord:     config.Discord,
		stoat:       config.Stoat,
		table:       config.Table,
		links:       config.Links,
		metrics:     metrics,
		logMessages: config.LogMessages,
		sentry:      config.Sentry,
		stoatUsers:  make(map[string]*stoat.User),
		selfEdits:   make(map[string]selfEdit),
	}, nil
}

// Run consumes both event channels until ctx is cancelled or both
// channels close.
func (r *Relay) Run(ctx context.Context, discordEvents <-chan discord.Event, stoatEvents <-chan stoat.Event) error {
	for {
		if discordEvents == nil && stoatEvents == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-discordEvents:
			if !ok {
				discordEvents = nil
				continue
			}
			r.handleDiscordEvent(ctx, event)
		case event, ok := <-stoatEvents:
			if !ok {
				stoatEvents = nil
				continue
			}
			r.handleStoatEvent(ctx, event)
		}
	}
}

func (r *Relay) handleDiscordEvent(ctx context.Context, event discord.Event) {
	switch event.Type {
	case "READY":
		r.mutex.Lock()
		r.selfDiscord = event.Ready.User.ID
		r.mutex.Unlock()
		log.Printf("[Bridge] Discord ready, bridging %d channel pair(s)", r.table.Len())
		r.setupWebhooks(ctx)
	case "MESSAGE_CREATE":
		r.relayDiscordMessage(ctx, event.Message)
	case "MESSAGE_UPDATE":
		r.relayDiscordEdit(ctx, event.Message)
	case "MESSAGE_DELETE":
		r.relayDiscordDelete(ctx, event.Delete)
	}
}

func (r *Relay) handleStoatEvent(ctx context.Context, event stoat.Event) {
	switch event.Type {
	case "Ready":
		r.mutex.Lock()
		r.selfStoat = event.Self.ID
		r.mutex.Unlock()
		r.setupStoatChannels(ctx)
	case "Message":
		r.relayStoatMessage(ctx, event.Message)
	case "MessageUpdate":
		r.relayStoatEdit(ctx, event.Update)
	case "MessageDelete":
		r.relayStoatDelete(ctx, event.Delete)
	}
}

// setupWebhooks ensures each paired Discord channel has a bridge
// webhook, reusing an existing one owned by the bot where possible.
// Failures are logged per channel and do not abort the remaining pairs.
func (r *Relay) setupWebhooks(ctx context.Context) {
	r.mutex.RLock()
	selfID := r.selfDiscord
	r.mutex.RUnlock()

	for _, status := range r.table.Status() {
		channelID := strconv.FormatInt(status.DiscordChannelID, 10)

		channel, err := r.discord.GetChannel(ctx, channelID)
		if err != nil {
			r.reportError(DirectionStoatToDiscord, fmt.Errorf("could not fetch channel %s: %w", channelID, err))
			continue
		}
		log.Printf("[Bridge] Discord: bridging #%s (id=%s)", channel.Name, channel.ID)

		webhooks, err := r.discord.ChannelWebhooks(ctx, channelID)
		if err != nil {
			r.reportError(DirectionStoatToDiscord, fmt.Errorf("could not list webhooks for channel %s: %w", channelID, err))
			continue
		}

		var webhook *discord.Webhook
		for i := range webhooks {
			if webhooks[i].User != nil && webhooks[i].User.ID == selfID && webhooks[i].Token != "" {
				webhook = &webhooks[i]
				log.Printf("[Bridge] Discord: reusing webhook '%s' for channel %s", webhook.Name, channelID)
				break
			}
		}
		if webhook == nil {
			webhook, err = r.discord.CreateWebhook(ctx, channelID, webhookName)
			if err != nil {
				r.reportError(DirectionStoatToDiscord, fmt.Errorf("could not create webhook for channel %s: %w", channelID, err))
				continue
			}
			log.Printf("[Bridge] Discord: created webhook for channel %s", channelID)
		}
		r.table.SetWebhook(status.DiscordChannelID, webhook)
	}
	r.metrics.PairsReady.Set(float64(r.table.ReadyCount()))
}

// setupStoatChannels fetches each paired Stoat channel so sends have a
// confirmed destination. Failures are logged per channel.
func (r *Relay) setupStoatChannels(ctx context.Context) {
	for _, status := range r.table.Status() {
		channel, err := r.stoat.FetchChannel(ctx, status.StoatChannelID)
		if err != nil {
			r.reportError(DirectionDiscordToStoat, fmt.Errorf("could not fetch channel %s: %w", status.StoatChannelID, err))
			continue
		}
		r.table.SetStoatReady(channel.ID)
		log.Printf("[Bridge] Stoat: listening in #%s (id=%s)", channel.Name, channel.ID)
	}
	r.metrics.PairsReady.Set(float64(r.table.ReadyCount()))
}

// relayDiscordMessage mirrors a Discord message into the paired Stoat
// channel under the author's name and avatar.
func (r *Relay) relayDiscordMessage(ctx context.Context, message *discord.Message) {
	if r.table.IsBridgeWebhook(message.WebhookID) {
		return
	}
	channelID, err := strconv.ParseInt(message.ChannelID, 10, 64)
	if err != nil {
		return
	}
	stoatChannelID, ok := r.table.StoatChannel(channelID)
	if !ok {
		return
	}

	content := discordContent(message)
	if content == "" {
		r.metrics.MessagesDropped.WithLabelValues(DirectionDiscordToStoat, DropReasonEmpty).Inc()
		return
	}
	if !r.table.StoatReady(stoatChannelID) {
		log.Printf("[Bridge] Discord -> Stoat: dropped (Stoat channel %s not ready)", stoatChannelID)
		r.metrics.MessagesDropped.WithLabelValues(DirectionDiscordToStoat, DropReasonNotReady).Inc()
		return
	}

	if r.logMessages {
		log.Printf("[Bridge] Discord -> Stoat: %s: %s", message.Author.DisplayName(), content)
	}

	sent, err := r.stoat.SendMessage(ctx, stoatChannelID, truncate(content, MaxContentLength), &stoat.Masquerade{
		Name:   truncate(message.Author.DisplayName(), MaxMasqueradeName),
		Avatar: message.Author.AvatarURL(),
	})
	if err != nil {
		r.reportError(DirectionDiscordToStoat, fmt.Errorf("channel %s: %w", stoatChannelID, err))
		r.metrics.MessagesDropped.WithLabelValues(DirectionDiscordToStoat, DropReasonSendFail).Inc()
		return
	}
	r.metrics.MessagesRelayed.WithLabelValues(DirectionDiscordToStoat).Inc()

	r.storeLink(store.Link{
		DiscordMessageID: message.ID,
		StoatMessageID:   sent.ID,
		DiscordChannelID: channelID,
	})
}

// relayDiscordEdit propagates a Discord message edit to its relayed
// Stoat copy. Messages the bridge never relayed are ignored, as are
// update events caused by the relay's own edits.
func (r *Relay) relayDiscordEdit(ctx context.Context, message *discord.Message) {
	if r.consumeSelfEdit(message.ID) {
		return
	}
	if r.table.IsBridgeWebhook(message.WebhookID) {
		return
	}
	channelID, err := strconv.ParseInt(message.ChannelID, 10, 64)
	if err != nil {
		return
	}
	stoatChannelID, ok := r.table.StoatChannel(channelID)
	if !ok {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	stoatMessageID, found, err := r.links.StoatID(storeCtx, message.ID)
	cancel()
	if err != nil {
		r.reportError(DirectionDiscordToStoat, fmt.Errorf("link lookup for edit: %w", err))
		return
	}
	if !found {
		return
	}

	content := discordContent(message)
	if content == "" {
		return
	}
	if err := r.stoat.EditMessage(ctx, stoatChannelID, stoatMessageID, truncate(content, MaxContentLength)); err != nil {
		r.reportError(DirectionDiscordToStoat, fmt.Errorf("edit message %s: %w", stoatMessageID, err))
		return
	}
	r.markSelfEdit(stoatMessageID)
	r.metrics.EditsRelayed.WithLabelValues(DirectionDiscordToStoat).Inc()
}

// relayDiscordDelete propagates a Discord message deletion.
func (r *Relay) relayDiscordDelete(ctx context.Context, deleted *discord.MessageDelete) {
	channelID, err := strconv.ParseInt(deleted.ChannelID, 10, 64)
	if err != nil {
		return
	}
	stoatChannelID, ok := r.table.StoatChannel(channelID)
	if !ok {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	stoatMessageID, found, err := r.links.StoatID(storeCtx, deleted.ID)
	cancel()
	if err != nil || !found {
		return
	}

	if err := r.stoat.DeleteMessage(ctx, stoatChannelID, stoatMessageID); err != nil {
		r.reportError(DirectionDiscordToStoat, fmt.Errorf("delete message %s: %w", stoatMessageID, err))
		return
	}
	r.metrics.DeletesRelayed.WithLabelValues(DirectionDiscordToStoat).Inc()
	r.deleteLink(deleted.ID)
}

// relayStoatMessage mirrors a Stoat message into the paired Discord
// channel through the channel's webhook.
func (r *Relay) relayStoatMessage(ctx context.Context, message *stoat.Message) {
	r.mutex.RLock()
	selfID := r.selfStoat
	r.mutex.RUnlock()
	if message.AuthorID == selfID {
		return
	}
	discordChannelID, ok := r.table.DiscordChannel(message.ChannelID)
	if !ok {
		return
	}

	content := r.stoatContent(message)
	if content == "" {
		r.metrics.MessagesDropped.WithLabelValues(DirectionStoatToDiscord, DropReasonEmpty).Inc()
		return
	}
	webhook, ok := r.table.Webhook(discordChannelID)
	if !ok {
		log.Printf("[Bridge] Stoat -> Discord: dropped (webhook for Discord channel %d not ready)", discordChannelID)
		r.metrics.MessagesDropped.WithLabelValues(DirectionStoatToDiscord, DropReasonNotReady).Inc()
		return
	}

	author := r.resolveStoatUser(ctx, message.AuthorID)
	if r.logMessages {
		log.Printf("[Bridge] Stoat -> Discord: %s: %s", author.Name(), content)
	}

	sent, err := r.discord.ExecuteWebhook(ctx, webhook, discord.WebhookMessage{
		Content:   truncate(content, MaxContentLength),
		Username:  truncate(author.Name(), MaxWebhookUsername),
		AvatarURL: author.AvatarURL(r.stoat.CDNURL()),
	})
	if err != nil {
		r.reportError(DirectionStoatToDiscord, fmt.Errorf("channel %d: %w", discordChannelID, err))
		r.metrics.MessagesDropped.WithLabelValues(DirectionStoatToDiscord, DropReasonSendFail).Inc()
		return
	}
	r.metrics.MessagesRelayed.WithLabelValues(DirectionStoatToDiscord).Inc()

	r.storeLink(store.Link{
		DiscordMessageID: sent.ID,
		StoatMessageID:   message.ID,
		DiscordChannelID: discordChannelID,
	})
}

// relayStoatEdit propagates a Stoat message edit to its relayed Discord
// copy. Update events caused by the relay's own edits are ignored:
// Stoat updates carry no author, so the self-author check used for
// creates does not apply here.
func (r *Relay) relayStoatEdit(ctx context.Context, update *stoat.MessageUpdate) {
	if r.consumeSelfEdit(update.ID) {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	discordMessageID, found, err := r.links.DiscordID(storeCtx, update.ID)
	cancel()
	if err != nil {
		r.reportError(DirectionStoatToDiscord, fmt.Errorf("link lookup for edit: %w", err))
		return
	}
	if !found || update.Data.Content == "" {
		return
	}
	webhook, ok := r.webhookForStoatMessage(ctx, update.ID, update.ChannelID)
	if !ok {
		return
	}

	if err := r.discord.EditWebhookMessage(ctx, webhook, discordMessageID, truncate(update.Data.Content, MaxContentLength)); err != nil {
		r.reportError(DirectionStoatToDiscord, fmt.Errorf("edit message %s: %w", discordMessageID, err))
		return
	}
	r.markSelfEdit(discordMessageID)
	r.metrics.EditsRelayed.WithLabelValues(DirectionStoatToDiscord).Inc()
}

// relayStoatDelete propagates a Stoat message deletion. Deletions the
// relay performed itself resolve to no link: deleteLink runs before
// the platform's delete event comes back.
func (r *Relay) relayStoatDelete(ctx context.Context, deleted *stoat.MessageDelete) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	discordMessageID, found, err := r.links.DiscordID(storeCtx, deleted.ID)
	cancel()
	if err != nil || !found {
		return
	}

	webhook, ok := r.webhookForStoatMessage(ctx, deleted.ID, deleted.ChannelID)
	if !ok {
		return
	}

	if err := r.discord.DeleteWebhookMessage(ctx, webhook, discordMessageID); err != nil {
		r.reportError(DirectionStoatToDiscord, fmt.Errorf("delete message %s: %w", discordMessageID, err))
		return
	}
	r.metrics.DeletesRelayed.WithLabelValues(DirectionStoatToDiscord).Inc()
	r.deleteLink(deleted.ID)
}

// markSelfEdit records a message ID the relay itself just edited, so
// the platform's resulting update event is not propagated back.
func (r *Relay) markSelfEdit(messageID string) {
	now := time.Now()
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for id, entry := range r.selfEdits {
		if now.Sub(entry.at) > selfEditTTL {
			delete(r.selfEdits, id)
		}
	}
	entry := r.selfEdits[messageID]
	entry.count++
	entry.at = now
	r.selfEdits[messageID] = entry
}

// consumeSelfEdit reports whether an update for messageID came from the
// relay's own edit, consuming one pending mark when it did.
func (r *Relay) consumeSelfEdit(messageID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	entry, ok := r.selfEdits[messageID]
	if !ok {
		return false
	}
	entry.count--
	if entry.count <= 0 {
		delete(r.selfEdits, messageID)
	} else {
		r.selfEdits[messageID] = entry
	}
	return true
}

// webhookForStoatMessage resolves the Discord webhook for a relayed
// message, preferring the channel recorded on the link over the
// event's channel so edits and deletes still land after the pair list
// is reordered between restarts.
func (r *Relay) webhookForStoatMessage(ctx context.Context, messageID, stoatChannelID string) (*discord.Webhook, bool) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	channelID, found, err := r.links.DiscordChannel(storeCtx, messageID)
	cancel()
	if err == nil && found {
		if webhook, ok := r.table.Webhook(channelID); ok {
			return webhook, true
		}
	}
	return r.table.WebhookForStoat(stoatChannelID)
}

// resolveStoatUser resolves a Stoat author through a cache. On fetch
// failure the raw ID stands in as the name so the message still relays.
func (r *Relay) resolveStoatUser(ctx context.Context, userID string) *stoat.User {
	r.mutex.RLock()
	user, ok := r.stoatUsers[userID]
	r.mutex.RUnlock()
	if ok {
		return user
	}

	user, err := r.stoat.FetchUser(ctx, userID)
	if err != nil {
		log.Printf("[Bridge] Could not fetch Stoat user %s: %v", userID, err)
		return &stoat.User{ID: userID, Username: userID}
	}
	r.mutex.Lock()
	r.stoatUsers[userID] = user
	r.mutex.Unlock()
	return user
}

func (r *Relay) storeLink(link store.Link) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.links.StoreLink(ctx, link); err != nil {
		log.Printf("[Bridge] Failed to store message link: %v", err)
	}
}

func (r *Relay) deleteLink(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.links.DeleteLink(ctx, messageID); err != nil {
		log.Printf("[Bridge] Failed to delete message link: %v", err)
	}
}

// reportError logs a per-message relay error and forwards it to Sentry
// when reporting is enabled.
func (r *Relay) reportError(direction string, err error) {
	log.Printf("[Bridge] %s: %v", directionLabel(direction), err)
	if r.sentry {
		sentry.CaptureException(err)
	}
}

func directionLabel(direction string) string {
	switch direction {
	case DirectionDiscordToStoat:
		return "Discord -> Stoat"
	case DirectionStoatToDiscord:
		return "Stoat -> Discord"
	}
	return direction
}

// discordContent returns the relayable text of a Discord message:
// the content plus attachment URLs, one per line.
func discordContent(message *discord.Message) string {
	parts := make([]string, 0, 1+len(message.Attachments))
	if message.Content != "" {
		parts = append(parts, message.Content)
	}
	for _, attachment := range message.Attachments {
		if attachment.URL != "" {
			parts = append(parts, attachment.URL)
		}
	}
	return strings.Join(parts, "\n")
}

// stoatContent returns the relayable text of a Stoat message: the
// content plus attachment CDN URLs, one per line.
func (r *Relay) stoatContent(message *stoat.Message) string {
	parts := make([]string, 0, 1+len(message.Attachments))
	if message.Content != "" {
		parts = append(parts, message.Content)
	}
	for _, file := range message.Attachments {
		parts = append(parts, fmt.Sprintf("%s/attachments/%s/%s", r.stoat.CDNURL(), file.ID, file.Filename))
	}
	return strings.Join(parts, "\n")
}

// truncate limits a string to n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
