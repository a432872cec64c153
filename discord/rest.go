package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// ClientConfig holds configuration for creating a REST Client.
type ClientConfig struct {
	// Token is the bot token, sent as "Bot <token>".
	Token string
	// BaseURL is the REST API base (e.g. "https://discord.com/api/v10").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// SendLimiter throttles webhook executions. If nil, sends are unthrottled.
	SendLimiter *rate.Limiter
}

// Client is a Discord REST API client scoped to the operations the
// bridge needs: channel lookup, webhook management, and webhook
// execution with per-message author overrides.
type Client struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	sendLimiter *rate.Limiter
}

// NewClient creates a new Discord REST client
func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("discord: base URL is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		token:       config.Token,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		httpClient:  httpClient,
		sendLimiter: config.SendLimiter,
	}, nil
}

// GetChannel fetches a channel by ID
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/channels/"+channelID, nil)
	if err != nil {
		return nil, fmt.Errorf("discord: get channel %s: %w", channelID, err)
	}
	var channel Channel
	if err := json.Unmarshal(body, &channel); err != nil {
		return nil, fmt.Errorf("discord: failed to parse channel response: %w", err)
	}
	return &channel, nil
}

// ChannelWebhooks lists the webhooks of a channel
func (c *Client) ChannelWebhooks(ctx context.Context, channelID string) ([]Webhook, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/channels/"+channelID+"/webhooks", nil)
	if err != nil {
		return nil, fmt.Errorf("discord: list webhooks for channel %s: %w", channelID, err)
	}
	var webhooks []Webhook
	if err := json.Unmarshal(body, &webhooks); err != nil {
		return nil, fmt.Errorf("discord: failed to parse webhooks response: %w", err)
	}
	return webhooks, nil
}

// CreateWebhook creates a named webhook in a channel
func (c *Client) CreateWebhook(ctx context.Context, channelID, name string) (*Webhook, error) {
	request := map[string]string{"name": name}
	body, err := c.doRequest(ctx, http.MethodPost, "/channels/"+channelID+"/webhooks", request)
	if err != nil {
		return nil, fmt.Errorf("discord: create webhook in channel %s: %w", channelID, err)
	}
	var webhook Webhook
	if err := json.Unmarshal(body, &webhook); err != nil {
		return nil, fmt.Errorf("discord: failed to parse webhook response: %w", err)
	}
	return &webhook, nil
}

// WebhookMessage is the payload for executing a webhook with a
// per-message author override.
type WebhookMessage struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ExecuteWebhook posts a message through a webhook and returns the
// created message. Uses wait=true so the API returns the message body
// instead of 204, which the bridge needs to link the relayed copy.
func (c *Client) ExecuteWebhook(ctx context.Context, webhook *Webhook, message WebhookMessage) (*Message, error) {
	if webhook.Token == "" {
		return nil, fmt.Errorf("discord: webhook %s has no token", webhook.ID)
	}
	if c.sendLimiter != nil {
		if err := c.sendLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("discord: rate limiter wait: %w", err)
		}
	}

	path := fmt.Sprintf("/webhooks/%s/%s?%s", webhook.ID, webhook.Token, url.Values{"wait": {"true"}}.Encode())
	body, err := c.doRequest(ctx, http.MethodPost, path, message)
	if err != nil {
		return nil, fmt.Errorf("discord: execute webhook %s: %w", webhook.ID, err)
	}
	var created Message
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("discord: failed to parse webhook message response: %w", err)
	}
	return &created, nil
}

// EditWebhookMessage edits a message previously created through the webhook
func (c *Client) EditWebhookMessage(ctx context.Context, webhook *Webhook, messageID, content string) error {
	if webhook.Token == "" {
		return fmt.Errorf("discord: webhook %s has no token", webhook.ID)
	}
	if c.sendLimiter != nil {
		if err := c.sendLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("discord: rate limiter wait: %w", err)
		}
	}

	path := fmt.Sprintf("/webhooks/%s/%s/messages/%s", webhook.ID, webhook.Token, messageID)
	request := map[string]string{"content": content}
	if _, err := c.doRequest(ctx, http.MethodPatch, path, request); err != nil {
		return fmt.Errorf("discord: edit webhook message %s: %w", messageID, err)
	}
	return nil
}

// DeleteWebhookMessage deletes a message previously created through the webhook
func (c *Client) DeleteWebhookMessage(ctx context.Context, webhook *Webhook, messageID string) error {
	if webhook.Token == "" {
		return fmt.Errorf("discord: webhook %s has no token", webhook.ID)
	}
	path := fmt.Sprintf("/webhooks/%s/%s/messages/%s", webhook.ID, webhook.Token, messageID)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("discord: delete webhook message %s: %w", messageID, err)
	}
	return nil
}

// doRequest performs an HTTP request against the REST API and returns
// the response body. On 2xx, returns the body. On 4xx/5xx, returns an
// *APIError decoded from Discord's error shape.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	requestURL := c.baseURL + path

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bot "+c.token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	apiErr := &APIError{StatusCode: response.StatusCode}
	if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil {
		return nil, fmt.Errorf("unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	return responseBody, apiErr
}
