package stoat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ClientConfig holds configuration for creating a REST Client.
type ClientConfig struct {
	// Token is the bot token, sent in the x-bot-token header.
	Token string
	// BaseURL is the REST API base (e.g. "https://api.stoat.chat").
	BaseURL string
	// CDNURL is the file CDN base, used to build avatar URLs. Derived
	// from BaseURL when empty.
	CDNURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// SendLimiter throttles message sends. If nil, sends are unthrottled.
	SendLimiter *rate.Limiter
}

// Client is a Stoat REST API client scoped to the operations the
// bridge needs: channel and user lookup, and sending, editing, and
// deleting messages with masquerade author overrides.
type Client struct {
	token       string
	baseURL     string
	cdnURL      string
	httpClient  *http.Client
	sendLimiter *rate.Limiter
}

// NewClient creates a new Stoat REST client
func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("stoat: token is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("stoat: base URL is required")
	}
	cdnURL := config.CDNURL
	if cdnURL == "" {
		cdnURL = strings.Replace(config.BaseURL, "api.", "cdn.", 1)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		token:       config.Token,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		cdnURL:      strings.TrimRight(cdnURL, "/"),
		httpClient:  httpClient,
		sendLimiter: config.SendLimiter,
	}, nil
}

// CDNURL returns the file CDN base URL.
func (c *Client) CDNURL() string {
	return c.cdnURL
}

// FetchChannel fetches a channel by ID
func (c *Client) FetchChannel(ctx context.Context, channelID string) (*Channel, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/channels/"+channelID, nil, "")
	if err != nil {
		return nil, fmt.Errorf("stoat: fetch channel %s: %w", channelID, err)
	}
	var channel Channel
	if err := json.Unmarshal(body, &channel); err != nil {
		return nil, fmt.Errorf("stoat: failed to parse channel response: %w", err)
	}
	return &channel, nil
}

// FetchUser fetches a user by ID
func (c *Client) FetchUser(ctx context.Context, userID string) (*User, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/users/"+userID, nil, "")
	if err != nil {
		return nil, fmt.Errorf("stoat: fetch user %s: %w", userID, err)
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("stoat: failed to parse user response: %w", err)
	}
	return &user, nil
}

// SendMessage sends a message to a channel with an optional masquerade.
// Each send carries a fresh UUID idempotency key so a retried request
// cannot create a duplicate message.
func (c *Client) SendMessage(ctx context.Context, channelID, content string, masquerade *Masquerade) (*Message, error) {
	if c.sendLimiter != nil {
		if err := c.sendLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("stoat: rate limiter wait: %w", err)
		}
	}

	request := map[string]any{"content": content}
	if masquerade != nil {
		request["masquerade"] = masquerade
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/channels/"+channelID+"/messages", request, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("stoat: send message to channel %s: %w", channelID, err)
	}
	var message Message
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("stoat: failed to parse message response: %w", err)
	}
	return &message, nil
}

// EditMessage replaces the content of a previously sent message
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	if c.sendLimiter != nil {
		if err := c.sendLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("stoat: rate limiter wait: %w", err)
		}
	}
	request := map[string]string{"content": content}
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, request, ""); err != nil {
		return fmt.Errorf("stoat: edit message %s: %w", messageID, err)
	}
	return nil
}

// DeleteMessage deletes a previously sent message
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil, ""); err != nil {
		return fmt.Errorf("stoat: delete message %s: %w", messageID, err)
	}
	return nil
}

// doRequest performs an HTTP request against the REST API and returns
// the response body. On 2xx, returns the body. On 4xx/5xx, returns an
// *APIError. idempotencyKey is set as the Idempotency-Key header when
// non-empty.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, idempotencyKey string) ([]byte, error) {
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
	request.Header.Set("x-bot-token", c.token)
	if idempotencyKey != "" {
		request.Header.Set("Idempotency-Key", idempotencyKey)
	}

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
