package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		Token:   "test-token",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestGetChannelAuthHeader(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Channel{ID: "111", Name: "general"})
	})

	channel, err := client.GetChannel(context.Background(), "111")
	if err != nil {
		t.Fatalf("GetChannel failed: %v", err)
	}
	if gotAuth != "Bot test-token" {
		t.Errorf("expected 'Bot test-token' auth header, got %q", gotAuth)
	}
	if channel.Name != "general" {
		t.Errorf("expected channel name 'general', got %q", channel.Name)
	}
}

func TestExecuteWebhook(t *testing.T) {
	var gotPath string
	var gotBody WebhookMessage
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("expected wait=true query parameter")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Message{ID: "999", ChannelID: "111"})
	})

	webhook := &Webhook{ID: "500", Token: "hook-token"}
	created, err := client.ExecuteWebhook(context.Background(), webhook, WebhookMessage{
		Content:   "hello",
		Username:  "alice",
		AvatarURL: "https://cdn.example/a.png",
	})
	if err != nil {
		t.Fatalf("ExecuteWebhook failed: %v", err)
	}
	if gotPath != "/webhooks/500/hook-token" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody.Content != "hello" || gotBody.Username != "alice" {
		t.Errorf("unexpected payload: %+v", gotBody)
	}
	if created.ID != "999" {
		t.Errorf("expected created message ID 999, got %q", created.ID)
	}
}

func TestExecuteWebhookRequiresToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.ExecuteWebhook(context.Background(), &Webhook{ID: "500"}, WebhookMessage{Content: "x"})
	if err == nil {
		t.Fatal("expected an error for webhook without token")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":0,"message":"You are being rate limited.","retry_after":1.25}`))
	})

	_, err := client.GetChannel(context.Background(), "111")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if !apiErr.IsRateLimit() {
		t.Errorf("expected rate limit error, got status %d", apiErr.StatusCode)
	}
	if apiErr.RetryAfter != 1.25 {
		t.Errorf("expected retry_after 1.25, got %v", apiErr.RetryAfter)
	}
}

func TestCreateWebhook(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Stoat Bridge" {
			t.Errorf("expected webhook name 'Stoat Bridge', got %q", body["name"])
		}
		json.NewEncoder(w).Encode(Webhook{ID: "42", Name: body["name"], Token: "tok"})
	})

	webhook, err := client.CreateWebhook(context.Background(), "111", "Stoat Bridge")
	if err != nil {
		t.Fatalf("CreateWebhook failed: %v", err)
	}
	if webhook.ID != "42" || webhook.Token != "tok" {
		t.Errorf("unexpected webhook: %+v", webhook)
	}
}
