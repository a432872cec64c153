package stoat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
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
	return client
}

func TestSendMessageMasqueradeAndNonce(t *testing.T) {
	var gotToken, gotIdempotency string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("x-bot-token")
		gotIdempotency = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Message{ID: "01MSG", ChannelID: "01CHAN"})
	})

	created, err := client.SendMessage(context.Background(), "01CHAN", "hello", &Masquerade{
		Name:   "Alice",
		Avatar: "https://cdn.example/a.png",
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if gotToken != "test-token" {
		t.Errorf("expected x-bot-token header, got %q", gotToken)
	}
	if gotIdempotency == "" {
		t.Error("expected Idempotency-Key header to be set")
	}
	if gotBody["content"] != "hello" {
		t.Errorf("unexpected content: %v", gotBody["content"])
	}
	masquerade, ok := gotBody["masquerade"].(map[string]any)
	if !ok || masquerade["name"] != "Alice" {
		t.Errorf("unexpected masquerade payload: %v", gotBody["masquerade"])
	}
	if created.ID != "01MSG" {
		t.Errorf("expected created message ID 01MSG, got %q", created.ID)
	}
}

func TestSendMessageWithoutMasquerade(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, present := body["masquerade"]; present {
			t.Error("expected no masquerade field")
		}
		json.NewEncoder(w).Encode(Message{ID: "01MSG"})
	})

	if _, err := client.SendMessage(context.Background(), "01CHAN", "plain", nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"type":"MissingPermission"}`))
	})

	_, err := client.FetchChannel(context.Background(), "01CHAN")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Type != "MissingPermission" {
		t.Errorf("unexpected API error: %+v", apiErr)
	}
}

func TestUserName(t *testing.T) {
	testCases := []struct {
		name string
		user User
		want string
	}{
		{name: "display name preferred", user: User{Username: "alice", DisplayName: "Alice A"}, want: "Alice A"},
		{name: "username fallback", user: User{Username: "alice"}, want: "alice"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.user.Name(); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCDNURLDerivation(t *testing.T) {
	client, err := NewClient(ClientConfig{Token: "t", BaseURL: "https://api.stoat.chat"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.CDNURL() != "https://cdn.stoat.chat" {
		t.Errorf("expected derived CDN URL, got %q", client.CDNURL())
	}

	user := User{ID: "01U", Avatar: &File{ID: "01FILE"}}
	if got := user.AvatarURL(client.CDNURL()); got != "https://cdn.stoat.chat/avatars/01FILE" {
		t.Errorf("unexpected avatar URL %q", got)
	}
}
