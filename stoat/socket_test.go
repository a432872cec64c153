package stoat

import (
	"context"
	"testing"
)

func newTestSocket(t *testing.T) *Socket {
	t.Helper()
	s, err := NewSocket(SocketConfig{Token: "t", EventsURL: "wss://example"})
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	return s
}

func TestHandleEventReadyFindsSelf(t *testing.T) {
	s := newTestSocket(t)

	raw := []byte(`{
		"type": "Ready",
		"users": [
			{"_id": "01OTHER", "username": "someone", "relationship": "None"},
			{"_id": "01SELF", "username": "bridge-bot", "relationship": "User"}
		]
	}`)
	s.handleEvent(context.Background(), "Ready", raw)

	select {
	case event := <-s.Events():
		if event.Type != "Ready" {
			t.Errorf("expected Ready, got %s", event.Type)
		}
		if event.Self == nil || event.Self.ID != "01SELF" {
			t.Fatalf("expected own user 01SELF, got %+v", event.Self)
		}
	default:
		t.Fatal("expected an event on the channel")
	}

	s.mutex.Lock()
	ready := s.ready
	s.mutex.Unlock()
	if !ready {
		t.Error("expected ready flag set after Ready")
	}
}

func TestHandleEventMessage(t *testing.T) {
	s := newTestSocket(t)

	raw := []byte(`{
		"type": "Message",
		"_id": "01MSG",
		"channel": "01CHAN",
		"author": "01USER",
		"content": "hi there"
	}`)
	s.handleEvent(context.Background(), "Message", raw)

	select {
	case event := <-s.Events():
		if event.Message == nil {
			t.Fatal("expected message payload")
		}
		if event.Message.ID != "01MSG" || event.Message.AuthorID != "01USER" {
			t.Errorf("unexpected message: %+v", event.Message)
		}
	default:
		t.Fatal("expected an event on the channel")
	}
}

func TestHandleEventMessageUpdateAndDelete(t *testing.T) {
	s := newTestSocket(t)

	s.handleEvent(context.Background(), "MessageUpdate", []byte(`{
		"type": "MessageUpdate",
		"id": "01MSG",
		"channel": "01CHAN",
		"data": {"content": "edited"}
	}`))
	s.handleEvent(context.Background(), "MessageDelete", []byte(`{
		"type": "MessageDelete",
		"id": "01MSG",
		"channel": "01CHAN"
	}`))

	update := <-s.Events()
	if update.Update == nil || update.Update.Data.Content != "edited" {
		t.Errorf("unexpected update event: %+v", update)
	}
	deleted := <-s.Events()
	if deleted.Delete == nil || deleted.Delete.ID != "01MSG" {
		t.Errorf("unexpected delete event: %+v", deleted)
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	s := newTestSocket(t)

	s.handleEvent(context.Background(), "ChannelStartTyping", []byte(`{"type":"ChannelStartTyping"}`))

	select {
	case event := <-s.Events():
		t.Fatalf("expected no event, got %+v", event)
	default:
	}
}
