package stoat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxConnectRetries is the number of consecutive failed connection
// attempts allowed before Run gives up.
const maxConnectRetries = 5

// retryDelay is the pause between reconnection attempts.
const retryDelay = 2 * time.Second

// pingInterval is how often the client pings the event socket. The
// server drops connections that go quiet for much longer than this.
const pingInterval = 30 * time.Second

// Event is an event-socket frame relevant to the bridge
type Event struct {
	Type    string // Ready, Message, MessageUpdate, MessageDelete
	Self    *User  // set on Ready
	Message *Message
	Update  *MessageUpdate
	Delete  *MessageDelete
}

// frame is the envelope of every event-socket message. Payload fields
// of the concrete event types sit alongside "type" at the top level, so
// decoding happens in two passes: type first, then the full payload.
type frame struct {
	Type string `json:"type"`
}

// SocketConfig holds configuration for creating a Socket.
type SocketConfig struct {
	Token     string
	EventsURL string
	Debug     bool // Log every received frame type
}

// Socket maintains a websocket connection to the Stoat event stream:
// authenticate, ping keepalive, reconnect after transient drops, and
// delivery of message events onto the Events channel.
type Socket struct {
	token     string
	eventsURL string
	debug     bool
	events    chan Event

	mutex sync.Mutex
	ready bool
}

// NewSocket creates a new event socket client
func NewSocket(config SocketConfig) (*Socket, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("stoat: token is required")
	}
	if config.EventsURL == "" {
		return nil, fmt.Errorf("stoat: events URL is required")
	}
	return &Socket{
		token:     config.Token,
		eventsURL: config.EventsURL,
		debug:     config.Debug,
		events:    make(chan Event, 64),
	}, nil
}

// Events returns the channel on which events are delivered. The channel
// closes when Run returns.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Run connects to the event socket and serves events until ctx is
// cancelled or too many consecutive connection attempts fail.
func (s *Socket) Run(ctx context.Context) error {
	defer close(s.events)

	var retries int
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.mutex.Lock()
		s.ready = false
		s.mutex.Unlock()

		err := s.serveConnection(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.mutex.Lock()
		if s.ready {
			retries = 0
		}
		s.mutex.Unlock()
		retries++
		if retries > maxConnectRetries {
			return fmt.Errorf("stoat: event socket failed %d consecutive times: %w", retries, err)
		}
		log.Printf("[Stoat] Event socket connection lost (attempt %d/%d): %v", retries, maxConnectRetries, err)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// serveConnection dials the event socket, authenticates, and reads
// frames until the connection drops or ctx is cancelled.
func (s *Socket) serveConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.eventsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.eventsURL, err)
	}
	defer conn.Close()

	var writeMutex sync.Mutex
	writeJSON := func(v any) error {
		writeMutex.Lock()
		defer writeMutex.Unlock()
		return conn.WriteJSON(v)
	}

	if err := writeJSON(map[string]string{"type": "Authenticate", "token": s.token}); err != nil {
		return fmt.Errorf("write authenticate: %w", err)
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	pingErr := make(chan error, 1)
	go s.pingLoop(pingCtx, writeJSON, pingErr)

	// Close the socket when ctx is cancelled so the blocking read returns.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-pingCtx.Done():
		}
	}()

	for {
		select {
		case err := <-pingErr:
			return err
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		var envelope frame
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.Printf("[Stoat] Failed to parse frame envelope: %v", err)
			continue
		}
		if s.debug {
			log.Printf("[Stoat] Event frame type=%s", envelope.Type)
		}

		switch envelope.Type {
		case "Authenticated":
			log.Printf("[Stoat] Authenticated")
		case "Pong":
			// Keepalive reply; nothing to do.
		case "Error":
			var errFrame struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(data, &errFrame)
			return fmt.Errorf("server error frame: %s", errFrame.Error)
		default:
			s.handleEvent(ctx, envelope.Type, data)
		}
	}
}

// handleEvent decodes a non-protocol frame and delivers it on the
// events channel. Unknown event types are ignored.
func (s *Socket) handleEvent(ctx context.Context, eventType string, data []byte) {
	var event Event
	switch eventType {
	case "Ready":
		var ready struct {
			Users []User `json:"users"`
		}
		if err := json.Unmarshal(data, &ready); err != nil {
			log.Printf("[Stoat] Failed to parse Ready: %v", err)
			return
		}
		var self *User
		for i := range ready.Users {
			if ready.Users[i].Relationship == "User" {
				self = &ready.Users[i]
				break
			}
		}
		if self == nil {
			log.Printf("[Stoat] Ready frame carried no own user")
			return
		}
		s.mutex.Lock()
		s.ready = true
		s.mutex.Unlock()
		log.Printf("[Stoat] Connected as %s", self.Username)
		event = Event{Type: eventType, Self: self}
	case "Message":
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			log.Printf("[Stoat] Failed to parse Message: %v", err)
			return
		}
		event = Event{Type: eventType, Message: &message}
	case "MessageUpdate":
		var update MessageUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			log.Printf("[Stoat] Failed to parse MessageUpdate: %v", err)
			return
		}
		event = Event{Type: eventType, Update: &update}
	case "MessageDelete":
		var deleted MessageDelete
		if err := json.Unmarshal(data, &deleted); err != nil {
			log.Printf("[Stoat] Failed to parse MessageDelete: %v", err)
			return
		}
		event = Event{Type: eventType, Delete: &deleted}
	default:
		return
	}

	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// pingLoop sends a keepalive ping every pingInterval until cancelled.
func (s *Socket) pingLoop(ctx context.Context, writeJSON func(any) error, errChan chan<- error) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(map[string]any{"type": "Ping", "data": time.Now().Unix()}); err != nil {
				errChan <- fmt.Errorf("write ping: %w", err)
				return
			}
		}
	}
}
