package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Gateway opcodes used by the bridge
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Gateway intents: guilds, guild messages, message content
const gatewayIntents = (1 << 0) | (1 << 9) | (1 << 15)

// maxConnectRetries is the number of consecutive failed connection
// attempts allowed before Run gives up.
const maxConnectRetries = 5

// retryDelay is the pause between reconnection attempts. Kept short;
// consecutive-failure counting bounds the total.
const retryDelay = 2 * time.Second

// Event is a gateway dispatch relevant to the bridge
type Event struct {
	Type    string // READY, MESSAGE_CREATE, MESSAGE_UPDATE, MESSAGE_DELETE
	Ready   *Ready
	Message *Message
	Delete  *MessageDelete
}

// payload is the envelope of every gateway frame
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// GatewayConfig holds configuration for creating a Gateway.
type GatewayConfig struct {
	Token      string
	GatewayURL string
	Debug      bool // Log every received frame type
}

// Gateway maintains a websocket connection to the Discord gateway:
// identify, heartbeat at the server's interval, resume after transient
// drops, and dispatch of message events onto the Events channel.
//
// Run owns the connection. Other goroutines must only consume Events.
type Gateway struct {
	token      string
	gatewayURL string
	debug      bool
	events     chan Event

	connReady atomic.Bool

	mutex            sync.Mutex
	sessionID        string
	resumeGatewayURL string
	sequence         int64
}

// NewGateway creates a new gateway client
func NewGateway(config GatewayConfig) (*Gateway, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if config.GatewayURL == "" {
		return nil, fmt.Errorf("discord: gateway URL is required")
	}
	return &Gateway{
		token:      config.Token,
		gatewayURL: config.GatewayURL,
		debug:      config.Debug,
		events:     make(chan Event, 64),
	}, nil
}

// Events returns the channel on which dispatches are delivered. The
// channel closes when Run returns.
func (g *Gateway) Events() <-chan Event {
	return g.events
}

// Run connects to the gateway and serves events until ctx is cancelled
// or too many consecutive connection attempts fail.
func (g *Gateway) Run(ctx context.Context) error {
	defer close(g.events)

	var retries int
	for {
		if ctx.Err() != nil {
			return nil
		}

		g.connReady.Store(false)
		err := g.serveConnection(ctx)
		if ctx.Err() != nil {
			return nil
		}
		// A connection that reached READY resets the retry budget:
		// only consecutive handshake failures are fatal.
		if g.connReady.Load() {
			retries = 0
		}
		retries++
		if retries > maxConnectRetries {
			return fmt.Errorf("discord: gateway failed %d consecutive times: %w", retries, err)
		}
		log.Printf("[Discord] Gateway connection lost (attempt %d/%d): %v", retries, maxConnectRetries, err)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// serveConnection dials the gateway, completes the handshake, and reads
// frames until the connection drops or ctx is cancelled.
func (g *Gateway) serveConnection(ctx context.Context) error {
	dialURL := g.gatewayURL
	g.mutex.Lock()
	resuming := g.sessionID != "" && g.resumeGatewayURL != ""
	if resuming {
		dialURL = g.resumeGatewayURL
	}
	g.mutex.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", dialURL, err)
	}
	defer conn.Close()

	// First frame must be HELLO with the heartbeat interval.
	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected HELLO (op %d), got op %d", opHello, hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}

	if resuming {
		if err := g.sendResume(conn); err != nil {
			return err
		}
		log.Printf("[Discord] Resuming gateway session")
	} else {
		if err := g.sendIdentify(conn); err != nil {
			return err
		}
	}

	// Writes come from both the heartbeat goroutine and (rarely) the
	// read loop; gorilla connections allow one concurrent writer.
	var writeMutex sync.Mutex
	writeJSON := func(v any) error {
		writeMutex.Lock()
		defer writeMutex.Unlock()
		return conn.WriteJSON(v)
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	heartbeatErr := make(chan error, 1)
	go g.heartbeatLoop(heartbeatCtx, writeJSON, time.Duration(helloData.HeartbeatInterval)*time.Millisecond, heartbeatErr)

	// Close the socket when ctx is cancelled so the blocking read returns.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-heartbeatCtx.Done():
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			return err
		default:
		}

		var frame payload
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if frame.S != 0 {
			g.mutex.Lock()
			g.sequence = frame.S
			g.mutex.Unlock()
		}
		if g.debug {
			log.Printf("[Discord] Gateway frame op=%d type=%s", frame.Op, frame.T)
		}

		switch frame.Op {
		case opDispatch:
			g.handleDispatch(ctx, frame)
		case opHeartbeat:
			// Server requested an immediate heartbeat.
			g.mutex.Lock()
			seq := g.sequence
			g.mutex.Unlock()
			if err := writeJSON(payload{Op: opHeartbeat, D: mustMarshal(seq)}); err != nil {
				return fmt.Errorf("write requested heartbeat: %w", err)
			}
		case opHeartbeatACK:
			// Nothing to do; the heartbeat loop only checks for write errors.
		case opReconnect:
			return fmt.Errorf("server requested reconnect")
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(frame.D, &resumable)
			if !resumable {
				g.mutex.Lock()
				g.sessionID = ""
				g.resumeGatewayURL = ""
				g.sequence = 0
				g.mutex.Unlock()
			}
			return fmt.Errorf("invalid session (resumable=%v)", resumable)
		}
	}
}

// handleDispatch decodes a dispatch frame and delivers it on the events
// channel. Unknown dispatch types are ignored.
func (g *Gateway) handleDispatch(ctx context.Context, frame payload) {
	var event Event
	switch frame.T {
	case "READY":
		var ready Ready
		if err := json.Unmarshal(frame.D, &ready); err != nil {
			log.Printf("[Discord] Failed to parse READY: %v", err)
			return
		}
		g.mutex.Lock()
		g.sessionID = ready.SessionID
		g.resumeGatewayURL = ready.ResumeGatewayURL
		g.mutex.Unlock()
		g.connReady.Store(true)
		log.Printf("[Discord] Connected as %s", ready.User.Username)
		event = Event{Type: frame.T, Ready: &ready}
	case "RESUMED":
		g.connReady.Store(true)
		log.Printf("[Discord] Gateway session resumed")
		return
	case "MESSAGE_CREATE", "MESSAGE_UPDATE":
		var message Message
		if err := json.Unmarshal(frame.D, &message); err != nil {
			log.Printf("[Discord] Failed to parse %s: %v", frame.T, err)
			return
		}
		event = Event{Type: frame.T, Message: &message}
	case "MESSAGE_DELETE":
		var deleted MessageDelete
		if err := json.Unmarshal(frame.D, &deleted); err != nil {
			log.Printf("[Discord] Failed to parse MESSAGE_DELETE: %v", err)
			return
		}
		event = Event{Type: frame.T, Delete: &deleted}
	default:
		return
	}

	select {
	case g.events <- event:
	case <-ctx.Done():
	}
}

// heartbeatLoop sends a heartbeat at the server-provided interval until
// cancelled. A write failure is reported once and the loop exits; the
// read loop turns it into a reconnect.
func (g *Gateway) heartbeatLoop(ctx context.Context, writeJSON func(any) error, interval time.Duration, errChan chan<- error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.mutex.Lock()
			seq := g.sequence
			g.mutex.Unlock()
			if err := writeJSON(payload{Op: opHeartbeat, D: mustMarshal(seq)}); err != nil {
				errChan <- fmt.Errorf("write heartbeat: %w", err)
				return
			}
		}
	}
}

func (g *Gateway) sendIdentify(conn *websocket.Conn) error {
	identify := map[string]any{
		"token":   g.token,
		"intents": gatewayIntents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "stoat-bridge",
			"device":  "stoat-bridge",
		},
	}
	if err := conn.WriteJSON(payload{Op: opIdentify, D: mustMarshal(identify)}); err != nil {
		return fmt.Errorf("write identify: %w", err)
	}
	return nil
}

func (g *Gateway) sendResume(conn *websocket.Conn) error {
	g.mutex.Lock()
	resume := map[string]any{
		"token":      g.token,
		"session_id": g.sessionID,
		"seq":        g.sequence,
	}
	g.mutex.Unlock()
	if err := conn.WriteJSON(payload{Op: opResume, D: mustMarshal(resume)}); err != nil {
		return fmt.Errorf("write resume: %w", err)
	}
	return nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
