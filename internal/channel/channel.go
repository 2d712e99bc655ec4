package channel

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/utils/clock"

	"surveyflow/internal/state"
	"surveyflow/internal/survey"
)

const (
	defaultPingInterval   = 30 * time.Second
	defaultReconnectDelay = 2 * time.Second
	defaultGraceDelay     = 3 * time.Second
	defaultMaxReconnects  = 5
)

// connFailedMessage is surfaced as the terminal error once the reconnect
// budget is exhausted.
const connFailedMessage = "connection failed after multiple attempts"

// frame is one discrete message on the progress stream.
type frame struct {
	Type     string `json:"type"`
	Step     string `json:"step,omitempty"`
	Percent  int    `json:"percent,omitempty"`
	Message  string `json:"message,omitempty"`
	SurveyID string `json:"survey_id,omitempty"`
}

// Dialer abstracts websocket dialing so tests can count attempts or point at
// httptest servers.
type Dialer interface {
	Dial(urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options configures a Channel. URL and Store are required; everything else
// has working defaults.
type Options struct {
	URL    string
	Header http.Header
	Store  *state.Store

	// OnCompleted is invoked asynchronously, exactly once, with the survey ID
	// from the first completed frame (the artifact fetch hook).
	OnCompleted func(surveyID string)

	Dialer         Dialer
	Clock          clock.WithTicker
	MaxReconnects  int
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	GraceDelay     time.Duration
}

// Channel owns a single websocket connection per workflow: it translates
// inbound frames into state mutations and keeps the connection alive across
// transient failures. Callers observe progress purely through the state
// store; the transport is never exposed.
type Channel struct {
	url    string
	header http.Header
	store  *state.Store

	onCompleted    func(string)
	dialer         Dialer
	clock          clock.WithTicker
	maxReconnects  int
	reconnectDelay time.Duration
	pingInterval   time.Duration
	graceDelay     time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	writeMu    sync.Mutex
	retries    int
	localClose bool
	closed     bool

	stopCh chan struct{}
	done   chan struct{}
}

// Open starts a channel for the given workflow stream and returns immediately;
// connection management runs in the background until a terminal state or
// Close.
func Open(opts Options) (*Channel, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("channel: URL is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("channel: state store is required")
	}

	c := &Channel{
		url:            opts.URL,
		header:         opts.Header,
		store:          opts.Store,
		onCompleted:    opts.OnCompleted,
		dialer:         opts.Dialer,
		clock:          opts.Clock,
		maxReconnects:  opts.MaxReconnects,
		reconnectDelay: opts.ReconnectDelay,
		pingInterval:   opts.PingInterval,
		graceDelay:     opts.GraceDelay,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.maxReconnects <= 0 {
		c.maxReconnects = defaultMaxReconnects
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = defaultReconnectDelay
	}
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}
	if c.graceDelay <= 0 {
		c.graceDelay = defaultGraceDelay
	}

	go c.run()
	return c, nil
}

// Done returns a channel closed when connection management has stopped.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close tears the channel down: the connection is closed with a normal
// closure code and all background work stops. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.localClose = true
	conn := c.conn
	c.mu.Unlock()

	close(c.stopCh)
	if conn != nil {
		c.closeConn(conn, "client closing")
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// run is the connection management loop: dial, pump frames, and decide
// whether the resulting closure warrants a reconnect.
func (c *Channel) run() {
	defer close(c.done)

	for {
		if c.isClosed() {
			return
		}

		conn, _, err := c.dialer.Dial(c.url, c.header)
		if err != nil {
			log.Printf("[channel] dial %s: %v", c.url, err)
			if !c.waitReconnect() {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.localClose = false
		c.retries = 0 // successful (re)connect resets the budget
		c.mu.Unlock()

		stopPing := make(chan struct{})
		go c.pingLoop(conn, stopPing)

		readErr := c.readLoop(conn)
		close(stopPing)
		conn.Close()

		c.mu.Lock()
		wasLocal := c.localClose
		c.conn = nil
		c.mu.Unlock()

		snap := c.store.Snapshot()
		if snap.Status == survey.StatusCompleted {
			// Graceful terminal close; nothing to retry.
			return
		}
		if c.isClosed() {
			return
		}

		abnormal := !wasLocal && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure)
		if abnormal || snap.Status == survey.StatusInProgress {
			log.Printf("[channel] connection lost (%v), status %s", readErr, snap.Status)
			if !c.waitReconnect() {
				return
			}
			continue
		}
		return
	}
}

// waitReconnect consumes one unit of retry budget and waits out the fixed
// reconnect delay. It returns false when the budget is exhausted (terminal
// failure) or the channel was closed while waiting.
func (c *Channel) waitReconnect() bool {
	c.mu.Lock()
	c.retries++
	attempt := c.retries
	c.mu.Unlock()

	if attempt > c.maxReconnects {
		log.Printf("[channel] giving up after %d reconnect attempts", c.maxReconnects)
		c.store.SetFailed(connFailedMessage)
		return false
	}

	log.Printf("[channel] reconnecting in %v (attempt %d/%d)", c.reconnectDelay, attempt, c.maxReconnects)
	t := c.clock.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-t.C():
		return true
	case <-c.stopCh:
		return false
	}
}

// readLoop pumps frames off the connection in arrival order until it errors.
func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Printf("[channel] dropping malformed frame: %v", err)
			continue
		}

		switch f.Type {
		case "progress":
			c.store.ApplyProgress(f.Step, f.Percent, f.Message)
		case "paused":
			c.store.SetPaused(f.Message)
		case "completed":
			c.handleCompleted(conn, f.SurveyID)
		case "error":
			c.store.SetFailed(f.Message)
			c.closeConn(conn, "workflow error")
		case "ping":
			c.writeFrame(conn, frame{Type: "pong"})
		case "pong":
			// keep-alive ack
		default:
			log.Printf("[channel] unknown frame type %q", f.Type)
		}
	}
}

// handleCompleted records terminal success and enters the draining phase: the
// artifact fetch fires exactly once (deduped on the survey ID already being
// set) and the transport is closed after a grace delay so observers can
// render the completion first.
func (c *Channel) handleCompleted(conn *websocket.Conn, surveyID string) {
	first := c.store.SetCompleted(surveyID)
	if first && c.onCompleted != nil {
		go c.onCompleted(surveyID)
	}

	go func() {
		t := c.clock.NewTimer(c.graceDelay)
		defer t.Stop()
		select {
		case <-t.C():
		case <-c.stopCh:
		}
		c.closeConn(conn, "completed")
	}()
}

// pingLoop emits an application-level ping on a fixed interval while the
// connection is open. Idle transports are silently dropped by some
// intermediaries otherwise.
func (c *Channel) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := c.clock.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if err := c.writeFrame(conn, frame{Type: "ping"}); err != nil {
				return
			}
		case <-stop:
			return
		case <-c.stopCh:
			return
		}
	}
}

func (c *Channel) writeFrame(conn *websocket.Conn, f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(f)
}

// closeConn initiates a normal closure from our side and marks it local so
// the run loop does not mistake it for a transport failure.
func (c *Channel) closeConn(conn *websocket.Conn, reason string) {
	c.mu.Lock()
	c.localClose = true
	c.mu.Unlock()

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
}
