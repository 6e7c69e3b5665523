package stomp_ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/charleschow/live-scoring/internal/events"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

const (
	defaultReconnectDelay = 3 * time.Second
	defaultConnectTimeout = 10 * time.Second
	writeWait             = 5 * time.Second
)

// Handler receives every decoded envelope for one topic. It runs on the read
// goroutine, so it must not block.
type Handler = func(events.Envelope)

// Archive records raw MESSAGE bodies. *Store implements it.
type Archive interface {
	Insert(topic, msgType string, raw []byte)
}

type Config struct {
	URL                  string
	Host                 string // STOMP host header, defaults to the URL host
	AuthToken            string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int // 0 = unlimited
	Heartbeat            time.Duration
	ConnectTimeout       time.Duration
}

type Option func(*Channel)

func WithArchive(a Archive) Option { return func(c *Channel) { c.archive = a } }

// WithBus publishes EventChannelStatus on every connect and close.
func WithBus(b *events.Bus) Option { return func(c *Channel) { c.bus = b } }

func WithDialer(d *websocket.Dialer) Option { return func(c *Channel) { c.dialer = d } }

// ConnectionError reports a failed handshake: the dial failed, the broker
// answered CONNECT with ERROR, or the socket closed before CONNECTED.
type ConnectionError struct {
	Op      string
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	b.WriteString("stomp ")
	b.WriteString(e.Op)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type subscription struct {
	id      string
	topic   string
	handler Handler
	active  bool // SUBSCRIBE sent on the current socket
}

// Channel is a STOMP 1.2 client over a raw websocket. It keeps one
// subscription per topic across reconnects.
//
// Gorilla/websocket supports one concurrent writer, so every write happens
// with mu held.
type Channel struct {
	cfg     Config
	dialer  *websocket.Dialer
	archive Archive
	bus     *events.Bus
	flight  singleflight.Group

	mu           sync.Mutex
	conn         *websocket.Conn
	session      uint64 // bumped per socket; stale goroutines compare against it
	epoch        uint64 // bumped per Disconnect; aborts in-flight handshakes
	reconnecting bool
	stop         chan struct{}
	subs         map[string]*subscription // by topic
	byID         map[string]*subscription
	order        []string // registration order
}

func New(cfg Config, opts ...Option) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	c := &Channel{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		stop:   make(chan struct{}),
		subs:   make(map[string]*subscription),
		byID:   make(map[string]*subscription),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Topics returns the registered topics in registration order.
func (c *Channel) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Connect opens the socket and completes the STOMP handshake. Concurrent
// callers share one attempt; calling it while connected is a no-op.
// Every registered topic is subscribed before Connect returns.
//
// The shared attempt is bounded by ConnectTimeout only. A caller whose ctx
// ends stops waiting without aborting the handshake for the others.
func (c *Channel) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan("connect", func() (any, error) {
		if c.IsConnected() {
			return nil, nil
		}
		return nil, c.connect(detached)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) connect(ctx context.Context) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	hb := c.cfg.Heartbeat.Milliseconds()
	connect := newFrame(cmdConnect,
		"accept-version", "1.2",
		"host", c.host(),
		"heart-beat", fmt.Sprintf("%d,%d", hb, hb),
	)
	if c.cfg.AuthToken != "" {
		connect.Headers["Authorization"] = "Bearer " + c.cfg.AuthToken
	}

	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		conn.Close()
		return &ConnectionError{Op: "connect", Err: err}
	}
	connected, err := awaitConnected(conn, deadline)
	if err != nil {
		conn.Close()
		return err
	}
	sendEvery, readWait := negotiate(c.cfg.Heartbeat, connected.Header("heart-beat"))

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		conn.Close()
		return &ConnectionError{Op: "connect", Message: "disconnected during handshake"}
	}
	c.conn = conn
	c.session++
	c.reconnecting = false
	session := c.session
	n := c.flushLocked()
	c.mu.Unlock()

	telemetry.Metrics.WSConnects.Inc()
	telemetry.Infof("[STOMP] connected to %s (%d topics)", c.cfg.URL, n)

	go c.readLoop(conn, session, readWait)
	if sendEvery > 0 {
		go c.heartbeatLoop(session, sendEvery)
	}
	c.publishStatus(true)
	return nil
}

func (c *Channel) host() string {
	if c.cfg.Host != "" {
		return c.cfg.Host
	}
	if u, err := url.Parse(c.cfg.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "/"
}

func awaitConnected(conn *websocket.Conn, deadline time.Time) (Frame, error) {
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return Frame{}, &ConnectionError{Op: "connect", Message: "socket closed before CONNECTED", Err: err}
		}
		frames, err := ParseFrames(data)
		if err != nil {
			return Frame{}, &ConnectionError{Op: "connect", Err: err}
		}
		for _, f := range frames {
			switch f.Command {
			case cmdConnected:
				return f, nil
			case cmdError:
				return Frame{}, &ConnectionError{Op: "connect", Message: errorMessage(f)}
			}
		}
	}
}

func errorMessage(f Frame) string {
	if m := f.Header("message"); m != "" {
		return m
	}
	if body := strings.TrimSpace(string(f.Body)); body != "" {
		return body
	}
	return "broker returned ERROR"
}

// negotiate applies the STOMP heart-beat rules. A zero on either side
// disables that direction. Reads get three missed beats of slack.
func negotiate(local time.Duration, serverHeader string) (sendEvery, readWait time.Duration) {
	cx := int(local.Milliseconds())
	sx, sy := parseHeartBeat(serverHeader)
	if cx > 0 && sy > 0 {
		sendEvery = time.Duration(max(cx, sy)) * time.Millisecond
	}
	if cx > 0 && sx > 0 {
		readWait = 3 * time.Duration(max(cx, sx)) * time.Millisecond
	}
	return sendEvery, readWait
}

// flushLocked subscribes every registered topic in registration order.
// Caller must hold mu.
func (c *Channel) flushLocked() int {
	n := 0
	for _, topic := range c.order {
		s := c.subs[topic]
		if err := c.writeLocked(subscribeFrame(s)); err != nil {
			telemetry.Warnf("[STOMP] subscribe %s failed: %v", topic, err)
			break
		}
		s.active = true
		n++
	}
	telemetry.Metrics.ActiveTopics.Set(float64(n))
	return n
}

func subscribeFrame(s *subscription) Frame {
	return newFrame(cmdSubscribe, "id", s.id, "destination", s.topic, "ack", "auto")
}

// writeLocked sends one frame. Caller must hold mu.
func (c *Channel) writeLocked(f Frame) error {
	if c.conn == nil {
		return fmt.Errorf("stomp: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, f.Marshal())
}

// Subscribe registers h for topic and returns a function that removes it.
// Before a connection exists the subscription is queued and a background
// connect is started. A second Subscribe for the same topic keeps the
// first handler and returns an unsubscribe for the existing subscription.
func (c *Channel) Subscribe(topic string, h Handler) func() {
	c.mu.Lock()
	if s, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		telemetry.Debugf("[STOMP] %s already subscribed", topic)
		return c.unsubscriber(s)
	}

	s := &subscription{id: "sub-" + uuid.NewString(), topic: topic, handler: h}
	c.subs[topic] = s
	c.byID[s.id] = s
	c.order = append(c.order, topic)

	connected := c.conn != nil
	if connected {
		if err := c.writeLocked(subscribeFrame(s)); err != nil {
			// the read loop sees the broken socket and resubscribes on reconnect
			telemetry.Warnf("[STOMP] subscribe %s failed: %v", topic, err)
		} else {
			s.active = true
			telemetry.Metrics.ActiveTopics.Inc()
		}
	}
	c.mu.Unlock()

	if !connected {
		go c.ensureConnected()
	}
	return c.unsubscriber(s)
}

func (c *Channel) unsubscriber(s *subscription) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.subs[s.topic] != s {
			return
		}
		delete(c.subs, s.topic)
		delete(c.byID, s.id)
		c.order = slices.DeleteFunc(c.order, func(t string) bool { return t == s.topic })

		if s.active && c.conn != nil {
			if err := c.writeLocked(newFrame(cmdUnsubscribe, "id", s.id)); err != nil {
				telemetry.Warnf("[STOMP] unsubscribe %s failed: %v", s.topic, err)
			}
			telemetry.Metrics.ActiveTopics.Dec()
		}
		s.active = false
	}
}

// Disconnect unsubscribes everything, sends DISCONNECT and stops any
// reconnect loop. It is safe to call when already disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	close(c.stop)
	c.stop = make(chan struct{})
	c.reconnecting = false
	c.epoch++

	conn := c.conn
	if conn != nil {
		for _, topic := range c.order {
			if s := c.subs[topic]; s.active {
				if err := c.writeLocked(newFrame(cmdUnsubscribe, "id", s.id)); err != nil {
					telemetry.Debugf("[STOMP] unsubscribe %s on disconnect: %v", topic, err)
				}
			}
		}
		if err := c.writeLocked(newFrame(cmdDisconnect)); err != nil {
			telemetry.Debugf("[STOMP] DISCONNECT: %v", err)
		}
		c.conn = nil
		c.session++
	}
	c.subs = make(map[string]*subscription)
	c.byID = make(map[string]*subscription)
	c.order = nil
	c.mu.Unlock()

	telemetry.Metrics.ActiveTopics.Set(0)
	if conn == nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	conn.Close()
	telemetry.Infof("[STOMP] disconnected from %s", c.cfg.URL)
	c.publishStatus(false)
}

func (c *Channel) Close() error {
	c.Disconnect()
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn, session uint64, readWait time.Duration) {
	for {
		if readWait > 0 {
			conn.SetReadDeadline(time.Now().Add(readWait))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(session, err)
			return
		}
		frames, err := ParseFrames(data)
		for _, f := range frames {
			c.dispatch(f)
		}
		if err != nil {
			telemetry.Metrics.WSParseErrors.Inc()
			telemetry.Warnf("[STOMP] dropping malformed frame: %v", err)
		}
	}
}

func (c *Channel) dispatch(f Frame) {
	switch f.Command {
	case cmdMessage:
		telemetry.Metrics.WSMessagesReceived.Inc()

		c.mu.Lock()
		s := c.byID[f.Header("subscription")]
		if s == nil {
			s = c.subs[f.Header("destination")]
		}
		var h Handler
		var topic string
		if s != nil {
			h, topic = s.handler, s.topic
		}
		c.mu.Unlock()

		if h == nil {
			telemetry.Debugf("[STOMP] message for unknown subscription %q", f.Header("subscription"))
			return
		}
		env, err := events.DecodeEnvelope(f.Body)
		if err != nil {
			telemetry.Metrics.WSParseErrors.Inc()
			telemetry.Warnf("[STOMP] dropping unparseable message on %s: %v", topic, err)
			return
		}
		if c.archive != nil {
			c.archive.Insert(topic, string(env.Type), f.Body)
		}
		h(env)
	case cmdError:
		telemetry.Warnf("[STOMP] broker error: %s", errorMessage(f))
	case cmdReceipt:
	default:
		telemetry.Debugf("[STOMP] ignoring %s frame", f.Command)
	}
}

func (c *Channel) handleClose(session uint64, err error) {
	c.mu.Lock()
	if c.session != session || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	for _, s := range c.subs {
		s.active = false
	}
	c.mu.Unlock()

	conn.Close()
	telemetry.Metrics.ActiveTopics.Set(0)
	telemetry.Warnf("[STOMP] connection lost: %v", err)
	c.publishStatus(false)
	c.startReconnect()
}

func (c *Channel) heartbeatLoop(session uint64, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for range t.C {
		c.mu.Lock()
		if c.session != session || c.conn == nil {
			c.mu.Unlock()
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.TextMessage, []byte("\n"))
		c.mu.Unlock()
		if err != nil {
			telemetry.Debugf("[STOMP] heart-beat write: %v", err)
			return
		}
	}
}

// ensureConnected runs the first connect for queued subscriptions and falls
// back to the reconnect loop when it fails.
func (c *Channel) ensureConnected() {
	c.mu.Lock()
	stop, busy := c.stop, c.reconnecting
	c.mu.Unlock()
	if busy {
		return
	}

	ctx, cancel := stopContext(stop)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		telemetry.Warnf("[STOMP] connect failed: %v", err)
		c.startReconnect()
	}
}

func (c *Channel) startReconnect() {
	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	stop := c.stop
	c.mu.Unlock()
	go c.reconnectLoop(stop)
}

// reconnectLoop retries with a fixed delay until connected, stopped by
// Disconnect, or out of attempts.
func (c *Channel) reconnectLoop(stop <-chan struct{}) {
	limit := c.cfg.MaxReconnectAttempts
	for attempt := 1; limit == 0 || attempt <= limit; attempt++ {
		telemetry.Metrics.WSReconnects.Inc()
		telemetry.Warnf("[STOMP] reconnecting (attempt %d) in %s", attempt, c.cfg.ReconnectDelay)
		select {
		case <-stop:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		ctx, cancel := stopContext(stop)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		telemetry.Warnf("[STOMP] reconnect failed: %v", err)
	}

	c.mu.Lock()
	if c.stop == stop {
		c.reconnecting = false
	}
	c.mu.Unlock()
	telemetry.Errorf("[STOMP] giving up after %d reconnect attempts", limit)
}

func stopContext(stop <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (c *Channel) publishStatus(connected bool) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		Type:      events.EventChannelStatus,
		Timestamp: time.Now(),
		Payload:   events.ChannelStatus{Connected: connected},
	})
}
