package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/pkg/buffer"
)

// Config holds the event stream settings
type Config struct {
	BufferSize   int           // frames queued per client before the oldest is dropped
	PingInterval time.Duration // keepalive ping period
	WriteTimeout time.Duration // deadline for a single frame write
	ReadLimit    int64         // maximum size of a client message

	// CheckOrigin decides whether to accept a connection. Nil accepts any
	// origin.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the default settings
func DefaultConfig() Config {
	return Config{
		BufferSize:   64,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    4096,
	}
}

// Option configures an Output
type Option func(*Output)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Output) { o.logger = logger }
}

// WithMetrics registers the stream metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *Output) { o.registry = registry }
}

// Output streams sheet notifications to websocket clients. It is a
// flow.BatchObserver: the notifications of one flush become one "batch"
// frame. It serves clients as an http.Handler.
type Output struct {
	cfg      Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *Metrics
	upgrader websocket.Upgrader

	// pending is only touched by the sheet's flush
	pending []Event
	seq     atomic.Uint64

	sheet *flow.Sheet

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type client struct {
	id          string
	conn        *websocket.Conn
	outbox      *buffer.Ring[[]byte]
	connectedAt time.Time
	closeOnce   sync.Once
}

var _ flow.BatchObserver = (*Output)(nil)
var _ http.Handler = (*Output)(nil)

// New creates an Output. Zero fields of cfg take their defaults.
func New(cfg Config, opts ...Option) (*Output, error) {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}

	o := &Output{
		cfg:     cfg,
		logger:  slog.Default(),
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "websocket")

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	o.upgrader = websocket.Upgrader{
		CheckOrigin:     checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}

	metrics, err := newMetrics(o.registry)
	if err != nil {
		return nil, errors.Wrap(err, "Output", "New", "register metrics")
	}
	o.metrics = metrics
	return o, nil
}

// Attach observes s. New clients receive a snapshot of s before any batch.
func (o *Output) Attach(s *flow.Sheet) {
	o.sheet = s
	s.AddObserver(o)
}

// Detach stops observing the attached sheet
func (o *Output) Detach() {
	if o.sheet != nil {
		o.sheet.RemoveObserver(o)
	}
}

// ClientCount returns the number of connected clients
func (o *Output) ClientCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.clients)
}

// Seq returns the sequence number of the last broadcast batch
func (o *Output) Seq() uint64 { return o.seq.Load() }

func (o *Output) OnProcessCreated(p *flow.Process) {
	o.pending = append(o.pending, Event{Kind: KindProcessCreated, Process: processInfo(p)})
}

func (o *Output) OnProcessDeleted(p *flow.Process) {
	o.pending = append(o.pending, Event{Kind: KindProcessDeleted, Process: processInfo(p)})
}

func (o *Output) OnPortCreated(port *flow.Port) {
	o.pending = append(o.pending, Event{Kind: KindPortCreated, Port: portInfo(port, true)})
}

func (o *Output) OnPortChanged(port *flow.Port) {
	o.pending = append(o.pending, Event{Kind: KindPortChanged, Port: portInfo(port, true)})
}

func (o *Output) OnPortDeleted(port *flow.Port) {
	o.pending = append(o.pending, Event{Kind: KindPortDeleted, Port: portInfo(port, false)})
}

func (o *Output) OnConnectionCreated(c *flow.Connection) {
	o.pending = append(o.pending, Event{Kind: KindConnectionCreated, Connection: connectionInfo(c)})
}

func (o *Output) OnConnectionDeleted(c *flow.Connection) {
	o.pending = append(o.pending, Event{Kind: KindConnectionDeleted, Connection: connectionInfo(c)})
}

// OnFlushDone broadcasts the collected events as one batch frame
func (o *Output) OnFlushDone() {
	if len(o.pending) == 0 {
		return
	}
	events := o.pending
	o.pending = nil

	seq := o.seq.Add(1)
	frame, err := envelope(TypeBatch, fmt.Sprintf("batch-%d", seq), Batch{Seq: seq, Events: events})
	if err != nil {
		o.logger.Error("Failed to encode event batch", "seq", seq, "error", err)
		o.metrics.recordError("encode")
		return
	}
	o.metrics.recordBatch()
	o.broadcast(frame)
}

func envelope(typ, id string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(MessageEnvelope{
		Type:      typ,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Payload:   data,
	})
}

func (o *Output) broadcast(frame []byte) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, c := range o.clients {
		// the ring never blocks; a full outbox drops its oldest frame
		_ = c.outbox.Write(frame)
	}
}

// ServeHTTP upgrades the request and streams events until the client
// leaves or the output closes
func (o *Output) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logger.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		o.metrics.recordError("connection_upgrade")
		return
	}

	outbox, err := buffer.New[[]byte](o.cfg.BufferSize,
		buffer.WithDropCallback[[]byte](func([]byte) { o.metrics.recordDrop() }))
	if err != nil {
		_ = conn.Close()
		o.metrics.recordError("buffer_creation")
		return
	}
	c := &client{
		id:          uuid.NewString(),
		conn:        conn,
		outbox:      outbox,
		connectedAt: time.Now(),
	}

	if err := o.join(r.Context(), c); err != nil {
		o.logger.Warn("Client could not join", "client_id", c.id, "error", err)
		o.metrics.recordError("join")
		o.removeClient(c, "join_failed")
		return
	}

	o.wg.Add(2)
	go o.writeLoop(c)
	go o.readLoop(c)
}

// join queues the hello and snapshot frames and registers c for batches.
// With an attached sheet this happens between two flushes, so the
// snapshot and the batches that follow it line up.
func (o *Output) join(ctx context.Context, c *client) error {
	register := func() error {
		if err := o.queueGreeting(c); err != nil {
			return err
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return errors.ErrShuttingDown
		}
		o.clients[c.id] = c
		o.metrics.recordConnect(len(o.clients))
		o.logger.Info("Client connected", "client_id", c.id, "remote", c.conn.RemoteAddr().String())
		return nil
	}
	if o.sheet == nil {
		return register()
	}
	return o.sheet.Do(ctx, register)
}

func (o *Output) queueGreeting(c *client) error {
	hello, err := envelope(TypeHello, c.id, Hello{ClientID: c.id, Seq: o.seq.Load()})
	if err != nil {
		return err
	}
	if err := c.outbox.Write(hello); err != nil {
		return err
	}
	return o.queueSnapshot(c)
}

// queueSnapshot must run on the sheet goroutine when a sheet is attached
func (o *Output) queueSnapshot(c *client) error {
	if o.sheet == nil {
		return nil
	}
	frame, err := envelope(TypeSnapshot, fmt.Sprintf("snapshot-%d", o.seq.Load()), o.sheet.ExportGraph())
	if err != nil {
		return err
	}
	return c.outbox.Write(frame)
}

func (o *Output) writeLoop(c *client) {
	defer o.wg.Done()
	defer o.removeClient(c, "write_loop_exit")

	ticker := time.NewTicker(o.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-c.outbox.Ready():
			for _, frame := range c.outbox.ReadBatch(c.outbox.Cap()) {
				if err := o.write(c, frame); err != nil {
					o.logger.Debug("Client write failed", "client_id", c.id, "error", err)
					o.metrics.recordError("write")
					return
				}
			}
			if !ok {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(o.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				o.metrics.recordError("ping")
				return
			}
		case <-o.done:
			return
		}
	}
}

func (o *Output) write(c *client, frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	o.metrics.recordSent(len(frame))
	return nil
}

// readLoop keeps the connection's control frames flowing and answers
// {"type":"snapshot"} requests. Any read error ends the client.
func (o *Output) readLoop(c *client) {
	defer o.wg.Done()
	defer o.removeClient(c, "client_closed")

	c.conn.SetReadLimit(o.cfg.ReadLimit)
	readTimeout := 2 * o.cfg.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg MessageEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			o.reply(c, TypeError, msg.ID, map[string]string{"error": "malformed message"})
			continue
		}
		switch msg.Type {
		case TypeSnapshot:
			if o.sheet == nil {
				o.reply(c, TypeError, msg.ID, map[string]string{"error": "no sheet attached"})
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.WriteTimeout)
			err := o.sheet.Do(ctx, func() error { return o.queueSnapshot(c) })
			cancel()
			if err != nil {
				o.reply(c, TypeError, msg.ID, map[string]string{"error": err.Error()})
			}
		default:
			o.reply(c, TypeError, msg.ID, map[string]string{"error": fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (o *Output) reply(c *client, typ, id string, payload any) {
	frame, err := envelope(typ, id, payload)
	if err == nil {
		_ = c.outbox.Write(frame)
	}
}

func (o *Output) removeClient(c *client, reason string) {
	o.mu.Lock()
	_, present := o.clients[c.id]
	delete(o.clients, c.id)
	remaining := len(o.clients)
	o.mu.Unlock()

	c.close()
	if present {
		o.metrics.recordDisconnect(reason, remaining)
		o.logger.Info("Client disconnected", "client_id", c.id, "reason", reason,
			"connected_for", time.Since(c.connectedAt).String(), "dropped", c.outbox.Stats().Drops)
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		_ = c.conn.Close()
	})
}

// Close disconnects every client and rejects new ones. It waits for the
// client goroutines up to timeout.
func (o *Output) Close(timeout time.Duration) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.done)
	clients := make([]*client, 0, len(o.clients))
	for _, c := range o.clients {
		clients = append(clients, c)
	}
	o.mu.Unlock()

	for _, c := range clients {
		deadline := time.Now().Add(o.cfg.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		c.close()
	}

	waited := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Output", "Close", "wait for client goroutines")
	}
}
