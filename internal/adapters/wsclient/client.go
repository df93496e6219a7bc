// Package wsclient is the client side of the signaling transport: one
// WebSocket with typed message handlers and automatic reconnect.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var (
	ErrNotConnected    = errors.New("wsclient: not connected")
	ErrClosed          = errors.New("wsclient: closed")
	ErrReconnectFailed = errors.New("wsclient: reconnect attempts exhausted")
)

type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	SendBuffer        int
	// ReadTimeout drops a connection that has been silent this long; server
	// pings count as traffic.
	ReadTimeout time.Duration
	Dialer      *websocket.Dialer
}

type Client struct {
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.RWMutex
	conn         *conn
	started      bool
	nextID       int
	handlers     map[string]map[int]func(data []byte)
	onConnect    []func()
	onDisconnect []func(error)
}

func New(opts Options) *Client {
	if opts.ReconnectAttempts < 1 {
		opts.ReconnectAttempts = 1
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 64
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 90 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:     opts,
		logger:   log.With().Str("module", "wsclient").Str("url", opts.URL).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		handlers: make(map[string]map[int]func(data []byte)),
	}
}

// On registers fn for frames whose type field equals typ. Handlers run on
// the read goroutine in arrival order.
func (c *Client) On(typ string, fn func(data []byte)) (off func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[typ] == nil {
		c.handlers[typ] = make(map[int]func(data []byte))
	}
	c.handlers[typ][id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers[typ], id)
		c.mu.Unlock()
	}
}

// OnConnect runs after every successful (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnDisconnect runs whenever a live connection drops.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Connect dials with the configured retries, then keeps the connection up in
// the background until Close or until reconnecting gives up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("wsclient: already connected")
	}
	c.started = true
	c.mu.Unlock()

	first, err := c.dialRetry(ctx)
	if err != nil {
		c.cancel()
		close(c.done)
		return err
	}
	go c.run(first)
	return nil
}

// Emit marshals v and queues it on the live connection.
func (c *Client) Emit(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.mu.RLock()
	cur := c.conn
	c.mu.RUnlock()
	if cur == nil {
		return ErrNotConnected
	}
	return cur.trySend(b)
}

// Close stops reconnecting and closes the live connection.
func (c *Client) Close() error {
	c.cancel()
	c.mu.RLock()
	cur, started := c.conn, c.started
	c.mu.RUnlock()
	if cur != nil {
		cur.close()
	}
	if started {
		<-c.done
	}
	return nil
}

// Done is closed once the client stops for good.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) run(cur *conn) {
	defer close(c.done)
	for {
		err := c.serve(cur)
		c.setConn(nil)
		c.fireDisconnect(err)
		if c.ctx.Err() != nil {
			return
		}
		next, err := c.dialRetry(c.ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("giving up")
			return
		}
		cur = next
	}
}

func (c *Client) dialRetry(ctx context.Context) (*conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		cur, err := c.dial(ctx)
		if err == nil {
			return cur, nil
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")
		if attempt == c.opts.ReconnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, ErrClosed
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrReconnectFailed, lastErr)
}

func (c *Client) dial(ctx context.Context) (*conn, error) {
	ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	cur := &conn{ws: ws, send: make(chan core.Frame, c.opts.SendBuffer)}
	c.setConn(cur)
	c.logger.Info().Msg("connected")

	c.mu.RLock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
	return cur, nil
}

func (c *Client) setConn(cur *conn) {
	c.mu.Lock()
	c.conn = cur
	c.mu.Unlock()
}

func (c *Client) fireDisconnect(err error) {
	c.logger.Info().Err(err).Msg("disconnected")
	c.mu.RLock()
	hooks := append([]func(error){}, c.onDisconnect...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

// serve pumps one connection until it drops.
func (c *Client) serve(cur *conn) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cur.writePump(c.logger)
	}()
	defer func() {
		cur.close()
		wg.Wait()
	}()

	_ = cur.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	cur.ws.SetPingHandler(func(appData string) error {
		_ = cur.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		err := cur.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := cur.ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = cur.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("bad frame")
		return
	}
	c.mu.RLock()
	hs := make([]func(data []byte), 0, len(c.handlers[env.Type]))
	for _, h := range c.handlers[env.Type] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()
	if len(hs) == 0 {
		c.logger.Debug().Str("type", env.Type).Msg("unhandled message")
		return
	}
	for _, h := range hs {
		h(data)
	}
}
