/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/medvault/medvault-go/pkg/common/log"
)

const (
	// DefaultURL is where the desktop agent listens.
	DefaultURL = "wss://localhost:2025"
	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second
)

var logger = log.New("medvault/agent")

// Option configures a Client.
type Option func(c *Client)

// WithDialer sets the transport used to reach the agent.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithCodec sets the wire protocol. The tagged codec is the default.
func WithCodec(codec Codec) Option {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithTimeout sets how long a request may wait for its response.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithDialRetries allows retries extra dial attempts, interval apart, per connect.
func WithDialRetries(retries uint64, interval time.Duration) Option {
	return func(c *Client) {
		c.newBackOff = func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries)
		}
	}
}

// WithBackOff sets the dial retry policy. newBackOff is called once per connect.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = newBackOff
	}
}

// Client is the connection manager for one local agent. All operations are
// safe for concurrent use and share a single lazily opened connection.
type Client struct {
	url        string
	dialer     Dialer
	codec      Codec
	timeout    time.Duration
	newBackOff func() backoff.BackOff

	// mu guards everything below.
	mu          sync.Mutex
	state       State
	conn        Conn
	backlog     []outbound
	pending     *pendingTable
	nextID      uint64
	closed      bool
	connectDone chan struct{}
	connectErr  error

	// writeMu keeps the frames of one request contiguous on the wire.
	// It is taken before mu, never while holding it.
	writeMu sync.Mutex
}

// outbound is a request whose frames are not written yet. The backlog keeps
// them in id order, which is also the order of the per-kind queues.
type outbound struct {
	id     uint64
	frames [][]byte
}

// New returns a disconnected client for the agent at url.
func New(url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:     url,
		codec:   TaggedCodec{},
		timeout: DefaultTimeout,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 0)
		},
		pending: newPendingTable(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.url == "" {
		c.url = DefaultURL
	}

	if c.dialer == nil {
		return nil, errors.New("agent client requires a dialer")
	}

	if c.codec == nil {
		return nil, errors.New("agent client requires a codec")
	}

	if c.timeout <= 0 {
		return nil, errors.Errorf("invalid agent timeout %s", c.timeout)
	}

	return c, nil
}

// URL returns the agent address.
func (c *Client) URL() string {
	return c.url
}

// Protocol returns the name of the codec in use.
func (c *Client) Protocol() string {
	return c.codec.Name()
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// Connect opens the connection if needed and waits until it is open or the attempt failed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return ErrClientClosed
	}

	if c.state == StateOpen {
		c.mu.Unlock()

		return nil
	}

	done := c.startConnectLocked()
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen {
		return nil
	}

	if c.connectErr != nil {
		return c.connectErr
	}

	return ErrConnectionClosed
}

// Disconnect drops the connection. Pending requests fail with ErrConnectionClosed
// and the next operation reconnects.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.connectionLost(conn, errors.New("disconnect requested"))
	}
}

// Close drops the connection for good. Later operations fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.backlog = nil
	failed := c.pending.drain()
	c.mu.Unlock()

	failAll(failed, ErrClientClosed, reasonClosed)

	if conn != nil {
		return conn.Close()
	}

	return nil
}

// FetchLocalPublicKey returns the base64 public key of the agent's own key pair.
func (c *Client) FetchLocalPublicKey(ctx context.Context) (string, error) {
	resp, err := c.roundTrip(ctx, &Request{Kind: KindPublicKey})
	if err != nil {
		return "", err
	}

	if resp.PublicKey == "" {
		recordFailure(KindPublicKey, reasonProtocol)

		return "", errors.Wrap(ErrProtocol, "empty public key")
	}

	return resp.PublicKey, nil
}

// WrapKey wraps key for each recipient. The result is in recipient order.
func (c *Client) WrapKey(ctx context.Context, key string, recipientPublicKeys []string) ([]string, error) {
	if len(recipientPublicKeys) == 0 {
		return []string{}, nil
	}

	resp, err := c.roundTrip(ctx, &Request{Kind: KindWrapKey, AESKey: key, PublicKeys: recipientPublicKeys})
	if err != nil {
		return nil, err
	}

	if len(resp.WrappedKeys) != len(recipientPublicKeys) {
		recordFailure(KindWrapKey, reasonProtocol)

		return nil, errors.Wrapf(ErrProtocol, "agent returned %d wrapped keys for %d recipients",
			len(resp.WrappedKeys), len(recipientPublicKeys))
	}

	return resp.WrappedKeys, nil
}

// UnwrapAndDecrypt has the agent unwrap each record key and open its sealed body.
// Items come back tagged with their record id, not necessarily in input order.
func (c *Client) UnwrapAndDecrypt(ctx context.Context, records []SealedRecord) ([]DecryptedRecord, error) {
	if len(records) == 0 {
		return []DecryptedRecord{}, nil
	}

	resp, err := c.roundTrip(ctx, &Request{Kind: KindDecrypt, Records: records})
	if err != nil {
		return nil, err
	}

	return resp.Records, nil
}

// RewrapKey unwraps wrappedKey with the local private key and wraps it again for targetPublicKey.
func (c *Client) RewrapKey(ctx context.Context, wrappedKey, targetPublicKey string) (string, error) {
	resp, err := c.roundTrip(ctx, &Request{Kind: KindRewrapKey, WrappedKey: wrappedKey, PublicKey: targetPublicKey})
	if err != nil {
		return "", err
	}

	if resp.WrappedKey == "" {
		recordFailure(KindRewrapKey, reasonProtocol)

		return "", errors.Wrap(ErrProtocol, "empty re-wrapped key")
	}

	return resp.WrappedKey, nil
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	requestsTotal.WithLabelValues(string(req.Kind)).Inc()

	p, conn, err := c.submit(req)
	if err != nil {
		return nil, err
	}

	if conn != nil {
		if err = c.flush(conn); err != nil {
			c.connectionLost(conn, err)
		}
	}

	select {
	case r := <-p.done:
		if r.err != nil {
			return nil, r.err
		}

		if r.resp.Err != "" {
			recordFailure(req.Kind, reasonAgent)

			return nil, errors.Wrapf(ErrAgent, "%s: %s", req.Kind, r.resp.Err)
		}

		return r.resp, nil
	case <-ctx.Done():
		// the entry still retires through response, timeout or close
		recordFailure(req.Kind, reasonCanceled)

		return nil, ctx.Err()
	}
}

// submit registers req and appends its frames to the backlog in the same
// critical section, so wire order follows id order. It returns the open
// connection to flush, or nil while a connection is being opened.
func (c *Client) submit(req *Request) (*pendingRequest, Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, nil, ErrClientClosed
	}

	c.nextID++
	req.ID = c.nextID

	frames, err := c.codec.Encode(req)
	if err != nil {
		return nil, nil, err
	}

	p := &pendingRequest{
		id:      req.ID,
		kind:    req.Kind,
		created: time.Now(),
		done:    make(chan result, 1),
	}

	c.pending.add(p)

	id := p.id
	p.timer = time.AfterFunc(c.timeout, func() {
		c.expire(id)
	})

	c.backlog = append(c.backlog, outbound{id: p.id, frames: frames})

	if c.state == StateOpen {
		return p, c.conn, nil
	}

	c.startConnectLocked()

	return p, nil, nil
}

// startConnectLocked begins a connection attempt unless one is running and
// returns the channel closed when it ends. c.mu must be held.
func (c *Client) startConnectLocked() chan struct{} {
	if c.state == StateConnecting {
		return c.connectDone
	}

	c.state = StateConnecting
	c.connectErr = nil
	c.connectDone = make(chan struct{})

	go c.connect(c.connectDone)

	return c.connectDone
}

func (c *Client) connect(done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var conn Conn

	dial := func() error {
		var err error

		conn, err = c.dialer.Dial(ctx, c.url)

		return err
	}

	err := backoff.RetryNotify(dial, backoff.WithContext(c.newBackOff(), ctx), func(err error, wait time.Duration) {
		logger.Warnf("dial %s failed, retrying in %s: %v", c.url, wait, err)
	})

	c.mu.Lock()

	if err != nil {
		c.state = StateDisconnected
		c.backlog = nil
		c.connectErr = errors.Wrapf(ErrConnection, "dial %s: %v", c.url, err)
		failed := c.pending.drain()
		c.mu.Unlock()

		logger.Errorf("unable to reach agent at %s: %v", c.url, err)
		failAll(failed, c.connectErr, reasonConnection)

		return
	}

	if c.closed {
		c.mu.Unlock()

		if e := conn.Close(); e != nil {
			logger.Debugf("close connection opened after client close: %v", e)
		}

		return
	}

	c.state = StateOpen
	c.conn = conn
	queued := len(c.backlog)
	c.mu.Unlock()

	reconnectsTotal.Inc()
	logger.Infof("connected to agent at %s (%s protocol), flushing %d queued requests",
		c.url, c.codec.Name(), queued)

	go c.readLoop(conn)

	if err = c.flush(conn); err != nil {
		c.connectionLost(conn, err)
	}
}

// flush writes the backlog to conn, oldest first, until it is empty or conn
// is no longer current. Requests that retired before their turn are skipped.
func (c *Client) flush(conn Conn) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for {
		c.mu.Lock()

		if c.conn != conn || len(c.backlog) == 0 {
			c.mu.Unlock()

			return nil
		}

		next := c.backlog[0]
		c.backlog = c.backlog[1:]
		live := c.pending.get(next.id) != nil
		c.mu.Unlock()

		if !live {
			continue
		}

		if err := c.writeFrames(conn, next.frames); err != nil {
			return err
		}
	}
}

// writeFrames writes one request's frames. c.writeMu must be held.
func (c *Client) writeFrames(conn Conn, frames [][]byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for _, frame := range frames {
		if err := conn.Write(ctx, frame); err != nil {
			return errors.Wrap(err, "write to agent")
		}
	}

	return nil
}

func (c *Client) readLoop(conn Conn) {
	for {
		frame, err := conn.Read(context.Background())
		if err != nil {
			c.connectionLost(conn, err)

			return
		}

		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []byte) {
	resp, err := c.codec.Decode(frame)
	if err != nil {
		logger.Warnf("dropping agent frame: %v", err)

		return
	}

	c.mu.Lock()

	var p *pendingRequest

	if resp.HasID {
		p = c.pending.get(resp.ID)
		if p != nil && resp.Kind != "" && resp.Kind != p.kind {
			logger.Warnf("response %d of kind %s does not match pending %s request", resp.ID, resp.Kind, p.kind)

			p = nil
		}
	}

	if !resp.HasID {
		p = c.pending.oldest(resp.Kind)
	}

	if p != nil {
		c.pending.remove(p.id)
	}

	c.mu.Unlock()

	if p == nil {
		logger.Debugf("no pending %s request for agent response, ignoring", resp.Kind)

		return
	}

	p.finish(resp, nil)
}

func (c *Client) expire(id uint64) {
	c.mu.Lock()
	p := c.pending.remove(id)
	c.mu.Unlock()

	if p == nil {
		return
	}

	logger.Warnf("%s request %d timed out after %s", p.kind, p.id, time.Since(p.created).Round(time.Millisecond))
	recordFailure(p.kind, reasonTimeout)

	p.finish(nil, errors.Wrapf(ErrTimeout, "%s request after %s", p.kind, c.timeout))
}

// connectionLost retires conn if it is still the current connection.
func (c *Client) connectionLost(conn Conn, cause error) {
	c.mu.Lock()

	if c.conn != conn {
		c.mu.Unlock()

		return
	}

	c.conn = nil
	c.state = StateDisconnected
	c.backlog = nil
	failed := c.pending.drain()
	c.mu.Unlock()

	if err := conn.Close(); err != nil {
		logger.Debugf("close agent connection: %v", err)
	}

	logger.Infof("agent connection closed: %v; failing %d pending requests", cause, len(failed))

	failAll(failed, errors.Wrap(ErrConnectionClosed, cause.Error()), reasonClosed)
}

func failAll(requests []*pendingRequest, err error, reason string) {
	for _, p := range requests {
		recordFailure(p.kind, reason)
		p.finish(nil, err)
	}
}
