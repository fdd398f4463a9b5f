/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ws connects the agent client to the local agent over websocket.
package ws

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"nhooyr.io/websocket"

	"github.com/medvault/medvault-go/pkg/agent"
	"github.com/medvault/medvault-go/pkg/common/log"
)

// DefaultReadLimit caps inbound frames. Batch decrypt answers carry whole records.
const DefaultReadLimit = 16 << 20

var logger = log.New("medvault/agent")

// Dialer opens websocket connections to the agent.
type Dialer struct {
	httpClient *http.Client
	header     http.Header
	readLimit  int64
}

// Option configures a Dialer.
type Option func(d *dialerOpts) error

type dialerOpts struct {
	tlsConfig *tls.Config
	header    http.Header
	readLimit int64
}

// WithTLSConfig sets the TLS configuration used for wss:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *dialerOpts) error {
		o.tlsConfig = cfg

		return nil
	}
}

// WithCAFile trusts the PEM certificates in path, typically the agent's self-signed certificate.
func WithCAFile(path string) Option {
	return func(o *dialerOpts) error {
		pem, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return errors.Wrapf(err, "read agent CA file %s", path)
		}

		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}

		if !pool.AppendCertsFromPEM(pem) {
			return errors.Errorf("no certificates found in %s", path)
		}

		o.tls().RootCAs = pool

		return nil
	}
}

// WithInsecureSkipVerify disables certificate verification of the agent.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *dialerOpts) error {
		o.tls().InsecureSkipVerify = skip //nolint:gosec

		return nil
	}
}

// WithHeader adds headers to the websocket handshake.
func WithHeader(h http.Header) Option {
	return func(o *dialerOpts) error {
		o.header = h

		return nil
	}
}

// WithReadLimit sets the largest inbound frame accepted.
func WithReadLimit(limit int64) Option {
	return func(o *dialerOpts) error {
		if limit <= 0 {
			return errors.Errorf("invalid read limit %d", limit)
		}

		o.readLimit = limit

		return nil
	}
}

func (o *dialerOpts) tls() *tls.Config {
	if o.tlsConfig == nil {
		o.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return o.tlsConfig
}

// NewDialer returns a websocket dialer for the agent client.
func NewDialer(opts ...Option) (*Dialer, error) {
	o := &dialerOpts{readLimit: DefaultReadLimit}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	d := &Dialer{header: o.header, readLimit: o.readLimit}

	if o.tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = o.tlsConfig
		d.httpClient = &http.Client{Transport: transport}
	}

	return d, nil
}

// Dial implements agent.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (agent.Conn, error) {
	if url == "" {
		return nil, errors.New("url is mandatory")
	}

	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose
		HTTPClient: d.httpClient,
		HTTPHeader: d.header,
	})
	if err != nil {
		return nil, errors.Wrap(err, "websocket client")
	}

	c.SetReadLimit(d.readLimit)

	return &Conn{conn: c}, nil
}

// Conn adapts a websocket connection to agent.Conn.
type Conn struct {
	conn *websocket.Conn
}

// Read returns the next text or binary message.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "websocket read message")
	}

	return data, nil
}

// Write sends frame as one text message.
func (c *Conn) Write(ctx context.Context, frame []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return errors.Wrap(err, "websocket write message")
	}

	return nil
}

// Close closes the connection with a normal closure status.
func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "closing the connection")
	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		logger.Debugf("websocket close: %v", err)
	}

	return nil
}
