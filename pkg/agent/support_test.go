/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var errPipeClosed = errors.New("pipe closed")

// pipeConn is an in-memory Conn. The test plays the agent on the other end.
type pipeConn struct {
	toAgent  chan []byte
	toClient chan []byte
	done     chan struct{}
	once     sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		toAgent:  make(chan []byte, 64),
		toClient: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (p *pipeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.toClient:
		return frame, nil
	case <-p.done:
		return nil, errPipeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) Write(ctx context.Context, frame []byte) error {
	select {
	case <-p.done:
		return errPipeClosed
	default:
	}

	select {
	case p.toAgent <- append([]byte(nil), frame...):
		return nil
	case <-p.done:
		return errPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })

	return nil
}

// next returns the next frame written by the client.
func (p *pipeConn) next(t *testing.T) string {
	t.Helper()

	select {
	case frame := <-p.toAgent:
		return string(frame)
	case <-time.After(waitFor):
		require.FailNow(t, "no frame written by the client")

		return ""
	}
}

func (p *pipeConn) reply(frame string) {
	p.toClient <- []byte(frame)
}

// pipeDialer hands out a fresh pipeConn per dial. gate, when set, blocks dials until closed.
type pipeDialer struct {
	mu    sync.Mutex
	conns []*pipeConn
	fail  error
	gate  chan struct{}
	dials chan *pipeConn
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{dials: make(chan *pipeConn, 16)}
}

func (d *pipeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	gate, fail := d.gate, d.fail
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail != nil {
		return nil, fail
	}

	conn := newPipeConn()

	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()

	d.dials <- conn

	return conn, nil
}

func (d *pipeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.conns)
}

// accept waits for the client to open a connection.
func (d *pipeDialer) accept(t *testing.T) *pipeConn {
	t.Helper()

	select {
	case conn := <-d.dials:
		return conn
	case <-time.After(waitFor):
		require.FailNow(t, "client did not dial")

		return nil
	}
}

func newTestClient(t *testing.T, d Dialer, opts ...Option) *Client {
	t.Helper()

	c, err := New("ws://agent.test", append([]Option{WithDialer(d)}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})

	return c
}

type callResult struct {
	value interface{}
	err   error
}

// async runs fn in a goroutine and returns a channel with its outcome.
func async(fn func() (interface{}, error)) <-chan callResult {
	out := make(chan callResult, 1)

	go func() {
		v, err := fn()
		out <- callResult{value: v, err: err}
	}()

	return out
}

func await(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(waitFor):
		require.FailNow(t, "call did not return")

		return callResult{}
	}
}

func (c *Client) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending.len()
}

func (c *Client) backlogLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.backlog)
}

// answerWrapsByTarget plays a legacy agent that answers wrap commands in the
// order they arrive, each with a value derived from the request's public keys.
func answerWrapsByTarget(conn *pipeConn) {
	for {
		var word, payload []byte

		select {
		case word = <-conn.toAgent:
		case <-conn.done:
			return
		}

		select {
		case payload = <-conn.toAgent:
		case <-conn.done:
			return
		}

		var body struct {
			PublicKey  string   `json:"publicKey"`
			PublicKeys []string `json:"publicKeys"`
		}

		if err := json.Unmarshal(payload, &body); err != nil {
			return
		}

		var answer string

		switch string(word) {
		case "ENCRYPTAESKEY":
			answer = "KEY:W(" + body.PublicKey + ")"
		case "BATCHENCRYPTAESKEY":
			wrapped := make([]string, len(body.PublicKeys))
			for i, pk := range body.PublicKeys {
				wrapped[i] = "W(" + pk + ")"
			}

			raw, err := json.Marshal(wrapped)
			if err != nil {
				return
			}

			answer = "KEYS:" + string(raw)
		default:
			return
		}

		select {
		case conn.toClient <- []byte(answer):
		case <-conn.done:
			return
		}
	}
}
