// Package replay implements a gateway client that plays back a JSON-lines
// capture of callback envelopes and records every request issued against it.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
)

const maxFrameSize = 1 << 20

// Option configures a Client.
type Option func(*Client)

// WithPace delays every callback by d.
func WithPace(d time.Duration) Option {
	return func(c *Client) { c.pace = d }
}

// Client replays a capture. Receive returns io.EOF once the capture is exhausted.
type Client struct {
	gateway.Requester

	pace time.Duration

	mu        sync.Mutex
	scanner   *bufio.Scanner
	closer    io.Closer
	line      int
	connected bool
	requests  []gateway.Request
}

// New creates a client reading frames from r.
func New(r io.Reader, opts ...Option) *Client {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	c := &Client{scanner: scanner}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}
	c.Requester = gateway.NewRequester(c.record)
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Open creates a client replaying the capture file at path.
func Open(path string, opts ...Option) (*Client, error) {
	f, err := os.Open(path) // #nosec G304 -- capture path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	return New(f, opts...), nil
}

// Connect marks the session connected.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.New("replay/connect", errs.CodeConnectionFailure, errs.WithCause(err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Disconnect releases the capture.
func (c *Client) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.closer != nil {
		err := c.closer.Close()
		c.closer = nil
		return err
	}
	return nil
}

// Receive returns the next callback in the capture. Blank lines and lines
// starting with '#' are skipped.
func (c *Client) Receive(ctx context.Context) (gateway.Callback, error) {
	if c.pace > 0 {
		timer := time.NewTimer(c.pace)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, gateway.ErrClosed
	}
	for c.scanner.Scan() {
		c.line++
		frame := bytes.TrimSpace(c.scanner.Bytes())
		if len(frame) == 0 || frame[0] == '#' {
			continue
		}
		cb, err := gateway.DecodeCallback(frame)
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", c.line, err)
		}
		return cb, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return nil, io.EOF
}

func (c *Client) record(_ context.Context, req gateway.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return nil
}

// Requests returns a copy of every request issued so far.
func (c *Client) Requests() []gateway.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gateway.Request(nil), c.requests...)
}
