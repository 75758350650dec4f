// Package client is a worker-side connection to an aggregation server: it
// sends framed gradients and reads framed model broadcasts.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/absmach/hetsync/pkg/wire"
)

const readBufferSize = 4096

var ErrUnexpectedDimension = errors.New("broadcast dimension does not match")

type Client struct {
	conn      net.Conn
	dimension int
	dec       *wire.Decoder
	buf       []byte
	pending   [][]byte
}

// Dial connects to the server at address. Broadcasts are expected to carry
// exactly dimension values.
func Dial(ctx context.Context, address string, dimension int) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	return New(conn, dimension), nil
}

// New wraps an established connection.
func New(conn net.Conn, dimension int) *Client {
	return &Client{
		conn:      conn,
		dimension: dimension,
		dec:       wire.NewDecoder(uint64(dimension * wire.FloatSize)),
		buf:       make([]byte, readBufferSize),
	}
}

func (c *Client) Send(gradient []float32) error {
	if _, err := c.conn.Write(wire.EncodeModel(gradient)); err != nil {
		return fmt.Errorf("failed to send gradient: %w", err)
	}

	return nil
}

// Receive blocks until the next model broadcast arrives or ctx is done.
func (c *Client) Receive(ctx context.Context) ([]float32, error) {
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	defer c.conn.SetReadDeadline(time.Time{})

	for len(c.pending) == 0 {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			frames, ferr := c.dec.Feed(c.buf[:n])
			c.pending = append(c.pending, frames...)
			if ferr != nil {
				return nil, ferr
			}
		}
		if err != nil && len(c.pending) == 0 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, err
		}
	}

	frame := c.pending[0]
	c.pending = c.pending[1:]

	model, err := wire.DecodeFloats(frame)
	if err != nil {
		return nil, err
	}
	if len(model) != c.dimension {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrUnexpectedDimension, len(model), c.dimension)
	}

	return model, nil
}

func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
