// Package feed maintains the connection to the game's status event stream.
package feed

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/cyberblades/historian/internal/historian"
	"github.com/cyberblades/historian/internal/logger"
)

// Client dials the game's TCP status endpoint and forwards each JSON line
// to the historian. Reconnects are unconditional and unbounded.
type Client struct {
	addr       string
	h          *historian.Historian
	retryDelay time.Duration
}

func New(addr string, h *historian.Historian) *Client {
	return &Client{addr: addr, h: h, retryDelay: time.Second}
}

// Run connects, streams and reconnects until ctx is cancelled. A drop
// mid-session discards the in-progress session: finalize-or-discard.
func (c *Client) Run(ctx context.Context) {
	var dialer net.Dialer
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			logger.Debug().Err(err).Str("addr", c.addr).Msg("game not reachable")
			if !sleep(ctx, c.retryDelay) {
				return
			}
			continue
		}
		logger.Info().Str("addr", c.addr).Msg("connected to game feed")
		c.h.SetConnected(true)

		c.stream(ctx, conn)

		c.h.SetConnected(false)
		c.h.Discard()
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Str("addr", c.addr).Msg("game feed connection lost")
		if !sleep(ctx, c.retryDelay) {
			return
		}
	}
}

func (c *Client) stream(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		c.h.HandleRaw(line)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
