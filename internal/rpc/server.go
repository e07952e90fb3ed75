// Package rpc serves the local notification socket: newline-delimited JSON
// commands plus coalesced change pushes, both multiplexed per connection.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/cyberblades/historian/internal/historian"
	"github.com/cyberblades/historian/internal/logger"
	"github.com/cyberblades/historian/internal/notify"
	"github.com/cyberblades/historian/internal/store"
)

const highscoreLimit = 10

const recentPlayerLimit = 20

// Server accepts local client connections on a unix socket. Each
// connection runs a command duty and a push duty until a transport fault.
type Server struct {
	h      *historian.Historian
	roster []string // permanent players, config order
	ln     net.Listener
}

func NewServer(h *historian.Historian, permanentPlayers []string) *Server {
	return &Server{h: h, roster: permanentPlayers}
}

// Listen binds the unix socket, unlinking any stale one first.
func (s *Server) Listen(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}
	s.ln = ln
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// Addr returns the listener address. Valid after Listen.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// conn wraps one client connection. Both duties share the write lock so
// replies and pushes never interleave mid-line.
type clientConn struct {
	id string
	c  net.Conn
	wm sync.Mutex
}

func (cc *clientConn) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cc.wm.Lock()
	defer cc.wm.Unlock()
	_, err = cc.c.Write(append(b, '\n'))
	return err
}

func (s *Server) handleConn(ctx context.Context, c net.Conn) {
	cc := &clientConn{id: uuid.NewString()[:8], c: c}
	logger.Debug().Str("conn", cc.id).Msg("client connected")

	ctx, cancel := context.WithCancel(ctx)
	sig := s.h.Hub().Subscribe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.commandDuty(cc)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.pushDuty(ctx, cc, sig)
	}()
	wg.Wait()

	s.h.Hub().Unsubscribe(sig)
	c.Close()
	logger.Debug().Str("conn", cc.id).Msg("client disconnected")
}

// commandDuty reads one command line at a time until the peer goes away.
// Protocol-level problems produce an error reply and keep the connection.
func (s *Server) commandDuty(cc *clientConn) {
	sc := bufio.NewScanner(cc.c)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		reply, err := s.dispatch(line)
		if err != nil {
			var perr *protocolError
			if !errors.As(err, &perr) {
				logger.Error().Str("conn", cc.id).Err(err).Msg("command failed")
				perr = &protocolError{text: "internal error"}
			}
			reply = errorReply{Msgtype: "error", Text: perr.text}
		}
		if reply == nil {
			continue
		}
		if err := cc.send(reply); err != nil {
			return
		}
	}
}

// pushDuty fires once on connect, then once per raised change flag,
// sending the current status snapshot.
func (s *Server) pushDuty(ctx context.Context, cc *clientConn, sig *notify.Signal) {
	sig.Set()
	for {
		if err := sig.Wait(ctx); err != nil {
			return
		}
		if err := cc.send(s.statusReply()); err != nil {
			return
		}
	}
}

type protocolError struct {
	text string
}

func (e *protocolError) Error() string { return e.text }

func protoErrorf(format string, args ...any) error {
	return &protocolError{text: fmt.Sprintf(format, args...)}
}

type errorReply struct {
	Msgtype string `json:"msgtype"`
	Text    string `json:"text"`
}

type statusReply struct {
	Msgtype string `json:"msgtype"`
	historian.Status
}

type playersReply struct {
	Msgtype string   `json:"msgtype"`
	Players []string `json:"players"`
}

type playerInfoReply struct {
	Msgtype string `json:"msgtype"`
	*store.PlayerInfo
}

type handler func(s *Server, fields map[string]json.RawMessage) (any, error)

// Commands are a closed set: dispatch is a static tag-to-handler table.
var handlers = map[string]handler{
	"status":        (*Server).cmdStatus,
	"recentplayers": (*Server).cmdRecentPlayers,
	"playerinfo":    (*Server).cmdPlayerInfo,
	"set_player":    (*Server).cmdSetPlayer,
}

func (s *Server) dispatch(line []byte) (any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, protoErrorf("could not decode command: %v", err)
	}
	cmdRaw, ok := fields["cmd"]
	if !ok {
		return nil, protoErrorf("no command given or command of wrong type")
	}
	var cmd string
	if err := json.Unmarshal(cmdRaw, &cmd); err != nil {
		return nil, protoErrorf("no command given or command of wrong type")
	}
	h, ok := handlers[cmd]
	if !ok {
		return nil, protoErrorf("no such command: %q", cmd)
	}
	return h(s, fields)
}

func (s *Server) statusReply() statusReply {
	return statusReply{Msgtype: "status", Status: s.h.Status()}
}

func (s *Server) cmdStatus(map[string]json.RawMessage) (any, error) {
	return s.statusReply(), nil
}

// cmdRecentPlayers merges the configured roster (order preserved) with
// store-recent players appended by recency, de-duplicated.
func (s *Server) cmdRecentPlayers(map[string]json.RawMessage) (any, error) {
	recent, err := s.h.Store().RecentPlayers(recentPlayerLimit)
	if err != nil {
		return nil, err
	}
	players := make([]string, 0, len(s.roster)+len(recent))
	seen := make(map[string]bool)
	for _, p := range s.roster {
		if !seen[p] {
			seen[p] = true
			players = append(players, p)
		}
	}
	for _, p := range recent {
		if !seen[p] {
			seen[p] = true
			players = append(players, p)
		}
	}
	return playersReply{Msgtype: "recentplayers", Players: players}, nil
}

func (s *Server) cmdPlayerInfo(fields map[string]json.RawMessage) (any, error) {
	raw, ok := fields["player"]
	if !ok {
		return nil, protoErrorf("'player' property not set or not of the correct type")
	}
	var player string
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, protoErrorf("'player' property not set or not of the correct type")
	}
	info, err := s.h.Store().PlayerInfo(player, highscoreLimit)
	if err != nil {
		return nil, err
	}
	return playerInfoReply{Msgtype: "playerinfo", PlayerInfo: info}, nil
}

// cmdSetPlayer accepts a string or null player and sends no reply; the
// resulting push reaches every connection, including this one.
func (s *Server) cmdSetPlayer(fields map[string]json.RawMessage) (any, error) {
	raw, ok := fields["player"]
	if !ok {
		return nil, protoErrorf("'player' property not set or not of the correct type")
	}
	var player *string
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, protoErrorf("'player' property not set or not of the correct type")
	}
	name := ""
	if player != nil {
		name = *player
	}
	s.h.SetPlayer(name)
	return nil, nil
}
