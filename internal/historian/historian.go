// Package historian glues the feed, reducer, archive and store together and
// tracks the externally-set current player.
package historian

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cyberblades/historian/internal/archive"
	"github.com/cyberblades/historian/internal/events"
	"github.com/cyberblades/historian/internal/logger"
	"github.com/cyberblades/historian/internal/notify"
	"github.com/cyberblades/historian/internal/session"
	"github.com/cyberblades/historian/internal/store"
)

// Uploader mirrors a written archive file to object storage.
type Uploader interface {
	Upload(path string) error
}

// ConnectionStatus is the connection part of the status snapshot.
type ConnectionStatus struct {
	ConnectedToBeatSaber bool    `json:"connected_to_beatsaber"`
	CurrentPlayer        *string `json:"current_player"`
}

// Status is the snapshot served to clients and pushed on every change.
type Status struct {
	Connection  ConnectionStatus      `json:"connection"`
	CurrentGame *session.LiveSnapshot `json:"current_game"`
}

// Historian owns the live session state. The store owns persisted rows;
// clients observe both and mutate only the current player.
type Historian struct {
	mu sync.Mutex

	player    string // "" = nobody selected
	connected bool

	reducer      *session.Reducer
	rawEvents    []json.RawMessage
	startedLocal time.Time

	store      *store.Store
	archiveDir string
	mirror     Uploader // nil when mirroring is disabled
	hub        *notify.Hub
}

func New(st *store.Store, archiveDir string, handTracking bool, hub *notify.Hub, mirror Uploader) *Historian {
	return &Historian{
		reducer:    session.NewReducer(handTracking),
		store:      st,
		archiveDir: archiveDir,
		mirror:     mirror,
		hub:        hub,
	}
}

func (h *Historian) Hub() *notify.Hub { return h.hub }

func (h *Historian) Store() *store.Store { return h.store }

// Player returns the current player name, "" when unset.
func (h *Historian) Player() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.player
}

// SetPlayer switches the tracked player. Always pushes, even when the
// value is unchanged.
func (h *Historian) SetPlayer(player string) {
	h.mu.Lock()
	h.player = player
	h.mu.Unlock()
	logger.Info().Str("player", player).Msg("current player set")
	h.hub.Broadcast()
}

// SetConnected records the upstream connection state. Pushes on change.
func (h *Historian) SetConnected(connected bool) {
	h.mu.Lock()
	changed := h.connected != connected
	h.connected = connected
	h.mu.Unlock()
	if changed {
		h.hub.Broadcast()
	}
}

// Status builds the snapshot served by the status command and by pushes.
func (h *Historian) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	var player *string
	if h.player != "" {
		p := h.player
		player = &p
	}
	return Status{
		Connection: ConnectionStatus{
			ConnectedToBeatSaber: h.connected,
			CurrentPlayer:        player,
		},
		CurrentGame: h.reducer.Snapshot(),
	}
}

// HandleRaw decodes one feed line and processes it. Malformed lines are
// dropped silently per the feed contract.
func (h *Historian) HandleRaw(line []byte) {
	ev, err := events.Decode(line)
	if err != nil {
		logger.Debug().Err(err).Msg("unparseable feed event")
		return
	}
	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	h.HandleEvent(ev, raw)
}

// HandleEvent drives the reducer and, on a terminal transition, archives,
// mirrors and ingests the finalized result.
func (h *Historian) HandleEvent(ev events.Event, raw json.RawMessage) {
	h.mu.Lock()

	out := h.reducer.Process(ev)
	if out.Dropped {
		logger.Warn().
			Str("song", ev.Status.Beatmap.SongTitle).
			Msg("songStart while a session was active, previous session data lost")
	}
	switch {
	case ev.Kind == events.KindSongStart && out.Changed:
		h.rawEvents = []json.RawMessage{raw}
		h.startedLocal = time.Now()
		logger.Info().
			Str("player", h.player).
			Str("song_author", ev.Status.Beatmap.SongAuthor).
			Str("song_title", ev.Status.Beatmap.SongTitle).
			Int("difficulty", ev.Status.Beatmap.Difficulty).
			Msg("song started")
	case h.reducer.Active() || out.Final != nil:
		h.rawEvents = append(h.rawEvents, raw)
	}

	var final *session.FinalResult
	var doc *archive.Document
	if out.Final != nil {
		final = out.Final
		doc = h.buildDocumentLocked()
		h.rawEvents = nil
	}
	player := h.player
	startedLocal := h.startedLocal
	h.mu.Unlock()

	if final != nil {
		h.persist(player, startedLocal, doc, final)
	}
	if out.Changed {
		h.hub.Broadcast()
	}
}

// Discard drops an in-progress session, typically because the upstream
// connection broke mid-song. Nothing is persisted.
func (h *Historian) Discard() {
	h.mu.Lock()
	had := h.reducer.Discard()
	h.rawEvents = nil
	h.mu.Unlock()
	if had {
		logger.Warn().Msg("upstream connection lost mid-session, session discarded")
		h.hub.Broadcast()
	}
}

func (h *Historian) buildDocumentLocked() *archive.Document {
	var player *string
	if h.player != "" {
		p := h.player
		player = &p
	}
	evs := make([]json.RawMessage, len(h.rawEvents))
	copy(evs, h.rawEvents)
	return &archive.Document{
		Meta: archive.Meta{
			SongStartLocal: float64(h.startedLocal.UnixNano()) / 1e9,
			Player:         player,
		},
		Events: evs,
	}
}

// persist runs archive write, mirror and ingest. Faults are logged and
// confined to this one result; the daemon keeps running.
func (h *Historian) persist(player string, startedLocal time.Time, doc *archive.Document, final *session.FinalResult) {
	path, err := archive.Write(h.archiveDir, doc)
	if err != nil {
		logger.Error().Err(err).Msg("write archive")
	} else if h.mirror != nil {
		if err := h.mirror.Upload(path); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("mirror archive")
		}
	}

	inserted, err := h.store.Ingest(player, startedLocal, final)
	if err != nil {
		logger.Error().Err(err).Str("gamehash", final.GameHash).Msg("ingest result")
		return
	}
	logger.Info().
		Str("player", player).
		Str("song_title", final.Song.SongTitle).
		Str("verdict", final.Verdict).
		Int("score", final.Performance.Score).
		Bool("new_row", inserted).
		Msg("session finalized")
}
