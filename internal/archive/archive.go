// Package archive writes one compressed JSON document per finished session
// and replays such documents back into the store.
//
// The archive is the system of record: a database can be rebuilt from
// archives alone by replaying them through the reducer.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/cyberblades/historian/internal/events"
	"github.com/cyberblades/historian/internal/session"
	"github.com/cyberblades/historian/internal/store"
)

// Meta identifies the session an archive belongs to. Player is null when
// nobody was selected at song start.
type Meta struct {
	SongStartLocal float64 `json:"songStartLocal"` // unix seconds
	Player         *string `json:"player"`
}

// Document is the full raw event log of one session.
type Document struct {
	Meta   Meta              `json:"meta"`
	Events []json.RawMessage `json:"events"`
}

// Write stores doc under dir/<player>/<utc timestamp>.json.gz and returns
// the path. Writes go through a .partial temp file then rename.
func Write(dir string, doc *Document) (string, error) {
	player := "unknown_player"
	if doc.Meta.Player != nil && *doc.Meta.Player != "" {
		player = sanitize(*doc.Meta.Player)
	}
	subDir := filepath.Join(dir, player)
	if err := os.MkdirAll(subDir, 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	name := time.Unix(int64(doc.Meta.SongStartLocal), 0).UTC().Format("2006_01_02_15_04_05") + ".json.gz"
	path := filepath.Join(subDir, name)

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	enc := json.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("compress archive: %w", err)
	}

	tmp := path + ".partial"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

// Read loads an archive document; .gz suffixed files are decompressed.
func Read(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse archive %s: %w", path, err)
	}
	return &doc, nil
}

// ImportResult reports what one Import call did.
type ImportResult struct {
	SkippedSeen bool // file fingerprint already recorded
	Inserted    int  // new rows written
	Replayed    int  // sessions finalized during replay
}

// Import replays one archive file into the store, unless its
// (size, mtime µs) fingerprint was imported before. The fingerprint is
// recorded after a successful replay, so a failed import retries next time.
func Import(st *store.Store, path string, handTracking bool) (ImportResult, error) {
	var res ImportResult

	fi, err := os.Stat(path)
	if err != nil {
		return res, err
	}
	size, mtimeMicros := fi.Size(), fi.ModTime().UnixMicro()
	seen, err := st.HaveSeenFile(size, mtimeMicros)
	if err != nil {
		return res, err
	}
	if seen {
		res.SkippedSeen = true
		return res, nil
	}

	doc, err := Read(path)
	if err != nil {
		return res, err
	}
	player := ""
	if doc.Meta.Player != nil {
		player = *doc.Meta.Player
	}
	startedLocal := time.Unix(0, int64(doc.Meta.SongStartLocal*1e9))

	r := session.NewReducer(handTracking)
	for _, raw := range doc.Events {
		ev, err := events.Decode(raw)
		if err != nil {
			continue
		}
		out := r.Process(ev)
		if out.Final == nil {
			continue
		}
		res.Replayed++
		inserted, err := st.Ingest(player, startedLocal, out.Final)
		if err != nil {
			return res, fmt.Errorf("ingest %s: %w", path, err)
		}
		if inserted {
			res.Inserted++
		}
	}

	if err := st.MarkFileSeen(size, mtimeMicros); err != nil {
		return res, err
	}
	return res, nil
}

// sanitize keeps player-derived path segments to a safe charset.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, s)
}
