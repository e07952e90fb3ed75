package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyberblades/historian/internal/db"
	"github.com/cyberblades/historian/internal/session"
	"github.com/cyberblades/historian/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dbc, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbc.Close() })
	return store.New(dbc)
}

func ingest(t *testing.T, s *store.Store, player string, startTS, endTS int64, score int) {
	t.Helper()
	song := session.SongIdentity{SongAuthor: "a", SongTitle: "b", Difficulty: 1}
	res := &session.FinalResult{
		Song:        song,
		StartTS:     startTS,
		EndTS:       endTS,
		Playtime:    float64(endTS-startTS) / 1000,
		Verdict:     "pass",
		Performance: session.Performance{Score: score},
		GameHash:    session.GameHash(startTS, song, 0, endTS),
	}
	if _, err := s.Ingest(player, time.Now(), res); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func TestRunEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	n, err := Run(testStore(t), &buf)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 0 || buf.Len() != 0 {
		t.Fatalf("empty store exported %d rows, %d bytes", n, buf.Len())
	}
}

func TestRunJSONLinesOldestFirst(t *testing.T) {
	s := testStore(t)
	ingest(t, s, "alice", 2000, 62000, 200)
	ingest(t, s, "bob", 1000, 61000, 100)

	var buf bytes.Buffer
	n, err := Run(s, &buf)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}

	var rows []store.PlayResult
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var r store.PlayResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		rows = append(rows, r)
	}
	if len(rows) != 2 {
		t.Fatalf("lines = %d, want 2", len(rows))
	}
	if rows[0].Player != "bob" || rows[1].Player != "alice" {
		t.Errorf("not oldest first: %q then %q", rows[0].Player, rows[1].Player)
	}
}
