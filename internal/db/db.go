package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the DB at path, creates dir if needed, runs migrations.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping failed: %v, close failed: %w", err, closeErr)
		}
		return nil, err
	}
	if err := migrate(conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("migrate failed: %v, close failed: %w", err, closeErr)
		}
		return nil, err
	}
	return conn, nil
}

func migrate(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  player TEXT,
  play_day TEXT NOT NULL,
  local_ts TEXT NOT NULL,
  starttime_local REAL NOT NULL,
  starttime INTEGER NOT NULL,
  endtime INTEGER NOT NULL,
  song_author TEXT NOT NULL,
  song_title TEXT NOT NULL,
  level_author TEXT NOT NULL,
  difficulty INTEGER NOT NULL,
  notes_cnt INTEGER NOT NULL,
  playtime REAL NOT NULL,
  pausetime REAL NOT NULL,
  gamehash TEXT NOT NULL,
  result_verdict TEXT NOT NULL,
  result_score INTEGER NOT NULL,
  result_maxscore INTEGER NOT NULL,
  result_rank TEXT NOT NULL,
  combo INTEGER NOT NULL,
  max_combo INTEGER NOT NULL,
  passed_notes INTEGER NOT NULL,
  hit_notes INTEGER NOT NULL,
  missed_notes INTEGER NOT NULL,
  hit_bombs INTEGER NOT NULL,
  passed_bombs INTEGER NOT NULL,
  hands_json TEXT,
  CHECK((result_verdict = 'pass') OR (result_verdict = 'fail')),
  CHECK((difficulty >= 0) AND (difficulty <= 4)),
  UNIQUE(gamehash)
);
CREATE INDEX IF NOT EXISTS idx_results_endtime ON results(endtime);
CREATE INDEX IF NOT EXISTS idx_results_song ON results(song_author, song_title, level_author, difficulty);
CREATE INDEX IF NOT EXISTS idx_results_player ON results(player);

CREATE TABLE IF NOT EXISTS seen_files (
  size_bytes INTEGER NOT NULL,
  mtime_micros INTEGER NOT NULL,
  PRIMARY KEY(size_bytes, mtime_micros)
);
`
