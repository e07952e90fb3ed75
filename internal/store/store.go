// Package store persists finalized play results and answers ranking and
// aggregate queries. All writes are idempotent on the session's gamehash.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cyberblades/historian/internal/session"
	"github.com/cyberblades/historian/internal/stats"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only consumers (export).
func (s *Store) DB() *sql.DB { return s.db }

// PlayResult is one persisted row.
type PlayResult struct {
	Player      string               `json:"player"`
	PlayDay     string               `json:"play_day"`
	LocalTS     string               `json:"local_ts"`
	StartTS     int64                `json:"start_ts"`
	EndTS       int64                `json:"end_ts"`
	Song        session.SongIdentity `json:"song"`
	NotesCount  int                  `json:"notes_cnt"`
	Playtime    float64              `json:"playtime"`
	Pausetime   float64              `json:"pausetime"`
	Verdict     string               `json:"verdict"`
	Score       int                  `json:"score"`
	MaxScore    int                  `json:"max_score"`
	RankLabel   string               `json:"rank"`
	Combo       int                  `json:"combo"`
	MaxCombo    int                  `json:"max_combo"`
	PassedNotes int                  `json:"passed_notes"`
	HitNotes    int                  `json:"hit_notes"`
	MissedNotes int                  `json:"missed_notes"`
	HitBombs    int                  `json:"hit_bombs"`
	PassedBombs int                  `json:"passed_bombs"`
	GameHash    string               `json:"gamehash"`
}

// HighscoreEntry is a PlayResult projected for a leaderboard, carrying its
// competition rank number.
type HighscoreEntry struct {
	Rank       int    `json:"rank"`
	Player     string `json:"player"`
	LocalTS    string `json:"local_ts"`
	Score      int    `json:"score"`
	MaxScore   int    `json:"max_score"`
	Combo      int    `json:"combo"`
	MaxCombo   int    `json:"max_combo"`
	RankLabel  string `json:"result_rank"`
	Verdict    string `json:"verdict"`
	MostRecent bool   `json:"most_recent"`

	gamehash string
}

// Aggregate is the per-player playtime summary.
type Aggregate struct {
	Player      string  `json:"player"`
	Plays       int     `json:"plays"`
	Playtime    float64 `json:"playtime"`
	Pausetime   float64 `json:"pausetime"`
	Score       int64   `json:"score"`
	MaxScore    int64   `json:"max_score"`
	PassedNotes int64   `json:"passed_notes"`
	MissedNotes int64   `json:"missed_notes"`
}

// PlayerInfo composes today's and all-time aggregates with the player's
// personal highscore table.
type PlayerInfo struct {
	Player     string           `json:"player"`
	Today      *Aggregate       `json:"today"`
	AllTime    *Aggregate       `json:"alltime"`
	Highscores []HighscoreEntry `json:"highscores"`
}

type handsDoc struct {
	Left  stats.HandSample `json:"left"`
	Right stats.HandSample `json:"right"`
}

// Ingest writes one finalized result. Replays of the same session are
// silently dropped via the gamehash unique constraint; returns whether a
// new row was written so callers push change events only on novelty.
func (s *Store) Ingest(player string, startedLocal time.Time, res *session.FinalResult) (bool, error) {
	hands, err := json.Marshal(handsDoc{Left: res.LeftHand, Right: res.RightHand})
	if err != nil {
		return false, fmt.Errorf("marshal hands: %w", err)
	}
	local := startedLocal.Local()
	r, err := s.db.Exec(`
		INSERT OR IGNORE INTO results (
			player, play_day, local_ts, starttime_local, starttime, endtime,
			song_author, song_title, level_author, difficulty, notes_cnt,
			playtime, pausetime, gamehash, result_verdict,
			result_score, result_maxscore, result_rank,
			combo, max_combo, passed_notes, hit_notes, missed_notes,
			hit_bombs, passed_bombs, hands_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullable(player), local.Format("2006-01-02"), local.Format("2006-01-02 15:04:05"),
		float64(startedLocal.UnixNano())/1e9, res.StartTS, res.EndTS,
		res.Song.SongAuthor, res.Song.SongTitle, res.Song.LevelAuthor, res.Song.Difficulty, res.NotesCount,
		res.Playtime, res.Pausetime, res.GameHash, res.Verdict,
		res.Performance.Score, res.Performance.MaxScore, res.Performance.Rank,
		res.Performance.Combo, res.Performance.MaxCombo,
		res.Performance.PassedNotes, res.Performance.HitNotes, res.Performance.MissedNotes,
		res.Performance.HitBombs, res.Performance.PassedBombs, string(hands),
	)
	if err != nil {
		return false, fmt.Errorf("insert result: %w", err)
	}
	n, _ := r.RowsAffected()
	return n > 0, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const resultFields = `COALESCE(player, ''), play_day, local_ts, starttime, endtime,
	song_author, song_title, level_author, difficulty, notes_cnt,
	playtime, pausetime, result_verdict, result_score, result_maxscore, result_rank,
	combo, max_combo, passed_notes, hit_notes, missed_notes, hit_bombs, passed_bombs, gamehash`

func scanResult(rows *sql.Rows) (PlayResult, error) {
	var p PlayResult
	err := rows.Scan(&p.Player, &p.PlayDay, &p.LocalTS, &p.StartTS, &p.EndTS,
		&p.Song.SongAuthor, &p.Song.SongTitle, &p.Song.LevelAuthor, &p.Song.Difficulty, &p.NotesCount,
		&p.Playtime, &p.Pausetime, &p.Verdict, &p.Score, &p.MaxScore, &p.RankLabel,
		&p.Combo, &p.MaxCombo, &p.PassedNotes, &p.HitNotes, &p.MissedNotes, &p.HitBombs, &p.PassedBombs, &p.GameHash)
	return p, err
}

// Recent returns the most recently finished plays, newest first.
func (s *Store) Recent(limit int) ([]PlayResult, error) {
	rows, err := s.db.Query(`SELECT `+resultFields+` FROM results ORDER BY endtime DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayResult
	for rows.Next() {
		p, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AllResults returns every persisted row, oldest first. Used by export.
func (s *Store) AllResults() ([]PlayResult, error) {
	rows, err := s.db.Query(`SELECT ` + resultFields + ` FROM results ORDER BY endtime ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayResult
	for rows.Next() {
		p, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SongKeys returns every distinct song identity in the store.
func (s *Store) SongKeys() ([]session.SongIdentity, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT song_author, song_title, level_author, difficulty
		FROM results
		ORDER BY song_author ASC, song_title ASC, difficulty DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []session.SongIdentity
	for rows.Next() {
		var k session.SongIdentity
		if err := rows.Scan(&k.SongAuthor, &k.SongTitle, &k.LevelAuthor, &k.Difficulty); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Highscores returns the leaderboard for one song key. Rows are ordered by
// score, ties broken by max combo; rows tied on both share a rank number and
// the next distinct pair increments the rank by exactly one.
func (s *Store) Highscores(key session.SongIdentity, limit int) ([]HighscoreEntry, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(player, ''), local_ts, result_score, result_maxscore,
		       combo, max_combo, result_rank, result_verdict, gamehash
		FROM results
		WHERE song_author = ? AND song_title = ? AND level_author = ? AND difficulty = ?
		ORDER BY result_score DESC, max_combo DESC
		LIMIT ?`,
		key.SongAuthor, key.SongTitle, key.LevelAuthor, key.Difficulty, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HighscoreEntry
	rank := 0
	prevScore, prevCombo := -1, -1
	for rows.Next() {
		var e HighscoreEntry
		if err := rows.Scan(&e.Player, &e.LocalTS, &e.Score, &e.MaxScore,
			&e.Combo, &e.MaxCombo, &e.RankLabel, &e.Verdict, &e.gamehash); err != nil {
			return nil, err
		}
		if rank == 0 || e.Score != prevScore || e.MaxCombo != prevCombo {
			rank++
			prevScore, prevCombo = e.Score, e.MaxCombo
		}
		e.Rank = rank
		out = append(out, e)
	}
	return out, rows.Err()
}

// HighscoreRank gives the competition rank a (score, maxCombo) pair holds
// among a song key's rows: 1 + the number of distinct strictly-better pairs.
// Works for entries outside any displayed top-N without re-sorting.
func (s *Store) HighscoreRank(key session.SongIdentity, score, maxCombo int) (int, error) {
	var better int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT DISTINCT result_score, max_combo FROM results
			WHERE song_author = ? AND song_title = ? AND level_author = ? AND difficulty = ?
			AND (result_score > ? OR (result_score = ? AND max_combo > ?))
		)`,
		key.SongAuthor, key.SongTitle, key.LevelAuthor, key.Difficulty,
		score, score, maxCombo).Scan(&better)
	if err != nil {
		return 0, err
	}
	return 1 + better, nil
}

// PersonalHighscores returns the leaderboard for the player's most recent
// play, guaranteeing that play is present: inside the table it is flagged
// most-recent; off the table it replaces the last slot, carrying its true
// rank. Empty result means the player has no completed games.
func (s *Store) PersonalHighscores(player string, limit int) ([]HighscoreEntry, error) {
	rows, err := s.db.Query(`SELECT `+resultFields+` FROM results WHERE player = ? ORDER BY endtime DESC LIMIT 1`, player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	latest, err := scanResult(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	hs, err := s.Highscores(latest.Song, limit)
	if err != nil {
		return nil, err
	}
	for i := range hs {
		if hs[i].gamehash == latest.GameHash {
			hs[i].MostRecent = true
			return hs, nil
		}
	}

	// Fell off the leaderboard: keep it visible as the final entry.
	if len(hs) >= limit {
		hs = hs[:limit-1]
	}
	rank, err := s.HighscoreRank(latest.Song, latest.Score, latest.MaxCombo)
	if err != nil {
		return nil, err
	}
	hs = append(hs, HighscoreEntry{
		Rank:       rank,
		Player:     latest.Player,
		LocalTS:    latest.LocalTS,
		Score:      latest.Score,
		MaxScore:   latest.MaxScore,
		Combo:      latest.Combo,
		MaxCombo:   latest.MaxCombo,
		RankLabel:  latest.RankLabel,
		Verdict:    latest.Verdict,
		MostRecent: true,
		gamehash:   latest.GameHash,
	})
	return hs, nil
}

// PlaytimeAggregate sums play statistics per player, most playtime first.
// day filters to one local calendar day ("2006-01-02"); player to one name.
// Empty strings disable the respective filter.
func (s *Store) PlaytimeAggregate(day, player string) ([]Aggregate, error) {
	q := `
		SELECT COALESCE(player, ''), COUNT(*), SUM(playtime), SUM(pausetime),
		       SUM(result_score), SUM(result_maxscore), SUM(passed_notes), SUM(missed_notes)
		FROM results`
	var conds []string
	var args []any
	if day != "" {
		conds = append(conds, "play_day = ?")
		args = append(args, day)
	}
	if player != "" {
		conds = append(conds, "player = ?")
		args = append(args, player)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " GROUP BY player ORDER BY SUM(playtime) DESC"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Aggregate
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.Player, &a.Plays, &a.Playtime, &a.Pausetime,
			&a.Score, &a.MaxScore, &a.PassedNotes, &a.MissedNotes); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PlayerInfo composes today's aggregate, the all-time aggregate and the
// personal highscore table into one view.
func (s *Store) PlayerInfo(player string, highscoreLimit int) (*PlayerInfo, error) {
	info := &PlayerInfo{Player: player}

	today, err := s.PlaytimeAggregate(time.Now().Local().Format("2006-01-02"), player)
	if err != nil {
		return nil, err
	}
	if len(today) > 0 {
		info.Today = &today[0]
	}
	alltime, err := s.PlaytimeAggregate("", player)
	if err != nil {
		return nil, err
	}
	if len(alltime) > 0 {
		info.AllTime = &alltime[0]
	}
	info.Highscores, err = s.PersonalHighscores(player, highscoreLimit)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// RecentPlayers lists distinct named players, most recently seen first.
func (s *Store) RecentPlayers(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT player FROM results
		WHERE player IS NOT NULL AND player != ''
		GROUP BY player
		ORDER BY MAX(endtime) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkFileSeen records an archival file's (size, mtime µs) fingerprint so
// re-imports skip it. Intentionally a cheap heuristic, not content-addressed.
func (s *Store) MarkFileSeen(sizeBytes, mtimeMicros int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO seen_files (size_bytes, mtime_micros) VALUES (?, ?)`,
		sizeBytes, mtimeMicros)
	return err
}

// HaveSeenFile reports whether the fingerprint was recorded before.
func (s *Store) HaveSeenFile(sizeBytes, mtimeMicros int64) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM seen_files WHERE size_bytes = ? AND mtime_micros = ?`,
		sizeBytes, mtimeMicros).Scan(&count)
	return count > 0, err
}
