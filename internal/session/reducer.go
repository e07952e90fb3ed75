// Package session reduces an ordered event stream into a finalized play result.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cyberblades/historian/internal/events"
	"github.com/cyberblades/historian/internal/stats"
)

// Verdict values for a finalized session.
const (
	VerdictPass = "pass"
	VerdictFail = "fail"
)

// SongIdentity groups results for leaderboards. Difficulty is 0 (easy)
// through 4 (expert+).
type SongIdentity struct {
	SongAuthor  string `json:"song_author"`
	SongTitle   string `json:"song_title"`
	LevelAuthor string `json:"level_author"`
	Difficulty  int    `json:"difficulty"`
}

// Performance is the latest score snapshot; overwritten wholesale on
// every scoreChanged.
type Performance struct {
	Score       int    `json:"score"`
	MaxScore    int    `json:"max_score"`
	Combo       int    `json:"combo"`
	MaxCombo    int    `json:"max_combo"`
	PassedNotes int    `json:"passed_notes"`
	HitNotes    int    `json:"hit_notes"`
	MissedNotes int    `json:"missed_notes"`
	HitBombs    int    `json:"hit_bombs"`
	PassedBombs int    `json:"passed_bombs"`
	Rank        string `json:"rank"`
}

// LiveSession is the in-progress state between songStart and a terminal event.
type LiveSession struct {
	Song        SongIdentity
	StartTS     int64 // ms
	NotesCount  int
	SongBPM     float64
	MaxScore    int
	Performance Performance

	pauseTotal int64 // ms
	pauseStart int64 // ms; 0 = not paused
	left       stats.Hand
	right      stats.Hand
}

// FinalResult is produced exactly once per session by a terminal event.
type FinalResult struct {
	Song        SongIdentity     `json:"song"`
	StartTS     int64            `json:"start_ts"`
	EndTS       int64            `json:"end_ts"`
	NotesCount  int              `json:"notes_cnt"`
	Playtime    float64          `json:"playtime"` // seconds, pauses excluded
	Pausetime   float64          `json:"pausetime"`
	Verdict     string           `json:"verdict"`
	Performance Performance      `json:"final"`
	LeftHand    stats.HandSample `json:"left_hand"`
	RightHand   stats.HandSample `json:"right_hand"`
	GameHash    string           `json:"gamehash"`
}

// GameHash is the content identity of a session: sha256 over the NUL-joined
// 7-tuple that defines it. Computable only once end_ts is known.
func GameHash(startTS int64, song SongIdentity, notesCnt int, endTS int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s\x00%s\x00%s\x00%d\x00%d\x00%d",
		startTS, song.SongAuthor, song.SongTitle, song.LevelAuthor, song.Difficulty, notesCnt, endTS)))
	return hex.EncodeToString(h[:])
}

// Outcome reports what one event did to the reducer.
type Outcome struct {
	Final   *FinalResult // non-nil on a terminal transition
	Dropped bool         // a live session was discarded by a re-entrant songStart
	Changed bool         // observable state changed (push-worthy)
}

// Reducer is the Idle|Active state machine. Not safe for concurrent use;
// exactly one producer feeds it.
type Reducer struct {
	handTracking bool
	live         *LiveSession
}

func NewReducer(handTracking bool) *Reducer {
	return &Reducer{handTracking: handTracking}
}

// Active reports whether a session is in progress.
func (r *Reducer) Active() bool { return r.live != nil }

// Discard drops the live session, if any. Used when the upstream feed
// breaks mid-session: finalize-or-discard, never partial-write.
func (r *Reducer) Discard() bool {
	had := r.live != nil
	r.live = nil
	return had
}

// Process consumes one event. Unknown kinds, and known kinds arriving
// while Idle, have no observable effect.
func (r *Reducer) Process(ev events.Event) Outcome {
	switch ev.Kind {
	case events.KindSongStart:
		return r.start(ev)
	case events.KindScoreChanged:
		if r.live == nil || ev.Status == nil || ev.Status.Performance == nil {
			return Outcome{}
		}
		p := ev.Status.Performance
		r.live.Performance = Performance{
			Score:       p.Score,
			MaxScore:    p.MaxScore,
			Combo:       p.Combo,
			MaxCombo:    p.MaxCombo,
			PassedNotes: p.PassedNotes,
			HitNotes:    p.HitNotes,
			MissedNotes: p.MissedNotes,
			HitBombs:    p.HitBombs,
			PassedBombs: p.PassedBombs,
			Rank:        p.Rank,
		}
		return Outcome{Changed: true}
	case events.KindNoteFullyCut:
		if r.live == nil || !r.handTracking || ev.NoteCut == nil {
			return Outcome{}
		}
		cut := ev.NoteCut
		hand := &r.live.right
		if cut.SaberType == "SaberA" {
			hand = &r.live.left
		}
		hand.RecordCut(cut.SaberSpeed, cut.CutDistanceToCenter, cut.CutDirDeviation, cut.TimeDeviation, cut.SaberTypeOK)
		return Outcome{Changed: true}
	case events.KindPause:
		// Redundant pause while paused is ignored; the open pause keeps
		// its original start so no paused time is lost.
		if r.live == nil || r.live.pauseStart != 0 {
			return Outcome{}
		}
		r.live.pauseStart = ev.Time
		return Outcome{Changed: true}
	case events.KindResume:
		// Stray resume without an open pause is a no-op.
		if r.live == nil || r.live.pauseStart == 0 {
			return Outcome{}
		}
		r.live.pauseTotal += ev.Time - r.live.pauseStart
		r.live.pauseStart = 0
		return Outcome{Changed: true}
	case events.KindFinished, events.KindFailed:
		if r.live == nil {
			return Outcome{}
		}
		return Outcome{Final: r.finalize(ev), Changed: true}
	default:
		return Outcome{}
	}
}

func (r *Reducer) start(ev events.Event) Outcome {
	if ev.Status == nil || ev.Status.Beatmap == nil {
		return Outcome{}
	}
	dropped := r.live != nil
	bm := ev.Status.Beatmap
	r.live = &LiveSession{
		Song: SongIdentity{
			SongAuthor:  bm.SongAuthor,
			SongTitle:   bm.SongTitle,
			LevelAuthor: bm.LevelAuthor,
			Difficulty:  bm.Difficulty,
		},
		StartTS:    ev.Time,
		NotesCount: bm.NotesCount,
		SongBPM:    bm.SongBPM,
		MaxScore:   bm.MaxScore,
	}
	return Outcome{Dropped: dropped, Changed: true}
}

func (r *Reducer) finalize(ev events.Event) *FinalResult {
	live := r.live
	r.live = nil

	pause := live.pauseTotal
	if live.pauseStart != 0 {
		// Session ended while paused (fail screen during pause).
		pause += ev.Time - live.pauseStart
	}
	verdict := VerdictPass
	if ev.Kind == events.KindFailed {
		verdict = VerdictFail
	}
	return &FinalResult{
		Song:        live.Song,
		StartTS:     live.StartTS,
		EndTS:       ev.Time,
		NotesCount:  live.NotesCount,
		Playtime:    float64(ev.Time-live.StartTS-pause) / 1000,
		Pausetime:   float64(pause) / 1000,
		Verdict:     verdict,
		Performance: live.Performance,
		LeftHand:    live.left.Sample(),
		RightHand:   live.right.Sample(),
		GameHash:    GameHash(live.StartTS, live.Song, live.NotesCount, ev.Time),
	}
}

// LiveSnapshot is the status view of an in-progress session.
type LiveSnapshot struct {
	Song        SongIdentity     `json:"song"`
	StartTS     int64            `json:"start_ts"`
	NotesCount  int              `json:"notes_cnt"`
	Performance Performance      `json:"performance"`
	Paused      bool             `json:"paused"`
	PauseMS     int64            `json:"pause_ms"`
	LeftHand    stats.HandSample `json:"left_hand"`
	RightHand   stats.HandSample `json:"right_hand"`
}

// Snapshot returns the live session view, or nil when Idle.
func (r *Reducer) Snapshot() *LiveSnapshot {
	if r.live == nil {
		return nil
	}
	return &LiveSnapshot{
		Song:        r.live.Song,
		StartTS:     r.live.StartTS,
		NotesCount:  r.live.NotesCount,
		Performance: r.live.Performance,
		Paused:      r.live.pauseStart != 0,
		PauseMS:     r.live.pauseTotal,
		LeftHand:    r.live.left.Sample(),
		RightHand:   r.live.right.Sample(),
	}
}
