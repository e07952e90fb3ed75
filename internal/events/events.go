// Package events decodes the game's status-feed telemetry events.
package events

import (
	"encoding/json"
	"fmt"
)

// Event kinds emitted by the game feed. Anything else is carried but ignored.
const (
	KindSongStart    = "songStart"
	KindScoreChanged = "scoreChanged"
	KindNoteFullyCut = "noteFullyCut"
	KindPause        = "pause"
	KindResume       = "resume"
	KindFinished     = "finished"
	KindFailed       = "failed"
)

// Beatmap identifies the level being played.
type Beatmap struct {
	SongAuthor  string  `json:"songAuthorName"`
	SongTitle   string  `json:"songName"`
	LevelAuthor string  `json:"levelAuthorName"`
	Difficulty  int     `json:"difficulty"`
	SongBPM     float64 `json:"songBPM"`
	MaxScore    int     `json:"maxScore"`
	NotesCount  int     `json:"notesCount"`
}

// Performance is the running score snapshot sent with scoreChanged.
type Performance struct {
	Score       int    `json:"score"`
	MaxScore    int    `json:"currentMaxScore"`
	Combo       int    `json:"combo"`
	MaxCombo    int    `json:"maxCombo"`
	PassedNotes int    `json:"passedNotes"`
	HitNotes    int    `json:"hitNotes"`
	MissedNotes int    `json:"missedNotes"`
	HitBombs    int    `json:"hitBombs"`
	PassedBombs int    `json:"passedBombs"`
	Rank        string `json:"rank"`
}

// Status wraps the kind-specific payloads under the feed's "status" key.
type Status struct {
	Beatmap     *Beatmap     `json:"beatmap"`
	Performance *Performance `json:"performance"`
}

// NoteCut describes one fully cut note. SaberA is the left hand.
type NoteCut struct {
	SaberType           string  `json:"saberType"`
	SaberSpeed          float64 `json:"saberSpeed"`
	CutDistanceToCenter float64 `json:"cutDistanceToCenter"`
	CutDirDeviation     float64 `json:"cutDirDeviation"`
	TimeDeviation       float64 `json:"timeDeviation"`
	SaberTypeOK         bool    `json:"saberTypeOK"`
}

// Event is one decoded feed event. Time is milliseconds since epoch.
type Event struct {
	Kind    string   `json:"event"`
	Time    int64    `json:"time"`
	Status  *Status  `json:"status,omitempty"`
	NoteCut *NoteCut `json:"noteCut,omitempty"`
}

// Decode parses one JSON line from the feed. A missing or non-string
// "event" field is an error; unknown kinds are not.
func Decode(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Kind == "" {
		return Event{}, fmt.Errorf("decode event: missing event kind")
	}
	return e, nil
}

// Terminal reports whether the kind ends a session.
func Terminal(kind string) bool {
	return kind == KindFinished || kind == KindFailed
}
