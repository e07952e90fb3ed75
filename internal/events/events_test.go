package events

import "testing"

func TestDecodeSongStart(t *testing.T) {
	line := []byte(`{"event":"songStart","time":1700000000000,"status":{"beatmap":{"songAuthorName":"Camellia","songName":"Ghost","levelAuthorName":"cerret","difficulty":4,"notesCount":1502,"maxScore":1370155,"songBPM":220}}}`)
	ev, err := Decode(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != KindSongStart || ev.Time != 1700000000000 {
		t.Fatalf("header mismatch: %+v", ev)
	}
	bm := ev.Status.Beatmap
	if bm.SongTitle != "Ghost" || bm.Difficulty != 4 || bm.NotesCount != 1502 {
		t.Fatalf("beatmap mismatch: %+v", bm)
	}
}

func TestDecodeUnknownKindAccepted(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"obstacleEnter","time":5}`))
	if err != nil {
		t.Fatalf("unknown kind should decode: %v", err)
	}
	if ev.Kind != "obstacleEnter" {
		t.Fatalf("kind = %q", ev.Kind)
	}
	if Terminal(ev.Kind) {
		t.Error("obstacleEnter is not terminal")
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("malformed JSON accepted")
	}
	if _, err := Decode([]byte(`{"time":5}`)); err == nil {
		t.Error("missing event kind accepted")
	}
	if _, err := Decode([]byte(`{"event":42}`)); err == nil {
		t.Error("non-string event kind accepted")
	}
}

func TestTerminal(t *testing.T) {
	if !Terminal(KindFinished) || !Terminal(KindFailed) {
		t.Error("finished/failed must be terminal")
	}
	if Terminal(KindPause) || Terminal(KindSongStart) {
		t.Error("non-terminal kind reported terminal")
	}
}
