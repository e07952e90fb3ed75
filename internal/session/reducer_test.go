package session

import (
	"testing"

	"github.com/cyberblades/historian/internal/events"
)

func startEvent(ts int64) events.Event {
	return events.Event{
		Kind: events.KindSongStart,
		Time: ts,
		Status: &events.Status{
			Beatmap: &events.Beatmap{
				SongAuthor:  "Camellia",
				SongTitle:   "Ghost",
				LevelAuthor: "cerret",
				Difficulty:  4,
				NotesCount:  1502,
				MaxScore:    1370155,
			},
		},
	}
}

func scoreEvent(ts int64, score int) events.Event {
	return events.Event{
		Kind: events.KindScoreChanged,
		Time: ts,
		Status: &events.Status{
			Performance: &events.Performance{
				Score:    score,
				MaxScore: score + 100,
				Combo:    10,
				MaxCombo: 25,
				Rank:     "S",
			},
		},
	}
}

func cutEvent(ts int64, saber string, speed float64, ok bool) events.Event {
	return events.Event{
		Kind: events.KindNoteFullyCut,
		Time: ts,
		NoteCut: &events.NoteCut{
			SaberType:   saber,
			SaberSpeed:  speed,
			SaberTypeOK: ok,
		},
	}
}

func plain(kind string, ts int64) events.Event {
	return events.Event{Kind: kind, Time: ts}
}

func TestIdleIgnoresEverythingButSongStart(t *testing.T) {
	r := NewReducer(true)
	for _, kind := range []string{
		events.KindScoreChanged, events.KindNoteFullyCut,
		events.KindPause, events.KindResume,
		events.KindFinished, events.KindFailed,
		"obstacleEnter",
	} {
		out := r.Process(plain(kind, 1000))
		if out.Final != nil || out.Changed || out.Dropped {
			t.Errorf("idle reducer reacted to %q: %+v", kind, out)
		}
	}
	if r.Active() {
		t.Fatal("reducer became active without songStart")
	}
}

func TestSongStartWithoutBeatmapIgnored(t *testing.T) {
	r := NewReducer(true)
	out := r.Process(events.Event{Kind: events.KindSongStart, Time: 1000})
	if out.Changed || r.Active() {
		t.Fatal("songStart without beatmap should be a no-op")
	}
	out = r.Process(events.Event{Kind: events.KindSongStart, Time: 1000, Status: &events.Status{}})
	if out.Changed || r.Active() {
		t.Fatal("songStart with empty status should be a no-op")
	}
}

func TestPlaytimeExcludesPauses(t *testing.T) {
	r := NewReducer(true)
	r.Process(startEvent(10_000))
	r.Process(plain(events.KindPause, 20_000))
	r.Process(plain(events.KindResume, 25_000))
	out := r.Process(plain(events.KindFinished, 70_000))

	if out.Final == nil {
		t.Fatal("finished did not finalize")
	}
	f := out.Final
	if f.Playtime != 55.0 {
		t.Errorf("playtime = %v, want 55", f.Playtime)
	}
	if f.Pausetime != 5.0 {
		t.Errorf("pausetime = %v, want 5", f.Pausetime)
	}
	if f.Verdict != VerdictPass {
		t.Errorf("verdict = %q, want pass", f.Verdict)
	}
	if r.Active() {
		t.Error("reducer still active after finalize")
	}
}

func TestRedundantPauseKeepsOriginalStart(t *testing.T) {
	r := NewReducer(true)
	r.Process(startEvent(0))
	if out := r.Process(plain(events.KindPause, 10_000)); !out.Changed {
		t.Fatal("first pause should change state")
	}
	if out := r.Process(plain(events.KindPause, 15_000)); out.Changed {
		t.Error("redundant pause should be ignored")
	}
	r.Process(plain(events.KindResume, 20_000))
	out := r.Process(plain(events.KindFinished, 30_000))
	if out.Final.Pausetime != 10.0 {
		t.Errorf("pausetime = %v, want 10 (from the first pause)", out.Final.Pausetime)
	}
}

func TestStrayResumeIsNoOp(t *testing.T) {
	r := NewReducer(true)
	r.Process(startEvent(0))
	if out := r.Process(plain(events.KindResume, 5_000)); out.Changed {
		t.Error("resume without open pause should be ignored")
	}
	out := r.Process(plain(events.KindFinished, 10_000))
	if out.Final.Pausetime != 0 {
		t.Errorf("pausetime = %v, want 0", out.Final.Pausetime)
	}
}

func TestFinishWhilePausedClosesPause(t *testing.T) {
	r := NewReducer(true)
	r.Process(startEvent(0))
	r.Process(plain(events.KindPause, 40_000))
	out := r.Process(plain(events.KindFailed, 50_000))

	f := out.Final
	if f == nil {
		t.Fatal("failed did not finalize")
	}
	if f.Pausetime != 10.0 {
		t.Errorf("pausetime = %v, want 10 (open pause closed at end)", f.Pausetime)
	}
	if f.Playtime != 40.0 {
		t.Errorf("playtime = %v, want 40", f.Playtime)
	}
	if f.Verdict != VerdictFail {
		t.Errorf("verdict = %q, want fail", f.Verdict)
	}
}

func TestReentrantSongStartDropsLiveSession(t *testing.T) {
	r := NewReducer(true)
	r.Process(startEvent(0))
	r.Process(scoreEvent(1_000, 5000))

	out := r.Process(startEvent(60_000))
	if !out.Dropped {
		t.Fatal("re-entrant songStart should report the dropped session")
	}
	if out.Final != nil {
		t.Fatal("dropped session must not finalize")
	}
	snap := r.Snapshot()
	if snap == nil || snap.StartTS != 60_000 {
		t.Fatalf("new session not installed: %+v", snap)
	}
	if snap.Performance.Score != 0 {
		t.Error("performance leaked from the dropped session")
	}
}

func TestScoreChangedOverwritesWholesale(t *testing.T) {
	r := NewReducer(true)
	r.Process(startEvent(0))
	r.Process(scoreEvent(1_000, 5000))
	// Second snapshot carries a lower combo; nothing may survive the overwrite.
	r.Process(events.Event{
		Kind: events.KindScoreChanged,
		Time: 2_000,
		Status: &events.Status{
			Performance: &events.Performance{Score: 5100, Combo: 0, MaxCombo: 25, Rank: "A"},
		},
	})
	snap := r.Snapshot()
	if snap.Performance.Score != 5100 || snap.Performance.Combo != 0 || snap.Performance.Rank != "A" {
		t.Errorf("performance not overwritten wholesale: %+v", snap.Performance)
	}
}

func TestNoteCutHandDispatch(t *testing.T) {
	r := NewReducer(true)
	r.Process(startEvent(0))
	r.Process(cutEvent(100, "SaberA", 20.0, true))
	r.Process(cutEvent(200, "SaberA", 30.0, true))
	r.Process(cutEvent(300, "SaberB", 40.0, false))

	snap := r.Snapshot()
	if snap.LeftHand.Cuts != 2 {
		t.Errorf("left cuts = %d, want 2", snap.LeftHand.Cuts)
	}
	if snap.RightHand.Cuts != 1 {
		t.Errorf("right cuts = %d, want 1", snap.RightHand.Cuts)
	}
	if snap.LeftHand.CorrectCuts != 2 || snap.RightHand.CorrectCuts != 0 {
		t.Errorf("correct cuts = %d/%d, want 2/0", snap.LeftHand.CorrectCuts, snap.RightHand.CorrectCuts)
	}
	if snap.LeftHand.Speed.Mean != 25.0 {
		t.Errorf("left speed mean = %v, want 25", snap.LeftHand.Speed.Mean)
	}
}

func TestHandTrackingDisabled(t *testing.T) {
	r := NewReducer(false)
	r.Process(startEvent(0))
	if out := r.Process(cutEvent(100, "SaberA", 20.0, true)); out.Changed {
		t.Error("noteFullyCut should be inert with hand tracking off")
	}
	if snap := r.Snapshot(); snap.LeftHand.Cuts != 0 {
		t.Error("cuts recorded with hand tracking off")
	}
}

func TestDiscard(t *testing.T) {
	r := NewReducer(true)
	if r.Discard() {
		t.Error("discard while idle reported a dropped session")
	}
	r.Process(startEvent(0))
	if !r.Discard() {
		t.Error("discard of a live session not reported")
	}
	if r.Active() {
		t.Error("still active after discard")
	}
	if out := r.Process(plain(events.KindFinished, 1_000)); out.Final != nil {
		t.Error("finalized after discard")
	}
}

func TestGameHashStableAndSensitive(t *testing.T) {
	song := SongIdentity{SongAuthor: "a", SongTitle: "b", LevelAuthor: "c", Difficulty: 3}
	h1 := GameHash(100, song, 50, 200)
	h2 := GameHash(100, song, 50, 200)
	if h1 != h2 {
		t.Fatal("hash not deterministic")
	}
	if len(h1) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(h1))
	}

	variants := []string{
		GameHash(101, song, 50, 200),
		GameHash(100, SongIdentity{SongAuthor: "x", SongTitle: "b", LevelAuthor: "c", Difficulty: 3}, 50, 200),
		GameHash(100, SongIdentity{SongAuthor: "a", SongTitle: "x", LevelAuthor: "c", Difficulty: 3}, 50, 200),
		GameHash(100, SongIdentity{SongAuthor: "a", SongTitle: "b", LevelAuthor: "x", Difficulty: 3}, 50, 200),
		GameHash(100, SongIdentity{SongAuthor: "a", SongTitle: "b", LevelAuthor: "c", Difficulty: 2}, 50, 200),
		GameHash(100, song, 51, 200),
		GameHash(100, song, 50, 201),
	}
	seen := map[string]bool{h1: true}
	for i, v := range variants {
		if seen[v] {
			t.Errorf("variant %d collides", i)
		}
		seen[v] = true
	}
}

func TestGameHashFieldBoundaries(t *testing.T) {
	// NUL joining keeps adjacent fields from bleeding into each other.
	a := GameHash(1, SongIdentity{SongAuthor: "ab", SongTitle: "c"}, 0, 2)
	b := GameHash(1, SongIdentity{SongAuthor: "a", SongTitle: "bc"}, 0, 2)
	if a == b {
		t.Fatal("field boundary collision")
	}
}

func TestReplayProducesIdenticalHash(t *testing.T) {
	run := func() *FinalResult {
		r := NewReducer(true)
		r.Process(startEvent(5_000))
		r.Process(scoreEvent(6_000, 1234))
		return r.Process(plain(events.KindFinished, 90_000)).Final
	}
	if run().GameHash != run().GameHash {
		t.Fatal("replay changed the content identity")
	}
}

func TestSnapshotNilWhenIdle(t *testing.T) {
	r := NewReducer(true)
	if r.Snapshot() != nil {
		t.Fatal("snapshot should be nil while idle")
	}
	r.Process(startEvent(0))
	r.Process(plain(events.KindPause, 1_000))
	snap := r.Snapshot()
	if snap == nil || !snap.Paused {
		t.Fatalf("paused not reflected in snapshot: %+v", snap)
	}
}
