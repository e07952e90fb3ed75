// bsh: CLI for the Beat Saber historian.
// Live commands (status, players, player, set-player) talk to bshd over its
// unix socket; query commands (recent, songs, highscores, playtime, export)
// open the database directly; import replays archive files.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"github.com/cyberblades/historian/internal/archive"
	"github.com/cyberblades/historian/internal/config"
	"github.com/cyberblades/historian/internal/db"
	"github.com/cyberblades/historian/internal/export"
	"github.com/cyberblades/historian/internal/historian"
	"github.com/cyberblades/historian/internal/logger"
	"github.com/cyberblades/historian/internal/session"
	"github.com/cyberblades/historian/internal/store"
)

var difficultyNames = [...]string{"Easy", "Normal", "Hard", "Expert", "Expert+"}

func difficultyName(d int) string {
	if d >= 0 && d < len(difficultyNames) {
		return difficultyNames[d]
	}
	return strconv.Itoa(d)
}

func parseDifficulty(s string) (int, error) {
	for i, name := range difficultyNames {
		if s == name {
			return i, nil
		}
	}
	d, err := strconv.Atoi(s)
	if err != nil || d < 0 || d > 4 {
		return 0, fmt.Errorf("difficulty must be 0-4 or one of Easy, Normal, Hard, Expert, Expert+")
	}
	return d, nil
}

func mustConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func mustStore(cfg *config.Config) (*store.Store, func()) {
	dbc, err := db.Open(cfg.DbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh: %v\n", err)
		os.Exit(1)
	}
	return store.New(dbc), func() { dbc.Close() }
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
			t.SetAllowedRowLength(width)
		}
	}
	return t
}

// daemonClient is a line-oriented JSON connection to the bshd socket.
type daemonClient struct {
	conn net.Conn
	sc   *bufio.Scanner
}

func dialDaemon(cfg *config.Config) *daemonClient {
	conn, err := net.Dial("unix", cfg.SocketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh: cannot reach daemon at %s (is bshd running?): %v\n", cfg.SocketPath, err)
		os.Exit(1)
	}
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	return &daemonClient{conn: conn, sc: bufio.NewScanner(conn)}
}

func (dc *daemonClient) close() { dc.conn.Close() }

func (dc *daemonClient) send(cmd map[string]any) {
	b, err := json.Marshal(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh: %v\n", err)
		os.Exit(1)
	}
	if _, err := dc.conn.Write(append(b, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "bsh: send command: %v\n", err)
		os.Exit(1)
	}
}

// await reads replies until one with the wanted msgtype arrives. Pushed
// status messages interleave with replies and are skipped unless asked for.
func (dc *daemonClient) await(msgtype string, out any) {
	for dc.sc.Scan() {
		line := dc.sc.Bytes()
		var head struct {
			Msgtype string `json:"msgtype"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			continue
		}
		if head.Msgtype == "error" {
			fmt.Fprintf(os.Stderr, "bsh: daemon: %s\n", head.Text)
			os.Exit(1)
		}
		if head.Msgtype != msgtype {
			continue
		}
		if err := json.Unmarshal(line, out); err != nil {
			fmt.Fprintf(os.Stderr, "bsh: decode %s reply: %v\n", msgtype, err)
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "bsh: daemon closed the connection\n")
	os.Exit(1)
}

func cmdStatus() {
	cfg := mustConfig()
	dc := dialDaemon(cfg)
	defer dc.close()

	var st historian.Status
	dc.send(map[string]any{"cmd": "status"})
	dc.await("status", &st)

	game := "connected"
	if !st.Connection.ConnectedToBeatSaber {
		game = "not connected"
	}
	player := "(none)"
	if st.Connection.CurrentPlayer != nil {
		player = *st.Connection.CurrentPlayer
	}
	fmt.Printf("bsh status\n")
	fmt.Printf("  game:    %s\n", game)
	fmt.Printf("  player:  %s\n", player)
	if g := st.CurrentGame; g != nil {
		state := "playing"
		if g.Paused {
			state = "paused"
		}
		fmt.Printf("  song:    %s - %s [%s] (%s)\n",
			g.Song.SongAuthor, g.Song.SongTitle, difficultyName(g.Song.Difficulty), state)
		fmt.Printf("  score:   %d / %d  combo %d (max %d)  rank %s\n",
			g.Performance.Score, g.Performance.MaxScore,
			g.Performance.Combo, g.Performance.MaxCombo, g.Performance.Rank)
	} else {
		fmt.Printf("  song:    (idle)\n")
	}
}

func cmdPlayers() {
	cfg := mustConfig()
	dc := dialDaemon(cfg)
	defer dc.close()

	var reply struct {
		Players []string `json:"players"`
	}
	dc.send(map[string]any{"cmd": "recentplayers"})
	dc.await("recentplayers", &reply)

	if len(reply.Players) == 0 {
		fmt.Println("(no players yet)")
		return
	}
	for _, p := range reply.Players {
		fmt.Println(p)
	}
}

func cmdPlayer(name string) {
	cfg := mustConfig()
	dc := dialDaemon(cfg)
	defer dc.close()

	var info store.PlayerInfo
	dc.send(map[string]any{"cmd": "playerinfo", "player": name})
	dc.await("playerinfo", &info)

	fmt.Printf("Player: %s\n\n", info.Player)
	printAggregate("Today", info.Today)
	printAggregate("All time", info.AllTime)

	if len(info.Highscores) > 0 {
		fmt.Println("Personal highscores:")
		t := newTable()
		t.AppendHeader(table.Row{"#", "When", "Score", "Max", "Combo", "Rank", "Verdict", ""})
		for _, hs := range info.Highscores {
			marker := ""
			if hs.MostRecent {
				marker = "<- last"
			}
			t.AppendRow(table.Row{
				hs.Rank, hs.LocalTS, hs.Score, hs.MaxScore, hs.MaxCombo, hs.RankLabel, hs.Verdict, marker,
			})
		}
		t.Render()
	}
}

func printAggregate(label string, a *store.Aggregate) {
	if a == nil {
		fmt.Printf("%s: no plays\n\n", label)
		return
	}
	fmt.Printf("%s: %d plays, %s played, %s paused, %d/%d notes hit\n\n",
		label, a.Plays,
		(time.Duration(a.Playtime) * time.Second).String(),
		(time.Duration(a.Pausetime) * time.Second).String(),
		a.PassedNotes-a.MissedNotes, a.PassedNotes)
}

func cmdSetPlayer(args []string) {
	cfg := mustConfig()
	dc := dialDaemon(cfg)
	defer dc.close()

	want := ""
	var player any
	if len(args) > 0 && args[0] != "" {
		want = args[0]
		player = args[0]
	}
	dc.send(map[string]any{"cmd": "set_player", "player": player})

	// The daemon replies to set_player only with the pushed status. The
	// initial on-connect push may still carry the old player, so read until
	// a push reflects the requested value.
	for {
		var st historian.Status
		dc.await("status", &st)
		got := ""
		if st.Connection.CurrentPlayer != nil {
			got = *st.Connection.CurrentPlayer
		}
		if got != want {
			continue
		}
		if want != "" {
			fmt.Printf("Current player: %s\n", want)
		} else {
			fmt.Println("Current player cleared.")
		}
		return
	}
}

func cmdRecent(args []string) {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "bsh recent: usage: bsh recent [count]\n")
			os.Exit(1)
		}
		limit = n
	}
	st, closeDB := mustStore(mustConfig())
	defer closeDB()

	results, err := st.Recent(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh recent: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("(no plays recorded)")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"When", "Player", "Song", "Diff", "Score", "Rank", "Verdict"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.LocalTS, r.Player,
			fmt.Sprintf("%s - %s", r.Song.SongAuthor, r.Song.SongTitle),
			difficultyName(r.Song.Difficulty),
			r.Score, r.RankLabel, r.Verdict,
		})
	}
	t.Render()
}

func cmdSongs() {
	st, closeDB := mustStore(mustConfig())
	defer closeDB()

	keys, err := st.SongKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh songs: %v\n", err)
		os.Exit(1)
	}
	if len(keys) == 0 {
		fmt.Println("(no songs recorded)")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"Author", "Song", "Mapper", "Diff"})
	for _, k := range keys {
		t.AppendRow(table.Row{k.SongAuthor, k.SongTitle, k.LevelAuthor, difficultyName(k.Difficulty)})
	}
	t.Render()
}

func cmdHighscores(args []string) {
	if len(args) < 3 {
		fmt.Fprintf(os.Stderr, "bsh highscores: usage: bsh highscores <author> <title> <difficulty> [mapper]\n")
		os.Exit(1)
	}
	diff, err := parseDifficulty(args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh highscores: %v\n", err)
		os.Exit(1)
	}
	key := session.SongIdentity{SongAuthor: args[0], SongTitle: args[1], Difficulty: diff}
	if len(args) > 3 {
		key.LevelAuthor = args[3]
	}

	st, closeDB := mustStore(mustConfig())
	defer closeDB()

	entries, err := st.Highscores(key, 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh highscores: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("(no scores for this song)")
		return
	}
	fmt.Printf("%s - %s [%s]\n", key.SongAuthor, key.SongTitle, difficultyName(key.Difficulty))
	t := newTable()
	t.AppendHeader(table.Row{"#", "Player", "When", "Score", "Max", "Combo", "Rank", "Verdict"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Rank, e.Player, e.LocalTS, e.Score, e.MaxScore, e.MaxCombo, e.RankLabel, e.Verdict})
	}
	t.Render()
}

func cmdPlaytime(args []string) {
	var day, player string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--day", "-d":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "bsh playtime: --day requires YYYY-MM-DD\n")
				os.Exit(1)
			}
			day = args[i+1]
			i++
		case "--player", "-p":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "bsh playtime: --player requires name\n")
				os.Exit(1)
			}
			player = args[i+1]
			i++
		case "today":
			day = time.Now().Format("2006-01-02")
		default:
			fmt.Fprintf(os.Stderr, "bsh playtime: usage: bsh playtime [today] [--day YYYY-MM-DD] [--player name]\n")
			os.Exit(1)
		}
	}

	st, closeDB := mustStore(mustConfig())
	defer closeDB()

	aggs, err := st.PlaytimeAggregate(day, player)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh playtime: %v\n", err)
		os.Exit(1)
	}
	if len(aggs) == 0 {
		fmt.Println("(no plays match)")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"Player", "Plays", "Playtime", "Paused", "Notes hit"})
	for _, a := range aggs {
		t.AppendRow(table.Row{
			a.Player, a.Plays,
			(time.Duration(a.Playtime) * time.Second).String(),
			(time.Duration(a.Pausetime) * time.Second).String(),
			fmt.Sprintf("%d/%d", a.PassedNotes-a.MissedNotes, a.PassedNotes),
		})
	}
	t.Render()
}

func cmdImport(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "bsh import: usage: bsh import <archive-file>...\n")
		os.Exit(1)
	}
	cfg := mustConfig()
	st, closeDB := mustStore(cfg)
	defer closeDB()

	var inserted, skipped int
	for _, path := range args {
		res, err := archive.Import(st, path, cfg.HandTracking)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bsh import: %s: %v\n", path, err)
			os.Exit(1)
		}
		if res.SkippedSeen {
			skipped++
			fmt.Printf("%s: already imported, skipped\n", path)
			continue
		}
		inserted += res.Inserted
		fmt.Printf("%s: %d session(s), %d new result(s)\n", path, res.Replayed, res.Inserted)
	}
	fmt.Printf("Imported %d new result(s), %d file(s) skipped.\n", inserted, skipped)
}

func cmdExport(args []string) {
	out := os.Stdout
	if len(args) >= 2 && (args[0] == "-o" || args[0] == "--output") {
		f, err := os.Create(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "bsh export: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	st, closeDB := mustStore(mustConfig())
	defer closeDB()

	n, err := export.Run(st, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh export: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Exported %d result(s).\n", n)
}

func usage() {
	fmt.Println("bsh: Beat Saber play historian")
	fmt.Println("Usage: bsh <status|players|player|set-player|recent|songs|highscores|playtime|import|export>")
}

func main() {
	logger.InitQuiet()
	if len(os.Args) < 2 {
		usage()
		os.Exit(0)
	}
	switch os.Args[1] {
	case "status":
		cmdStatus()
	case "players":
		cmdPlayers()
	case "player":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "bsh player: usage: bsh player <name>\n")
			os.Exit(1)
		}
		cmdPlayer(os.Args[2])
	case "set-player":
		cmdSetPlayer(os.Args[2:])
	case "recent":
		cmdRecent(os.Args[2:])
	case "songs":
		cmdSongs()
	case "highscores":
		cmdHighscores(os.Args[2:])
	case "playtime":
		cmdPlaytime(os.Args[2:])
	case "import":
		cmdImport(os.Args[2:])
	case "export":
		cmdExport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "bsh: unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}
