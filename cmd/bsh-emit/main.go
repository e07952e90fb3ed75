// bsh-emit: fake game feed for exercising bshd without a headset.
// Listens where the game's status feed would and replays a JSONL event
// capture to every daemon that connects.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6557", "address to listen on")
	delay := flag.Duration("delay", 50*time.Millisecond, "pause between events")
	loop := flag.Bool("loop", false, "replay the file forever")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: bsh-emit [-addr host:port] [-delay dur] [-loop] <events.jsonl>\n")
		os.Exit(1)
	}
	file := flag.Arg(0)
	if _, err := os.Stat(file); err != nil {
		fmt.Fprintf(os.Stderr, "bsh-emit: %v\n", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsh-emit: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("bsh-emit: listening on %s, replaying %s\n", *addr, file)

	for {
		conn, err := ln.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "bsh-emit: accept: %v\n", err)
			os.Exit(1)
		}
		go replay(conn, file, *delay, *loop)
	}
}

func replay(conn net.Conn, file string, delay time.Duration, loop bool) {
	defer conn.Close()
	fmt.Printf("bsh-emit: daemon connected from %s\n", conn.RemoteAddr())
	for {
		if err := replayOnce(conn, file, delay); err != nil {
			fmt.Printf("bsh-emit: daemon at %s gone: %v\n", conn.RemoteAddr(), err)
			return
		}
		if !loop {
			break
		}
	}
	fmt.Printf("bsh-emit: replay to %s done\n", conn.RemoteAddr())
}

func replayOnce(conn net.Conn, file string, delay time.Duration) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if _, err := conn.Write(append(line, '\n')); err != nil {
			return err
		}
		time.Sleep(delay)
	}
	return sc.Err()
}
