package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/charleschow/live-scoring/internal/events"

	_ "modernc.org/sqlite"
)

func main() {
	matchID := flag.Int64("match", 0, "match id whose topic to list (0 = all)")
	search := flag.String("q", "", "substring to search for in the raw body (case-insensitive)")
	msgType := flag.String("type", "", "filter by message type (SCORE_UPDATE, EVENT, ...)")
	n := flag.Int("n", 10, "max results to return")
	pretty := flag.Bool("pretty", false, "pretty-print JSON")
	dbPath := flag.String("db", "data/push_frames.db", "path to push frame archive")
	flag.Parse()

	if *matchID == 0 && *search == "" && *msgType == "" {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/inspect_ws [-match 42] [-q <text>] [-type SCORE_UPDATE] [-n 10] [-pretty]")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(10000)&mode=ro")
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	q := `SELECT id, topic, msg_type, received, byte_size, raw FROM push_frames WHERE 1=1`
	var args []any
	if *matchID != 0 {
		q += ` AND topic = ?`
		args = append(args, events.MatchTopic(*matchID))
	}
	if *search != "" {
		q += ` AND CAST(raw AS TEXT) LIKE ?`
		args = append(args, "%"+*search+"%")
	}
	if *msgType != "" {
		q += ` AND msg_type = ?`
		args = append(args, *msgType)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, *n)

	rows, err := db.Query(q, args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	count := 0
	var total uint64
	for rows.Next() {
		var id int64
		var topic, typ, received string
		var byteSize int
		var raw []byte
		if err := rows.Scan(&id, &topic, &typ, &received, &byteSize, &raw); err != nil {
			fmt.Fprintf(os.Stderr, "scan: %v\n", err)
			continue
		}
		count++
		total += uint64(byteSize)

		rawStr := string(raw)
		if *pretty {
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err == nil {
				rawStr = buf.String()
			}
		}

		fmt.Printf("--- id=%d topic=%s type=%s received=%s size=%s ---\n%s\n\n", id, topic, typ, received, humanize.Bytes(uint64(byteSize)), rawStr)
	}
	if count == 0 {
		fmt.Println("(no frames found)")
	} else {
		fmt.Printf("(%d results, %s)\n", count, humanize.Bytes(total))
	}
}
