// event-tree renders the bot's append-only event log as trees, one per
// generation, for operators poking at a live or post-mortem database.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type event struct {
	ID        int64
	Timestamp int64
	ParentID  sql.NullInt64
	EventType string
	Payload   sql.NullString
	Children  []*event
}

func main() {
	var (
		dbPath  string
		eventID int64
		limit   int
		jsonOut bool
	)

	flag.StringVar(&dbPath, "db", envOrDefault("LLAMAGRAM_DB_PATH", "./llamagram.db"), "SQLite event log path")
	flag.Int64Var(&eventID, "id", 0, "show the subtree of a specific event ID")
	flag.IntVar(&limit, "n", 20, "number of most recent root events to show")
	flag.BoolVar(&jsonOut, "json", false, "output JSON format")
	flag.Parse()

	db, err := sql.Open("sqlite3", dbPath+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	forest, byID, err := loadForest(db)
	if err != nil {
		log.Fatalf("load events: %v", err)
	}

	var roots []*event
	if eventID != 0 {
		ev, ok := byID[eventID]
		if !ok {
			log.Fatalf("event %d not found", eventID)
		}
		roots = []*event{ev}
	} else {
		if limit > 0 && len(forest) > limit {
			forest = forest[len(forest)-limit:]
		}
		roots = forest
	}

	if jsonOut {
		printJSON(roots)
		return
	}
	for _, root := range roots {
		printTree(root, "", true)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadForest reads every event and links children to parents. Events whose
// parent is missing (or nil) become roots, ordered by id.
func loadForest(db *sql.DB) ([]*event, map[int64]*event, error) {
	rows, err := db.Query(
		`SELECT id, timestamp, parent_id, event_type, payload FROM events ORDER BY id ASC`,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*event)
	var all []*event
	for rows.Next() {
		ev := &event{}
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ParentID, &ev.EventType, &ev.Payload); err != nil {
			return nil, nil, err
		}
		byID[ev.ID] = ev
		all = append(all, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var roots []*event
	for _, ev := range all {
		if ev.ParentID.Valid {
			if parent, ok := byID[ev.ParentID.Int64]; ok && parent.ID != ev.ID {
				parent.Children = append(parent.Children, ev)
				continue
			}
		}
		roots = append(roots, ev)
	}
	return roots, byID, nil
}

func printTree(ev *event, prefix string, isLast bool) {
	line := formatEvent(ev)
	if prefix == "" {
		fmt.Println(line)
	} else {
		connector := "├── "
		if isLast {
			connector = "└── "
		}
		fmt.Println(prefix + connector + line)
	}

	childPrefix := prefix
	if prefix != "" {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	} else {
		childPrefix = " "
	}
	for i, child := range ev.Children {
		printTree(child, childPrefix, i == len(ev.Children)-1)
	}
}

// formatEvent renders one line: [id] timestamp  event_type  key=value ...
func formatEvent(ev *event) string {
	ts := time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%d] %s  %s", ev.ID, ts, ev.EventType)
	if !ev.Payload.Valid || ev.Payload.String == "" {
		return line
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ev.Payload.String), &m); err != nil {
		return line
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += "  " + k + "=" + formatValue(m[k])
	}
	return line
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 80 {
			return fmt.Sprintf("%q", val[:80]+"...")
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type jsonEvent struct {
	ID        int64       `json:"id"`
	Timestamp int64       `json:"timestamp"`
	EventType string      `json:"event_type"`
	Payload   any         `json:"payload,omitempty"`
	Children  []jsonEvent `json:"children,omitempty"`
}

func toJSONEvent(ev *event) jsonEvent {
	je := jsonEvent{ID: ev.ID, Timestamp: ev.Timestamp, EventType: ev.EventType}
	if ev.Payload.Valid && ev.Payload.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(ev.Payload.String), &m); err == nil {
			je.Payload = m
		}
	}
	for _, child := range ev.Children {
		je.Children = append(je.Children, toJSONEvent(child))
	}
	return je
}

func printJSON(roots []*event) {
	out := make([]jsonEvent, 0, len(roots))
	for _, root := range roots {
		out = append(out, toJSONEvent(root))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode json: %v", err)
	}
}
