package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Journal persists events to a sqlite file so the control surface can
// serve a backlog to late subscribers. Purely observational: journal
// failures never affect the session.
type Journal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	type     TEXT NOT NULL,
	ts       INTEGER NOT NULL,
	fields   TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS events_agent_ts ON events (agent_id, ts);
`

// OpenJournal opens (creating if needed) the journal at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One writer; sqlite locks the file per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one event under the given agent handle.
func (j *Journal) Record(agentID string, ev Event) error {
	fields, err := json.Marshal(ev.Fields)
	if err != nil {
		return fmt.Errorf("encoding event fields: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO events (agent_id, type, ts, fields) VALUES (?, ?, ?, ?)`,
		agentID, string(ev.Type), ev.Timestamp, string(fields))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// Recent returns up to limit latest events for the agent, oldest first.
func (j *Journal) Recent(agentID string, limit int) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT type, ts, fields FROM events
		 WHERE agent_id = ? ORDER BY id DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev     Event
			typ    string
			fields string
		)
		if err := rows.Scan(&typ, &ev.Timestamp, &fields); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Type = Type(typ)
		if err := json.Unmarshal([]byte(fields), &ev.Fields); err != nil {
			return nil, fmt.Errorf("decoding event fields: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	// DESC query, flip back to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
