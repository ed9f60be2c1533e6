package logtable

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// ErrNotFound is returned by a Source when the artifact does not exist.
var ErrNotFound = errors.New("log table not found")

// Entry is one template in the artifact.
type Entry struct {
	Msg           string `json:"msg"`
	LatestVersion string `json:"latest_version"`
}

// Table is an immutable hash -> Entry mapping. A Table is never modified
// after it is published through a Store; reloads build a new one.
type Table struct {
	entries map[uint64]Entry
}

// Row is a table entry together with its hash, for listing.
type Row struct {
	Hash uint64
	Entry
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[uint64]Entry)}
}

// Parse decodes an artifact. Keys must be decimal uint64 strings.
func Parse(data []byte) (*Table, error) {
	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse log table: %w", err)
	}

	t := &Table{entries: make(map[uint64]Entry, len(raw))}
	for key, entry := range raw {
		hash, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid log table key %q: %w", key, err)
		}
		t.entries[hash] = entry
	}
	return t, nil
}

// Lookup returns the entry for hash.
func (t *Table) Lookup(hash uint64) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[hash]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Rows returns all entries ordered by hash.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	rows := make([]Row, 0, len(t.entries))
	for hash, e := range t.entries {
		rows = append(rows, Row{Hash: hash, Entry: e})
	}
	slices.SortFunc(rows, func(a, b Row) int {
		switch {
		case a.Hash < b.Hash:
			return -1
		case a.Hash > b.Hash:
			return 1
		default:
			return 0
		}
	})
	return rows
}

// Marshal encodes the table as the artifact format, indented by two spaces.
func (t *Table) Marshal() ([]byte, error) {
	raw := make(map[string]Entry, t.Len())
	if t != nil {
		for hash, e := range t.entries {
			raw[Key(hash)] = e
		}
	}
	return json.MarshalIndent(raw, "", "  ")
}

// clone copies t for building a successor table.
func (t *Table) clone() *Table {
	c := NewTable()
	if t != nil {
		for hash, e := range t.entries {
			c.entries[hash] = e
		}
	}
	return c
}
