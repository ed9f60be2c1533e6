package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Record is an archived device log line as read back from the dataset.
type Record struct {
	Ts            string
	SessionID     string
	Port          string
	Device        string
	Day           string
	Level         string
	Hash          string
	Template      string
	Message       string
	Args          []any
	LatestVersion string
}

// Filter narrows a query by partition. Empty fields match everything.
type Filter struct {
	Device string
	Day    string
	Level  string
}

func (f Filter) match(r Record) bool {
	return (f.Device == "" || f.Device == r.Device) &&
		(f.Day == "" || f.Day == r.Day) &&
		(f.Level == "" || f.Level == r.Level)
}

// Reader reads archived lines back from a dataset.
type Reader struct {
	ds lode.Dataset
}

// NewReader opens dataset for reading with the same layout and codec as
// the write path.
func NewReader(dataset string, factory lode.StoreFactory) (*Reader, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return &Reader{ds: ds}, nil
}

// Query returns archived lines matching f, oldest snapshot first.
func (r *Reader) Query(ctx context.Context, f Filter) ([]Record, error) {
	snapshots, err := r.ds.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", "snapshots", err)
	}

	var out []Record
	for _, snap := range snapshots {
		if !snapshotMayMatch(snap, f) {
			continue
		}
		data, err := r.ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindDeviceLog {
				continue
			}
			if rec := fromMap(m); f.match(rec) {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// snapshotMayMatch prunes snapshots by their Hive paths. Record fields
// remain authoritative.
func snapshotMayMatch(snap *lode.DatasetSnapshot, f Filter) bool {
	if f.Device == "" && f.Day == "" && f.Level == "" {
		return true
	}
	for _, file := range snap.Manifest.Files {
		if pathHas(file.Path, "device", f.Device) &&
			pathHas(file.Path, "day", f.Day) &&
			pathHas(file.Path, "level", f.Level) {
			return true
		}
	}
	return false
}

// pathHas reports whether path has an exact key=value segment.
func pathHas(path, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func fromMap(m map[string]any) Record {
	rec := Record{
		Ts:            str(m["ts"]),
		SessionID:     str(m["session_id"]),
		Port:          str(m["port"]),
		Device:        str(m["device"]),
		Day:           str(m["day"]),
		Level:         str(m["level"]),
		Hash:          str(m["hash"]),
		Template:      str(m["template"]),
		Message:       str(m["message"]),
		LatestVersion: str(m["latest_version"]),
	}
	if args, ok := m["args"].([]any); ok {
		rec.Args = args
	}
	return rec
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
