package logtable

import (
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/types"
)

// Decoder renders device log records against the current table of a Store.
type Decoder struct {
	store     *Store
	logger    *log.Logger
	collector *metrics.Collector
}

// NewDecoder creates a decoder. logger and collector may be nil.
func NewDecoder(store *Store, logger *log.Logger, collector *metrics.Collector) *Decoder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Decoder{store: store, logger: logger, collector: collector}
}

// Decode resolves rec's hash and renders its template. An unknown hash is
// logged as a warning and reports false; it is expected whenever the table
// is older than the firmware.
//
// Argument slots the device left unset contribute no value; the remaining
// values keep their order and native types.
func (d *Decoder) Decode(rec *types.LogRecord) (types.LogLine, bool) {
	entry, ok := d.store.Table().Lookup(rec.Hash)
	if !ok {
		d.collector.IncUnknownHash()
		d.logger.Warn("Unknown hash: "+Key(rec.Hash), map[string]any{
			"hash":         Key(rec.Hash),
			"device_level": rec.Level.String(),
		})
		return types.LogLine{}, false
	}

	values := rec.Values()
	return types.LogLine{
		Level:    rec.Level,
		Hash:     rec.Hash,
		Template: entry.Msg,
		Text:     Render(entry.Msg, values),
		Version:  entry.LatestVersion,
		Values:   values,
	}, true
}
