package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/vitalstream/bioengine/internal/types"
)

// streamWriter owns one ndjson file for one (sensor, data type) pair
// within an active session. Writes happen on a dedicated goroutine fed by
// a bounded channel so Append never blocks its caller.
type streamWriter struct {
	sensor   types.SensorKind
	kind     types.DataType
	filename string
	path     string

	records  chan any
	done     chan struct{}
	count    int64
	overflow func(stream string)
}

func newStreamWriter(dir, deviceID string, sensor types.SensorKind, kind types.DataType, queueLen int, overflow func(string)) (*streamWriter, error) {
	filename := fmt.Sprintf("%s_%s_%s.json", deviceID, sensor, kind)
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &streamWriter{
		sensor: sensor, kind: kind, filename: filename, path: path,
		records: make(chan any, queueLen), done: make(chan struct{}), overflow: overflow,
	}
	go w.run(f)
	return w, nil
}

// enqueue submits a record for writing without blocking. On a full queue
// it records the overflow and drops the record — the caller (a pipeline
// or the adapter) must never stall on disk I/O.
func (w *streamWriter) enqueue(payload any) {
	select {
	case w.records <- payload:
	default:
		if w.overflow != nil {
			w.overflow(w.filename)
		}
	}
}

func (w *streamWriter) run(f *os.File) {
	defer f.Close()
	bw := bufio.NewWriter(f)
	defer bw.Flush()

	enc := json.NewEncoder(bw)
	for rec := range w.records {
		if err := enc.Encode(rec); err != nil {
			slog.Error("recorder.stream_writer.encode_failed",
				"component", "recorder", "event", "stream_writer.encode_failed", "file", w.filename, "error", err)
			continue
		}
		atomic.AddInt64(&w.count, 1)
	}
	close(w.done)
}

// close drains pending records, closes the file, and returns the file
// entry plus the number of records written.
func (w *streamWriter) close() (types.FileEntry, int64) {
	close(w.records)
	<-w.done

	info, err := os.Stat(w.path)
	var size int64
	if err == nil {
		size = info.Size()
	}
	count := atomic.LoadInt64(&w.count)

	entry := types.FileEntry{
		Filename:    w.filename,
		SensorType:  w.sensor,
		DataType:    w.kind,
		SizeBytes:   size,
		SampleCount: &count,
		CreatedAt:   time.Now(),
	}
	return entry, count
}
