package recorder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Minimal European Data Format (EDF) writer: one data record holding the
// whole exported interval, one signal per numeric column across all
// selected streams. No library in the corpus covers EDF; the format's
// fixed-width ASCII header is small and stable enough to hand-roll.
type edfSignal struct {
	label        string
	physicalMin  float64
	physicalMax  float64
	samples      []float64
}

func (e *Exporter) writeEDFExport(outDir, exportID string, streams []streamRecords) (string, error) {
	var signals []edfSignal
	for _, s := range streams {
		columns := collectColumns(recordsOf(s))
		for _, col := range columns {
			if col == "ts" {
				continue
			}
			values := make([]float64, 0, len(s.records))
			for _, rec := range s.records {
				v, _ := rec[col].(float64)
				values = append(values, v)
			}
			signals = append(signals, edfSignal{
				label:   fmt.Sprintf("%s_%s_%s", s.sensor, s.kind, col),
				samples: values,
			})
		}
	}
	for i := range signals {
		signals[i].physicalMin, signals[i].physicalMax = minMax(signals[i].samples)
	}

	path := filepath.Join(outDir, exportID+".edf")
	var buf bytes.Buffer
	writeEDFHeader(&buf, signals)
	writeEDFDataRecord(&buf, signals)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return -1, 1
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		hi = lo + 1
	}
	return lo, hi
}

func writeEDFHeader(buf *bytes.Buffer, signals []edfSignal) {
	ns := len(signals)
	headerBytes := 256 + ns*256
	now := time.Now().UTC()

	writeFixed(buf, "0", 8)
	writeFixed(buf, "bioengine export", 80)
	writeFixed(buf, "session export", 80)
	writeFixed(buf, now.Format("02.01.06"), 8)
	writeFixed(buf, now.Format("15.04.05"), 8)
	writeFixed(buf, fmt.Sprintf("%d", headerBytes), 8)
	writeFixed(buf, "", 44)
	writeFixed(buf, "1", 8)
	writeFixed(buf, "1", 8)
	writeFixed(buf, fmt.Sprintf("%d", ns), 4)

	for _, s := range signals {
		writeFixed(buf, s.label, 16)
	}
	for range signals {
		writeFixed(buf, "", 80)
	}
	for range signals {
		writeFixed(buf, "uV", 8)
	}
	for _, s := range signals {
		writeFixed(buf, fmt.Sprintf("%g", s.physicalMin), 8)
	}
	for _, s := range signals {
		writeFixed(buf, fmt.Sprintf("%g", s.physicalMax), 8)
	}
	for range signals {
		writeFixed(buf, "-32768", 8)
	}
	for range signals {
		writeFixed(buf, "32767", 8)
	}
	for range signals {
		writeFixed(buf, "", 80)
	}
	for _, s := range signals {
		writeFixed(buf, fmt.Sprintf("%d", len(s.samples)), 8)
	}
	for range signals {
		writeFixed(buf, "", 32)
	}
}

func writeEDFDataRecord(buf *bytes.Buffer, signals []edfSignal) {
	for _, s := range signals {
		scale := 65535.0 / (s.physicalMax - s.physicalMin)
		for _, v := range s.samples {
			digital := int16(math.Round((v-s.physicalMin)*scale - 32768))
			binary.Write(buf, binary.LittleEndian, digital)
		}
	}
}

func writeFixed(buf *bytes.Buffer, s string, width int) {
	b := make([]byte, width)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	buf.Write(b)
}
