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

// Minimal MATLAB level-5 MAT-file writer: one miMATRIX double array per
// exported stream, named after the stream. No compression, no struct/cell
// arrays — sufficient for exporting numeric sensor columns, which is all
// this engine ever produces. No library in the corpus covers the MAT
// format, so this is hand-rolled against the (small, stable) public MAT
// level-5 layout.
const (
	miDouble   = 9
	miMatrix   = 14
	miInt32    = 5
	miUInt32   = 6
	miInt8     = 1
	mxDoubleClass = 6
)

func (e *Exporter) writeMATExport(outDir, exportID string, streams []streamRecords) (string, error) {
	path := filepath.Join(outDir, exportID+".mat")

	var buf bytes.Buffer
	writeMATHeader(&buf)

	for _, s := range streams {
		columns := collectColumns(recordsOf(s))
		matrix := numericMatrix(recordsOf(s), columns)
		if err := writeMATVariable(&buf, streamKey(s.sensor, s.kind), matrix, len(recordsOf(s)), len(columns)); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func recordsOf(s streamRecords) []map[string]any { return s.records }

func writeMATHeader(buf *bytes.Buffer) {
	header := make([]byte, 128)
	desc := fmt.Sprintf("MATLAB 5.0 MAT-file, exported %s", time.Now().UTC().Format(time.RFC3339))
	copy(header, desc)
	// Bytes 124-125: version 0x0100; bytes 126-127: endian indicator "MI".
	binary.LittleEndian.PutUint16(header[124:], 0x0100)
	header[126] = 'M'
	header[127] = 'I'
	buf.Write(header)
}

// numericMatrix flattens records into column-major float64 data, matching
// MATLAB's storage order, with missing fields written as NaN.
func numericMatrix(records []map[string]any, columns []string) []float64 {
	rows := len(records)
	cols := len(columns)
	data := make([]float64, rows*cols)
	for c, col := range columns {
		for r, rec := range records {
			v, ok := rec[col].(float64)
			if !ok {
				v = math.NaN()
			}
			data[c*rows+r] = v
		}
	}
	return data
}

func writeMATVariable(buf *bytes.Buffer, name string, data []float64, rows, cols int) error {
	var body bytes.Buffer

	// Array flags sub-element.
	writeMATTag(&body, miUInt32, 8)
	binary.Write(&body, binary.LittleEndian, uint32(mxDoubleClass))
	binary.Write(&body, binary.LittleEndian, uint32(0))

	// Dimensions sub-element.
	writeMATTag(&body, miInt32, 8)
	binary.Write(&body, binary.LittleEndian, int32(rows))
	binary.Write(&body, binary.LittleEndian, int32(cols))

	// Array name sub-element.
	nameBytes := []byte(name)
	writeMATTag(&body, miInt8, uint32(len(nameBytes)))
	body.Write(nameBytes)
	padTo8(&body, len(nameBytes))

	// Real part.
	writeMATTag(&body, miDouble, uint32(len(data)*8))
	for _, v := range data {
		binary.Write(&body, binary.LittleEndian, v)
	}

	writeMATTag(buf, miMatrix, uint32(body.Len()))
	buf.Write(body.Bytes())
	return nil
}

func writeMATTag(buf *bytes.Buffer, dataType int32, numBytes uint32) {
	binary.Write(buf, binary.LittleEndian, dataType)
	binary.Write(buf, binary.LittleEndian, numBytes)
}

func padTo8(buf *bytes.Buffer, written int) {
	if rem := written % 8; rem != 0 {
		buf.Write(make([]byte, 8-rem))
	}
}
