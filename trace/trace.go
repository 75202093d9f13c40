// Package trace provides memory access traces for replaying through the
// prefetch simulator.
//
// Two encodings are supported. The text form has one access per line:
//
//	<cpu> <ip> <addr> <type>
//
// where ip and addr accept a 0x prefix and type is an access type name such
// as load or rfo. Blank lines and lines starting with # are skipped. The
// binary form is a fixed header followed by little-endian records of 24
// bytes. Either form may be gzip-compressed.
package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/pdtsim/timing/prefetch"
)

// Record is one memory access.
type Record struct {
	// CPU is the core that issued the access.
	CPU int
	// IP is the address of the instruction performing the access.
	IP uint64
	// Addr is the accessed byte address.
	Addr uint64
	// Type is the kind of access.
	Type prefetch.AccessType
}

// Reader yields records in trace order. Read returns io.EOF after the last
// record.
type Reader interface {
	Read() (Record, error)
}

// Writer appends records to a trace.
type Writer interface {
	Write(rec Record) error
	Flush() error
}

// SliceReader reads records from memory.
type SliceReader struct {
	records []Record
	pos     int
}

// NewSliceReader returns a Reader over records.
func NewSliceReader(records []Record) *SliceReader {
	return &SliceReader{records: records}
}

// Read returns the next record.
func (r *SliceReader) Read() (Record, error) {
	if r.pos >= len(r.records) {
		return Record{}, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

// ReadAll drains r.
func ReadAll(r Reader) ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// WriteAll writes every record and flushes w.
func WriteAll(w Writer, records []Record) error {
	for i, rec := range records {
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return w.Flush()
}

// MaxCPU returns the largest CPU id in records, or -1 if there are none.
func MaxCPU(records []Record) int {
	max := -1
	for _, rec := range records {
		if rec.CPU > max {
			max = rec.CPU
		}
	}
	return max
}
