package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/pdtsim/timing/prefetch"
)

// BinaryMagic starts every binary trace.
var BinaryMagic = [4]byte{'P', 'D', 'T', 'T'}

// BinaryVersion is the binary format revision written by BinaryWriter.
const BinaryVersion uint32 = 1

type binaryHeader struct {
	Magic   [4]byte
	Version uint32
}

type binaryRecord struct {
	CPU  uint32
	Type uint32
	IP   uint64
	Addr uint64
}

// BinaryReader parses the binary trace format.
type BinaryReader struct {
	r      *bufio.Reader
	header bool
	count  int
}

// NewBinaryReader returns a BinaryReader reading from r. The header is
// checked on the first Read.
func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{r: bufio.NewReader(r)}
}

func (r *BinaryReader) readHeader() error {
	var h binaryHeader
	if err := binary.Read(r.r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to read trace header: %w", err)
	}
	if h.Magic != BinaryMagic {
		return fmt.Errorf("not a binary trace: bad magic %q", h.Magic[:])
	}
	if h.Version != BinaryVersion {
		return fmt.Errorf("unsupported trace version %d", h.Version)
	}
	r.header = true
	return nil
}

// Read returns the next record.
func (r *BinaryReader) Read() (Record, error) {
	if !r.header {
		if err := r.readHeader(); err != nil {
			return Record{}, err
		}
	}

	var br binaryRecord
	err := binary.Read(r.r, binary.LittleEndian, &br)
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("record %d: %w", r.count, err)
	}
	index := r.count
	r.count++

	if br.Type >= prefetch.NumAccessTypes {
		return Record{}, fmt.Errorf("record %d: unknown access type %d", index, br.Type)
	}

	return Record{
		CPU:  int(br.CPU),
		IP:   br.IP,
		Addr: br.Addr,
		Type: prefetch.AccessType(br.Type),
	}, nil
}

// BinaryWriter writes the binary trace format.
type BinaryWriter struct {
	w      *bufio.Writer
	header bool
}

// NewBinaryWriter returns a BinaryWriter writing to w.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: bufio.NewWriter(w)}
}

func (w *BinaryWriter) writeHeader() error {
	h := binaryHeader{Magic: BinaryMagic, Version: BinaryVersion}
	if err := binary.Write(w.w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("failed to write trace header: %w", err)
	}
	w.header = true
	return nil
}

// Write appends one record.
func (w *BinaryWriter) Write(rec Record) error {
	if !w.header {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	if rec.CPU < 0 {
		return fmt.Errorf("invalid cpu %d", rec.CPU)
	}
	if rec.Type >= prefetch.NumAccessTypes {
		return fmt.Errorf("invalid access type %d", rec.Type)
	}

	br := binaryRecord{
		CPU:  uint32(rec.CPU),
		Type: uint32(rec.Type),
		IP:   rec.IP,
		Addr: rec.Addr,
	}
	return binary.Write(w.w, binary.LittleEndian, br)
}

// Flush writes buffered records to the underlying writer. An empty trace
// still gets a header.
func (w *BinaryWriter) Flush() error {
	if !w.header {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	return w.w.Flush()
}
