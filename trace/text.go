package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/pdtsim/timing/prefetch"
)

// TextReader parses the line-oriented trace format.
type TextReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewTextReader returns a TextReader reading from r.
func NewTextReader(r io.Reader) *TextReader {
	return &TextReader{scanner: bufio.NewScanner(r)}
}

// Read returns the next record.
func (r *TextReader) Read() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		rec, err := parseLine(text)
		if err != nil {
			return Record{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("failed to read trace: %w", err)
	}
	return Record{}, io.EOF
}

func parseLine(text string) (Record, error) {
	fields := strings.Fields(text)
	if len(fields) != 4 {
		return Record{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	cpu, err := strconv.Atoi(fields[0])
	if err != nil || cpu < 0 {
		return Record{}, fmt.Errorf("invalid cpu %q", fields[0])
	}
	ip, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid ip %q: %w", fields[1], err)
	}
	addr, err := strconv.ParseUint(fields[2], 0, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid addr %q: %w", fields[2], err)
	}
	typ, err := prefetch.ParseAccessType(fields[3])
	if err != nil {
		return Record{}, err
	}

	return Record{CPU: cpu, IP: ip, Addr: addr, Type: typ}, nil
}

// TextWriter writes the line-oriented trace format.
type TextWriter struct {
	w *bufio.Writer
}

// NewTextWriter returns a TextWriter writing to w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

// Write appends one record.
func (w *TextWriter) Write(rec Record) error {
	_, err := fmt.Fprintf(w.w, "%d 0x%x 0x%x %s\n", rec.CPU, rec.IP, rec.Addr, rec.Type)
	return err
}

// Flush writes buffered records to the underlying writer.
func (w *TextWriter) Flush() error {
	return w.w.Flush()
}
