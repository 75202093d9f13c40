package trace

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format selects a trace encoding.
type Format int

// Trace encodings.
const (
	FormatText Format = iota
	FormatBinary
)

// FormatForPath picks the encoding from the file name: .bin (optionally
// followed by .gz) is binary, anything else is text. The second result
// reports gzip compression.
func FormatForPath(path string) (Format, bool) {
	name := strings.ToLower(filepath.Base(path))
	compressed := strings.HasSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".gz")
	if filepath.Ext(name) == ".bin" {
		return FormatBinary, compressed
	}
	return FormatText, compressed
}

// FileReader is a Reader backed by an open file.
type FileReader struct {
	Reader
	closers []io.Closer
}

// Close releases the file and any decompressor.
func (f *FileReader) Close() error {
	var first error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a trace file for reading.
func Open(path string) (*FileReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	f := &FileReader{closers: []io.Closer{file}}
	var r io.Reader = file

	format, compressed := FormatForPath(path)
	if compressed {
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		f.closers = append(f.closers, gz)
		r = gz
	}

	if format == FormatBinary {
		f.Reader = NewBinaryReader(r)
	} else {
		f.Reader = NewTextReader(r)
	}
	return f, nil
}

// FileWriter is a Writer backed by a created file.
type FileWriter struct {
	Writer
	closers []io.Closer
}

// Close flushes buffered records and releases the file.
func (f *FileWriter) Close() error {
	first := f.Flush()
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Create creates or truncates a trace file for writing.
func Create(path string) (*FileWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	f := &FileWriter{closers: []io.Closer{file}}
	var w io.Writer = file

	format, compressed := FormatForPath(path)
	if compressed {
		gz := gzip.NewWriter(file)
		f.closers = append(f.closers, gz)
		w = gz
	}

	if format == FormatBinary {
		f.Writer = NewBinaryWriter(w)
	} else {
		f.Writer = NewTextWriter(w)
	}
	return f, nil
}
