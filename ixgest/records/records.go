// Package records reads input records for batch runs from JSON Lines, CSV and
// YAML streams. Every reader pulls one record at a time from the underlying
// stream.
package records

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/pulse/batch"
)

// Input formats
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatYAML  = "yaml"
)

// FormatFromPath guesses the format from a file extension
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, nil
	case ".csv":
		return FormatCSV, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", errors.WithHint(
			errors.Newf("cannot tell the format of %s", path),
			"pass --format jsonl, csv or yaml",
		)
	}
}

// NewReader returns the record iterator for format over r
func NewReader(r io.Reader, format string) (batch.Iterator, error) {
	switch format {
	case FormatJSONL:
		return NewJSONL(r), nil
	case FormatCSV:
		return NewCSV(r), nil
	case FormatYAML:
		return NewYAML(r), nil
	default:
		return nil, errors.NewInvalidConfigError("unknown input format %q", format)
	}
}

// File is a record iterator reading from a file it owns
type File struct {
	batch.Iterator
	Path   string
	Format string
	closer io.Closer
}

// Open opens path for reading records. An empty format is guessed from the
// extension. The path "-" reads standard input and needs a format.
func Open(path, format string) (*File, error) {
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		format = f
	}

	var rc io.ReadCloser = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open input %s", path)
		}
		rc = f
	}

	it, err := NewReader(rc, format)
	if err != nil {
		if path != "-" {
			rc.Close()
		}
		return nil, err
	}
	return &File{Iterator: it, Path: path, Format: format, closer: rc}, nil
}

// Close closes the underlying file. Standard input is left open.
func (f *File) Close() error {
	if f.Path == "-" {
		return nil
	}
	return f.closer.Close()
}
