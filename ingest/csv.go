package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/poiesic/assetpipe/core"
)

const utf8BOM = "\ufeff"

// ReadCSV streams header-keyed rows from r. The first record is the header.
// Short records leave trailing columns absent; values beyond the header are
// dropped. The sequence stops after yielding the first read error.
func ReadCSV(r io.Reader) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read header: %w", err))
			return
		}
		header[0] = strings.TrimPrefix(header[0], utf8BOM)

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}

			row := make(core.Row, len(header))
			for i, name := range header {
				if i < len(record) {
					row[name] = record[i]
				}
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// CSVFile is a CSV row source backed by a file.
type CSVFile struct {
	f *os.File
}

// OpenCSV opens a CSV file for streaming.
func OpenCSV(path string) (*CSVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	return &CSVFile{f: f}, nil
}

// Rows streams the file's rows. It can be consumed once.
func (c *CSVFile) Rows() iter.Seq2[core.Row, error] {
	return ReadCSV(c.f)
}

// Close closes the file.
func (c *CSVFile) Close() error {
	return c.f.Close()
}
