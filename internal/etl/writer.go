package etl

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"
)

// recordWriter receives anonymized records in input order
type recordWriter interface {
	Write(records []OutputRecord) error
	Close() error
}

func newRecordWriter(format string, out io.Writer) (recordWriter, error) {
	switch format {
	case OutputJSONL:
		return &jsonlWriter{enc: json.NewEncoder(out)}, nil
	case OutputParquet:
		return &parquetWriter{w: parquet.NewGenericWriter[OutputRecord](out)}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// jsonlWriter writes one JSON object per line
type jsonlWriter struct {
	enc *json.Encoder
}

func (w *jsonlWriter) Write(records []OutputRecord) error {
	for i := range records {
		if err := w.enc.Encode(&records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *jsonlWriter) Close() error { return nil }

// parquetWriter buffers row groups until Close writes the footer
type parquetWriter struct {
	w *parquet.GenericWriter[OutputRecord]
}

func (w *parquetWriter) Write(records []OutputRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := w.w.Write(records)
	return err
}

func (w *parquetWriter) Close() error {
	return w.w.Close()
}
