package reconciliation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ExportHeader is the first line of an export.
type ExportHeader struct {
	Kind            string    `json:"kind"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	AsOf            time.Time `json:"asOf"`
	Products        int       `json:"products"`
	UnparsedRecords int       `json:"unparsedRecords"`
}

const exportKind = "stockledger.reconciliation.v1"

// Export writes the report of q to w as zstd-compressed NDJSON:
// one header line followed by one line per product, in report order.
func (s *Service) Export(ctx context.Context, q Query, w io.Writer) (*Report, error) {
	report, err := s.ComparePeriod(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := WriteExport(w, report); err != nil {
		return nil, err
	}
	return report, nil
}

// WriteExport encodes report to w.
func WriteExport(w io.Writer, report *Report) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	enc := json.NewEncoder(zw)
	header := ExportHeader{
		Kind:            exportKind,
		Start:           report.Start.Format("2006-01-02"),
		End:             report.End.Format("2006-01-02"),
		AsOf:            report.AsOf.UTC(),
		Products:        len(report.Items),
		UnparsedRecords: report.UnparsedRecords,
	}
	if err := enc.Encode(header); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode export header: %w", err)
	}
	for i := range report.Items {
		if err := enc.Encode(&report.Items[i]); err != nil {
			_ = zw.Close()
			return fmt.Errorf("encode export item: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd stream: %w", err)
	}
	return nil
}

// ReadExport decodes an export produced by WriteExport.
func ReadExport(r io.Reader) (*ExportHeader, []Item, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("read export header: %w", err)
		}
		return nil, nil, fmt.Errorf("empty export")
	}
	var header ExportHeader
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return nil, nil, fmt.Errorf("decode export header: %w", err)
	}
	if header.Kind != exportKind {
		return nil, nil, fmt.Errorf("unexpected export kind %q", header.Kind)
	}

	items := make([]Item, 0, header.Products)
	for sc.Scan() {
		var it Item
		if err := json.Unmarshal(sc.Bytes(), &it); err != nil {
			return nil, nil, fmt.Errorf("decode export item %d: %w", len(items)+1, err)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read export: %w", err)
	}
	return &header, items, nil
}
