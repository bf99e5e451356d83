package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/segmentio/parquet-go"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

// Anonymizer is the subset of the anonymization pipeline used by batch runs
type Anonymizer interface {
	Anonymize(text string, opts anonymizer.Options) (*anonymizer.Result, error)
	DetectSensitiveData(text string, names ...string) (*anonymizer.DetectionReport, error)
}

// Pipeline anonymizes record files in batches with a bounded worker pool
type Pipeline struct {
	anonymizer Anonymizer
	config     Config
	logger     *zap.Logger
}

// NewPipeline creates a new batch pipeline
func NewPipeline(anon Anonymizer, config Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		anonymizer: anon,
		config:     config.withDefaults(),
		logger:     logger,
	}
}

// outcome is the per-record result of a worker
type outcome struct {
	record OutputRecord
	err    error
}

// ExpandInputs resolves doublestar globs into a sorted, de-duplicated file list.
// Plain paths are kept even when they do not exist so the error surfaces on open.
func ExpandInputs(inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, in := range inputs {
		if !hasMeta(in) {
			if !seen[in] {
				seen[in] = true
				files = append(files, in)
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(in, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", in, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, errors.New("no input files matched")
	}
	return files, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// Run anonymizes every record of the inputs and writes the results to out
func (p *Pipeline) Run(ctx context.Context, inputs []string, out io.Writer) (*ProcessingResult, error) {
	files, err := ExpandInputs(inputs)
	if err != nil {
		return nil, err
	}

	writer, err := newRecordWriter(p.config.OutputFormat, out)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Starting batch anonymization",
		zap.Int("files", len(files)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers),
		zap.String("output_format", p.config.OutputFormat))

	start := time.Now()
	result := &ProcessingResult{}

	for _, file := range files {
		if err := p.processFile(ctx, file, writer, result); err != nil {
			_ = writer.Close()
			result.Duration = time.Since(start)
			return result, err
		}
		result.Files++
	}

	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("failed to finalize output: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch anonymization completed",
		zap.Int("files", result.Files),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("replacements", result.Replacements),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processFile anonymizes one input file (CSV, JSON lines or Parquet)
func (p *Pipeline) processFile(ctx context.Context, filePath string, writer recordWriter, result *ProcessingResult) error {
	format := DetectFileFormat(filePath)
	p.logger.Info("Processing file", zap.String("file", filePath), zap.String("format", string(format)))

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	var readBatch func() ([]InputRecord, error)
	switch format {
	case FormatCSV:
		readBatch, err = p.csvReader(file, filePath, result)
	case FormatJSONL:
		readBatch = p.jsonReader(file, filePath, result)
	case FormatParquet:
		reader := parquet.NewGenericReader[InputRecord](file)
		defer reader.Close()
		readBatch = p.parquetReader(reader, filePath)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	return p.processBatches(ctx, readBatch, writer, result)
}

// csvReader reads records by header name; rows without an id get a positional one
func (p *Pipeline) csvReader(r io.Reader, filePath string, result *ProcessingResult) (func() ([]InputRecord, error), error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idCol, textCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case p.config.IDColumn:
			idCol = i
		case p.config.TextColumn:
			textCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("CSV header has no %q column", p.config.TextColumn)
	}

	row := 0
	return func() ([]InputRecord, error) {
		var batch []InputRecord
		for len(batch) < p.config.BatchSize {
			fields, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			row++
			if err != nil {
				p.recordFailure(result, fmt.Errorf("%s row %d: %w", filePath, row, err))
				continue
			}
			if textCol >= len(fields) {
				p.recordFailure(result, fmt.Errorf("%s row %d: missing %q column", filePath, row, p.config.TextColumn))
				continue
			}

			rec := InputRecord{Text: fields[textCol]}
			if idCol >= 0 && idCol < len(fields) {
				rec.ID = strings.TrimSpace(fields[idCol])
			}
			if rec.ID == "" {
				rec.ID = positionalID(filePath, row)
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}, nil
}

// jsonReader reads one JSON object per line using the configured field names
func (p *Pipeline) jsonReader(r io.Reader, filePath string, result *ProcessingResult) func() ([]InputRecord, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	row := 0
	stopped := false
	return func() ([]InputRecord, error) {
		var batch []InputRecord
		for !stopped && len(batch) < p.config.BatchSize {
			var raw map[string]any
			err := decoder.Decode(&raw)
			if errors.Is(err, io.EOF) {
				break
			}
			row++
			if err != nil {
				// the decoder cannot resynchronize after a syntax error, so the
				// rest of this file is skipped
				p.recordFailure(result, fmt.Errorf("%s: malformed JSON at record %d: %w", filePath, row, err))
				stopped = true
				break
			}

			text, ok := raw[p.config.TextColumn].(string)
			if !ok {
				p.recordFailure(result, fmt.Errorf("%s record %d: %q is missing or not a string", filePath, row, p.config.TextColumn))
				continue
			}

			rec := InputRecord{Text: text}
			if id, ok := raw[p.config.IDColumn]; ok && id != nil {
				rec.ID = fmt.Sprint(id)
			}
			if rec.ID == "" {
				rec.ID = positionalID(filePath, row)
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}
}

// parquetReader reads the id and text columns of a Parquet file
func (p *Pipeline) parquetReader(reader *parquet.GenericReader[InputRecord], filePath string) func() ([]InputRecord, error) {
	row := 0
	return func() ([]InputRecord, error) {
		batch := make([]InputRecord, p.config.BatchSize)
		n, err := reader.Read(batch)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read Parquet rows: %w", err)
		}
		batch = batch[:n]
		for i := range batch {
			row++
			if batch[i].ID == "" {
				batch[i].ID = positionalID(filePath, row)
			}
		}
		return batch, nil
	}
}

// processBatches drives readBatch until it returns an empty batch
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]InputRecord, error), writer recordWriter, result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, readErr := readBatch()
		if len(batch) > 0 {
			if err := p.processBatch(batch, writer, result); err != nil {
				return err
			}
			p.reportProgress(result)
		}
		if readErr != nil {
			return readErr
		}
		if len(batch) == 0 {
			return nil
		}
	}
}

// processBatch anonymizes a batch on the worker pool and writes the
// successful records in input order
func (p *Pipeline) processBatch(batch []InputRecord, writer recordWriter, result *ProcessingResult) error {
	mapper := iter.Mapper[InputRecord, outcome]{MaxGoroutines: p.config.Workers}
	outcomes := mapper.Map(batch, p.anonymizeRecord)

	records := make([]OutputRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			p.recordFailure(result, o.err)
			continue
		}
		result.TotalRecords++
		result.ProcessedOK++
		result.Replacements += o.record.Replacements
		records = append(records, o.record)
	}

	if err := writer.Write(records); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// anonymizeRecord runs one record through the pipeline
func (p *Pipeline) anonymizeRecord(rec *InputRecord) outcome {
	res, err := p.anonymizer.Anonymize(rec.Text, p.config.Options)
	if err != nil {
		return outcome{err: fmt.Errorf("record %s: %w", rec.ID, err)}
	}

	report, err := p.anonymizer.DetectSensitiveData(rec.Text, p.config.Options.SelectedPatterns...)
	if err != nil {
		return outcome{err: fmt.Errorf("record %s: %w", rec.ID, err)}
	}

	return outcome{record: OutputRecord{
		ID:             rec.ID,
		AnonymizedText: res.AnonymizedText,
		Replacements:   int64(res.Metadata.ReplacementsCount),
		RiskLevel:      string(report.RiskLevel),
	}}
}

// recordFailure counts a failed record; failures never stop the run
func (p *Pipeline) recordFailure(result *ProcessingResult, err error) {
	result.TotalRecords++
	result.ProcessedFailed++
	if len(result.Errors) < p.config.MaxErrors {
		result.Errors = append(result.Errors, err.Error())
	}
	p.logger.Warn("Record failed", zap.Error(err))
}

// reportProgress logs the running totals
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	p.logger.Debug("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed))
}

func positionalID(filePath string, row int) string {
	return fmt.Sprintf("%s:%d", filepath.Base(filePath), row)
}
