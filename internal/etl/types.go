package etl

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
)

// InputRecord is a single text to anonymize
type InputRecord struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// OutputRecord is the anonymized form of an InputRecord. Original text is
// never written.
type OutputRecord struct {
	ID             string `parquet:"id" json:"id"`
	AnonymizedText string `parquet:"anonymized_text" json:"anonymized_text"`
	Replacements   int64  `parquet:"replacements" json:"replacements"`
	RiskLevel      string `parquet:"risk_level" json:"risk_level"`
}

// ProcessingResult summarizes a batch run
type ProcessingResult struct {
	Files           int           `json:"files"`
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Replacements    int64         `json:"replacements"`
	Duration        time.Duration `json:"duration"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	Workers      int    `yaml:"workers" mapstructure:"workers"`             // 4
	BatchSize    int    `yaml:"batch_size" mapstructure:"batch_size"`       // 500
	OutputFormat string `yaml:"output_format" mapstructure:"output_format"` // jsonl or parquet
	IDColumn     string `yaml:"id_column" mapstructure:"id_column"`         // id
	TextColumn   string `yaml:"text_column" mapstructure:"text_column"`     // text
	MaxErrors    int    `yaml:"max_errors" mapstructure:"max_errors"`       // errors kept in the result

	// Options are applied to every record
	Options anonymizer.Options `yaml:"-" mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.OutputFormat == "" {
		c.OutputFormat = OutputJSONL
	}
	if c.IDColumn == "" {
		c.IDColumn = "id"
	}
	if c.TextColumn == "" {
		c.TextColumn = "text"
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 100
	}
	return c
}

// Output formats
const (
	OutputJSONL   = "jsonl"
	OutputParquet = "parquet"
)

// FileFormat represents supported input file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects the input format from the file extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV // Default to CSV
	}
}
