package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Operation names recorded in the audit log
const (
	OperationAnonymize = "anonymize"
	OperationDetect    = "detect"
)

// Counts maps pattern names to match counts. It is stored as a JSON object.
type Counts map[string]int

// Value implements driver.Valuer
func (c Counts) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (c *Counts) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = Counts{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into Counts", src)
	}
	out := Counts{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode pattern counts: %w", err)
	}
	*c = out
	return nil
}

// Run is one audited pipeline call. It never holds input text or matched values.
type Run struct {
	ID              string    `db:"id" json:"id"`
	Operation       string    `db:"operation" json:"operation"`
	Strategy        string    `db:"strategy" json:"strategy,omitempty"`
	OriginalLength  int       `db:"original_length" json:"original_length"`
	ResultLength    int       `db:"result_length" json:"result_length"`
	Replacements    int       `db:"replacements" json:"replacements"`
	SkippedOverlaps int       `db:"skipped_overlaps" json:"skipped_overlaps"`
	PatternCounts   Counts    `db:"pattern_counts" json:"pattern_counts"`
	RiskLevel       string    `db:"risk_level" json:"risk_level,omitempty"`
	RiskScore       int       `db:"risk_score" json:"risk_score"`
	DurationMs      float64   `db:"duration_ms" json:"duration_ms"`
	Fingerprint     string    `db:"fingerprint" json:"fingerprint"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Stats summarizes the audit log
type Stats struct {
	TotalRuns         int64            `json:"total_runs"`
	TotalReplacements int64            `json:"total_replacements"`
	DistinctInputs    int64            `json:"distinct_inputs"`
	ByRiskLevel       map[string]int64 `json:"by_risk_level"`
}

// Config contains audit database configuration
type Config struct {
	Driver       string // postgres or sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	BufferSize   int
}
