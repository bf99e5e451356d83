package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"go.uber.org/zap"
)

const (
	defaultBufferSize = 1024
	flushBatch        = 64
	insertTimeout     = 10 * time.Second
)

// Recorder turns pipeline events into audit runs and writes them in the
// background. When the buffer is full new runs are dropped, never blocking
// the pipeline.
type Recorder struct {
	store   *Store
	runs    chan *Run
	logger  *zap.Logger
	dropped int64
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store *Store, bufferSize int, logger *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Recorder{
		store:  store,
		runs:   make(chan *Run, bufferSize),
		logger: logger,
	}
}

// Start launches the writer goroutine. It drains remaining runs once ctx is done.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()
}

// Wait blocks until the writer goroutine has drained and exited
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Dropped returns how many runs were discarded because the buffer was full
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Observer returns the pipeline observer that feeds this recorder
func (r *Recorder) Observer() anonymizer.Observer {
	return func(e anonymizer.Event) {
		run := RunFromEvent(e)
		if run == nil {
			return
		}
		select {
		case r.runs <- run:
		default:
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
			r.logger.Warn("Audit buffer full, dropping run", zap.String("operation", run.Operation))
		}
	}
}

func (r *Recorder) loop(ctx context.Context) {
	batch := make([]*Run, 0, flushBatch)
	for {
		select {
		case run := <-r.runs:
			batch = append(batch, run)
			// take whatever else is already queued
		drain:
			for len(batch) < flushBatch {
				select {
				case next := <-r.runs:
					batch = append(batch, next)
				default:
					break drain
				}
			}
			r.flush(batch)
			batch = batch[:0]

		case <-ctx.Done():
			for {
				select {
				case run := <-r.runs:
					batch = append(batch, run)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []*Run) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := r.store.InsertBatch(ctx, batch); err != nil {
		r.logger.Error("Failed to write audit runs", zap.Int("runs", len(batch)), zap.Error(err))
	}
}

// RunFromEvent builds an audit run from a pipeline event. Pattern mutations
// are not audited and yield nil.
func RunFromEvent(e anonymizer.Event) *Run {
	run := &Run{
		ID:             uuid.NewString(),
		OriginalLength: e.InputLength,
		DurationMs:     float64(e.Duration.Microseconds()) / 1000,
		Fingerprint:    fmt.Sprintf("%016x", e.Fingerprint),
		CreatedAt:      e.Timestamp.UTC(),
		PatternCounts:  Counts{},
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	switch {
	case e.Type == anonymizer.EventAnonymized && e.Result != nil:
		md := e.Result.Metadata
		run.Operation = OperationAnonymize
		run.Strategy = md.Strategy
		run.ResultLength = md.AnonymizedLength
		run.Replacements = md.ReplacementsCount
		run.SkippedOverlaps = md.SkippedOverlaps
		for _, rec := range md.Replacements {
			run.PatternCounts[rec.Pattern]++
		}
	case e.Type == anonymizer.EventDetected && e.Report != nil:
		run.Operation = OperationDetect
		run.ResultLength = e.InputLength
		run.RiskLevel = string(e.Report.RiskLevel)
		run.RiskScore = e.Report.RiskScore
		for name, d := range e.Report.Detected {
			run.PatternCounts[name] = d.Count
		}
	default:
		return nil
	}

	return run
}
