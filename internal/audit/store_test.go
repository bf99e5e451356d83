package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/risk"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "audit.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, zap.NewNop())
	require.Error(t, err)
}

func TestStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &Run{
		ID:             "run-1",
		Operation:      OperationAnonymize,
		Strategy:       strategy.Mask,
		OriginalLength: 44,
		ResultLength:   44,
		Replacements:   2,
		PatternCounts:  Counts{"email": 1, "phone": 1},
		DurationMs:     0.5,
		Fingerprint:    "00000000000000aa",
		CreatedAt:      base,
	}
	require.NoError(t, store.Insert(ctx, first))

	require.NoError(t, store.InsertBatch(ctx, []*Run{
		{ID: "run-2", Operation: OperationDetect, OriginalLength: 10, ResultLength: 10, PatternCounts: Counts{"ssn": 2}, RiskLevel: "MEDIUM", RiskScore: 6, Fingerprint: "00000000000000aa", CreatedAt: base.Add(time.Minute)},
		{ID: "run-3", Operation: OperationDetect, OriginalLength: 3, ResultLength: 3, PatternCounts: Counts{}, RiskLevel: "NONE", Fingerprint: "00000000000000bb", CreatedAt: base.Add(2 * time.Minute)},
	}))

	t.Run("Recent", func(t *testing.T) {
		runs, err := store.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run-3", runs[0].ID)
		assert.Equal(t, "run-1", runs[2].ID)
		assert.Equal(t, Counts{"email": 1, "phone": 1}, runs[2].PatternCounts)
		assert.Equal(t, 2, runs[1].PatternCounts["ssn"])
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := store.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalRuns)
		assert.Equal(t, int64(2), stats.TotalReplacements)
		assert.Equal(t, int64(2), stats.DistinctInputs)
		assert.Equal(t, map[string]int64{"MEDIUM": 1, "NONE": 1}, stats.ByRiskLevel)
	})

	t.Run("DuplicateIDFails", func(t *testing.T) {
		assert.Error(t, store.Insert(ctx, first))
	})
}

func TestCountsScan(t *testing.T) {
	var c Counts
	require.NoError(t, c.Scan(`{"a":1}`))
	assert.Equal(t, Counts{"a": 1}, c)
	require.NoError(t, c.Scan([]byte(`{"b":2}`)))
	assert.Equal(t, Counts{"b": 2}, c)
	require.NoError(t, c.Scan(nil))
	assert.Empty(t, c)
	assert.Error(t, c.Scan(42))

	v, err := Counts(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestRecorder(t *testing.T) {
	store := openTestStore(t)
	logger := zap.NewNop()

	registry, err := patterns.NewDefaultRegistry(logger)
	require.NoError(t, err)
	resolver, err := strategy.NewResolver(strategy.Config{}, logger)
	require.NoError(t, err)
	pipeline := anonymizer.New(registry, privacy.New(privacy.Config{}, logger), resolver,
		risk.NewScorer(risk.DefaultPolicy()), anonymizer.Config{}, logger)

	recorder := NewRecorder(store, 16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	recorder.Start(ctx)
	pipeline.Observe(recorder.Observer())

	text := "Contact: jane.doe@example.com or 555-123-4567"
	_, err = pipeline.Anonymize(text, anonymizer.Options{SelectedPatterns: []string{patterns.Email, patterns.Phone}})
	require.NoError(t, err)
	_, err = pipeline.DetectSensitiveData(text, patterns.Email, patterns.Phone)
	require.NoError(t, err)
	pipeline.AddCustomPattern("ticket", `TCK-\d+`, "")

	cancel()
	recorder.Wait()

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Zero(t, recorder.Dropped())

	byOp := map[string]Run{}
	for _, r := range runs {
		byOp[r.Operation] = r
		assert.Equal(t, runs[0].Fingerprint, r.Fingerprint)
		assert.Equal(t, len(text), r.OriginalLength)
	}
	assert.Equal(t, Counts{"email": 1, "phone": 1}, byOp[OperationAnonymize].PatternCounts)
	assert.Equal(t, 2, byOp[OperationAnonymize].Replacements)
	assert.Equal(t, "LOW", byOp[OperationDetect].RiskLevel)
	assert.Equal(t, 4, byOp[OperationDetect].RiskScore)
}

func TestRunFromEvent(t *testing.T) {
	assert.Nil(t, RunFromEvent(anonymizer.Event{
		Type:   anonymizer.EventPatternChanged,
		Change: &anonymizer.PatternChange{Action: "added"},
	}))

	run := RunFromEvent(anonymizer.Event{
		Type:        anonymizer.EventAnonymized,
		InputLength: 6,
		Fingerprint: 0xabc,
		Result: &anonymizer.Result{
			AnonymizedText: "**@x.io",
			Metadata: anonymizer.Metadata{
				Strategy:     strategy.Mask,
				Replacements: []anonymizer.ReplacementRecord{{Pattern: "email", Original: "ab@x.io"}},
			},
		},
	})
	require.NotNil(t, run)
	assert.Equal(t, "0000000000000abc", run.Fingerprint)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NotContains(t, strings.Join([]string{run.Strategy, run.Fingerprint, run.RiskLevel}, " "), "ab@x.io")
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://user:***@db:5432/audit", maskDatabaseURL("postgres://user:secret@db:5432/audit"))
	assert.Equal(t, "file:audit.db", maskDatabaseURL("file:audit.db"))
}
