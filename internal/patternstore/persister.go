package patternstore

import (
	"context"
	"sync"

	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"go.uber.org/zap"
)

const changeBuffer = 256

// patternWriter is the storage a persister applies changes to
type patternWriter interface {
	Save(ctx context.Context, def patterns.Definition) error
	Delete(ctx context.Context, name string) error
}

// persister applies registry changes one at a time, in the order the
// pipeline reported them. A full queue blocks the caller; changes are never
// dropped while the persister is open.
type persister struct {
	writer  patternWriter
	changes chan anonymizer.PatternChange
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newPersister(writer patternWriter, bufferSize int, logger *zap.Logger) *persister {
	if bufferSize <= 0 {
		bufferSize = changeBuffer
	}
	p := &persister{
		writer:  writer,
		changes: make(chan anonymizer.PatternChange, bufferSize),
		logger:  logger,
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for change := range p.changes {
			p.apply(change)
		}
	}()
	return p
}

func (p *persister) observer() anonymizer.Observer {
	return func(e anonymizer.Event) {
		if e.Type != anonymizer.EventPatternChanged || e.Change == nil {
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			p.logger.Warn("Pattern store closed, change not persisted",
				zap.String("pattern", e.Change.Definition.Name),
				zap.String("action", e.Change.Action),
			)
			return
		}
		p.changes <- *e.Change
	}
}

// close stops accepting changes and waits for the queued ones to be written
func (p *persister) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.changes)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *persister) apply(change anonymizer.PatternChange) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if change.Action == "removed" {
		err = p.writer.Delete(ctx, change.Definition.Name)
	} else {
		err = p.writer.Save(ctx, change.Definition)
	}
	if err != nil {
		p.logger.Error("Failed to persist pattern change",
			zap.String("pattern", change.Definition.Name),
			zap.String("action", change.Action),
			zap.Error(err),
		)
	}
}
