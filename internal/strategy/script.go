package strategy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// DefaultScriptTimeout bounds one script override invocation
const DefaultScriptTimeout = 100 * time.Millisecond

// ScriptStrategy runs a JavaScript override. The source must evaluate to a
// function taking (match, pattern) and returning a string, e.g.
//
//	(match, pattern) => match.slice(0, 2) + "***"
type ScriptStrategy struct {
	program *goja.Program
	timeout time.Duration
}

func (s *ScriptStrategy) Name() string {
	return Script
}

// Apply evaluates the script in a fresh runtime. goja runtimes are not
// goroutine-safe, the compiled program is.
func (s *ScriptStrategy) Apply(original, patternName string, _ Options) (string, error) {
	vm := goja.New()
	timer := time.AfterFunc(s.timeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	value, err := vm.RunProgram(s.program)
	if err != nil {
		return "", err
	}

	fn, ok := goja.AssertFunction(value)
	if !ok {
		return "", fmt.Errorf("script does not evaluate to a function")
	}

	result, err := fn(goja.Undefined(), vm.ToValue(original), vm.ToValue(patternName))
	if err != nil {
		return "", err
	}

	out, ok := result.Export().(string)
	if !ok {
		return "", fmt.Errorf("script returned %v, want string", result)
	}
	return out, nil
}

// scriptCache compiles each distinct script source once
type scriptCache struct {
	timeout time.Duration
	mu      sync.Mutex
	entries map[string]scriptEntry
}

type scriptEntry struct {
	strategy *ScriptStrategy
	err      error
}

func newScriptCache(timeout time.Duration) *scriptCache {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &scriptCache{
		timeout: timeout,
		entries: make(map[string]scriptEntry),
	}
}

// get returns the compiled strategy for source; compile errors are cached too
func (c *scriptCache) get(source string) (*ScriptStrategy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[source]; ok {
		return e.strategy, e.err
	}

	var entry scriptEntry
	body := strings.TrimRight(strings.TrimSpace(source), ";")
	program, err := goja.Compile("override", "("+body+"\n)", true)
	if err != nil {
		entry.err = fmt.Errorf("compile script: %w", err)
	} else {
		entry.strategy = &ScriptStrategy{program: program, timeout: c.timeout}
	}
	c.entries[source] = entry

	return entry.strategy, entry.err
}
