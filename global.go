package editorstate

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultMu     sync.RWMutex
	defaultEngine *Engine
)

// SetDefaultEngine replaces the engine behind the package-level entry points.
// Passing nil resets it so the next call builds a fresh default engine.
func SetDefaultEngine(e *Engine) {
	defaultMu.Lock()
	defaultEngine = e
	defaultMu.Unlock()
}

// Default returns the engine behind the package-level entry points, building
// it with default options on first use.
func Default() *Engine {
	defaultMu.RLock()
	e := defaultEngine
	defaultMu.RUnlock()
	if e != nil {
		return e
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		engine, err := NewEngine()
		if err != nil {
			panic(fmt.Sprintf("editorstate: default engine: %v", err))
		}
		defaultEngine = engine
	}
	return defaultEngine
}

// SerializeState encodes s with the default engine. An empty format selects
// the compressed pako format.
func SerializeState(s State, format Format) (string, error) {
	return Default().Serialize(s, format)
}

// DeserializeState decodes token into a record with the default engine.
func DeserializeState(token string) (Record, error) {
	return Default().Deserialize(token)
}

// LoadState loads token into the process-wide state.
func LoadState(ctx context.Context, token string) (State, error) {
	return Default().Load(ctx, token)
}

// CurrentState returns the process-wide state.
func CurrentState() State {
	return Default().Current()
}

// SubscribeState observes the process-wide state. fn runs immediately with the
// current value.
func SubscribeState(fn func(State)) func() {
	return Default().Subscribe(fn)
}
