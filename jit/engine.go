package jit

import (
	"sync"
	"time"

	"emberjit/emit"
	"emberjit/exec"
)

// Stats tracks orchestration-level statistics across an Engine's lifetime.
type Stats struct {
	Assemblies      int64 // times a statement list was assembled from scratch
	CacheHits       int64
	CacheMisses     int64
	CacheEvictions  int64
	Promotions      int64 // times a function crossed the hot threshold
	Faults          int64
}

// Engine coordinates Profiler and Cache around the bytecode interpreter:
// it assembles a function's statements into an *ir.Image once, caches the
// resulting interpreter, and re-executes the cached interpreter on every
// call after the first. "Promotion" is a key crossing the profiler's hot
// threshold; it is counted in Stats.Promotions and, only when a
// NativeBackend is registered, makes later calls run that backend's
// compiled result instead. Engine itself never generates native code.
type Engine struct {
	mu          sync.RWMutex
	profiler    *Profiler
	cache       *Cache
	stats       Stats
	logger      *exec.Logger
	native      NativeBackend
	nativeCache map[uint64]Backend
	promoted    map[uint64]bool
}

// NewEngine creates an Engine with a fresh profiler and cache.
func NewEngine() *Engine {
	e := &Engine{
		profiler:    NewProfiler(),
		logger:      exec.NewLogger(exec.LogNone),
		nativeCache: make(map[uint64]Backend),
		promoted:    make(map[uint64]bool),
	}
	e.cache = NewCache(&e.stats)
	return e
}

// SetLogger installs a logger used for fault diagnostics and handed to
// each interpreter assembled afterwards.
func (e *Engine) SetLogger(l *exec.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = l
}

// SetNativeBackend registers an external native-assembler backend as
// Engine's promotion target. emberjit ships no NativeBackend
// implementation of its own — only the bytecode interpreter is a real
// Backend — but once one is registered, Engine asks it to compile a key
// the first time that key crosses the profiler's hot threshold, and
// dispatches every later call for that key straight to the compiled
// result instead of the cached interpreter.
func (e *Engine) SetNativeBackend(nb NativeBackend) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.native = nb
}

// Invoke runs the function identified by key against ctx. On the first
// call for a given key it assembles stmts into an *ir.Image and builds an
// interpreter from it; every later call for the same key reuses that
// cached interpreter, skipping re-assembly entirely — unless a
// NativeBackend has already been promoted for key, in which case that
// compiled backend runs instead. A *exec.Fault surfacing from execution
// is classified into a *Trap by ClassifyFault before it is returned.
func (e *Engine) Invoke(key uint64, stmts []emit.Statement, stackSize uint32, ctx []byte) error {
	start := time.Now()

	backend, err := e.backendFor(key, stmts, stackSize)
	if err != nil {
		return err
	}

	err = backend.Execute(ctx)

	e.mu.Lock()
	e.profiler.RecordInvocation(key, time.Since(start))
	if e.profiler.ShouldPromote(key) && !e.promoted[key] {
		e.promoted[key] = true
		e.stats.Promotions++
		if e.native != nil {
			if nb, cerr := e.native.CompileNative(key, stmts); cerr == nil {
				e.nativeCache[key] = nb
			}
		}
	}
	if err != nil {
		e.stats.Faults++
	}
	e.mu.Unlock()

	if err != nil {
		if f, ok := err.(*exec.Fault); ok {
			trap := ClassifyFault(f)
			e.logger.Warn("%s", trap)
			return trap
		}
		return err
	}
	return nil
}

// backendFor returns the Backend that should run key: a previously
// promoted NativeBackend result if one exists, otherwise the cached (or
// freshly assembled) bytecode interpreter.
func (e *Engine) backendFor(key uint64, stmts []emit.Statement, stackSize uint32) (Backend, error) {
	e.mu.RLock()
	nb, ok := e.nativeCache[key]
	e.mu.RUnlock()
	if ok {
		return nb, nil
	}
	return e.resolve(key, stmts, stackSize)
}

func (e *Engine) resolve(key uint64, stmts []emit.Statement, stackSize uint32) (*exec.Interpreter, error) {
	if interp, ok := e.cache.Get(key); ok {
		e.mu.Lock()
		e.stats.CacheHits++
		e.mu.Unlock()
		return interp, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-checked: another caller may have assembled key while we
	// waited for the lock.
	if interp, ok := e.cache.Get(key); ok {
		e.stats.CacheHits++
		return interp, nil
	}

	e.stats.CacheMisses++
	e.stats.Assemblies++

	img, err := emit.Assemble(stmts, stackSize)
	if err != nil {
		return nil, err
	}

	interp := exec.New(img)
	interp.Logger = e.logger
	e.cache.Put(key, interp)
	return interp, nil
}

// Stats returns a snapshot of the engine's orchestration statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// ProfilerStats returns a snapshot of the underlying profiler's
// aggregate statistics.
func (e *Engine) ProfilerStats() ProfilerStats {
	return e.profiler.Stats()
}

// Evict drops any cached interpreter for key, forcing the next Invoke to
// reassemble from stmts. Useful when an embedder knows a function's
// statement list has changed (redefinition, reload).
func (e *Engine) Evict(key uint64) {
	e.cache.Remove(key)
}

var _ Backend = (*exec.Interpreter)(nil)
