package core

import (
	"context"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Supervisor owns one runtime per symbol and routes inbound events to the
// right loop. Routing is the only cross-symbol code path; everything past
// the queue boundary is single-threaded.
type Supervisor struct {
	runtimes map[schema.SymbolID]*Runtime
	wg       sync.WaitGroup
}

// NewSupervisor builds one runtime per registered symbol.
func NewSupervisor(registry *schema.Registry, deps Deps) *Supervisor {
	s := &Supervisor{runtimes: make(map[schema.SymbolID]*Runtime, registry.SymbolCount())}
	for i := 0; i < registry.SymbolCount(); i++ {
		sym, _ := registry.SymbolAt(i)
		s.runtimes[sym.ID] = NewRuntime(sym, deps)
	}
	return s
}

// Runtime returns the loop for a symbol, if registered.
func (s *Supervisor) Runtime(id schema.SymbolID) (*Runtime, bool) {
	rt, ok := s.runtimes[id]
	return rt, ok
}

// Start launches every runtime goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	for _, rt := range s.runtimes {
		s.wg.Add(1)
		go func(rt *Runtime) {
			defer s.wg.Done()
			rt.Run(ctx)
		}(rt)
	}
}

// DispatchMarketData routes a tick to its symbol's loop without blocking.
func (s *Supervisor) DispatchMarketData(e schema.Inbound) {
	rt, ok := s.runtimes[e.Symbol()]
	if !ok {
		logs.Warnf("market data for unknown symbol %d", e.Symbol())
		return
	}
	rt.PublishMarketData(e)
}

// DispatchExecReport routes an execution report to its symbol's loop.
func (s *Supervisor) DispatchExecReport(ctx context.Context, e schema.Inbound) error {
	rt, ok := s.runtimes[e.Symbol()]
	if !ok {
		logs.Warnf("exec report for unknown symbol %d", e.Symbol())
		return nil
	}
	return rt.PublishExecReport(ctx, e)
}

// Stop closes the inbound queues and waits for every loop to finish its
// shutdown cancels.
func (s *Supervisor) Stop() {
	for _, rt := range s.runtimes {
		rt.Close()
	}
	s.wg.Wait()
}
