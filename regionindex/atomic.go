package regionindex

import "sync/atomic"

// atomicPointer is a thin wrapper over atomic.Pointer[snapshot], kept as a
// named type so Index's field declarations stay readable.
type atomicPointer struct {
	p atomic.Pointer[snapshot]
}

func (a *atomicPointer) store(s *snapshot) { a.p.Store(s) }
func (a *atomicPointer) load() *snapshot   { return a.p.Load() }
