package service

import (
	"context"
	"sync"
)

// Scope ties requests to the lifetime of a view. Cancelling the scope
// cancels in-flight requests and makes the service drop their results.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

func (s *Scope) Context() context.Context {
	return s.ctx
}

// Alive reports whether the scope has not been cancelled yet.
func (s *Scope) Alive() bool {
	return s.ctx.Err() == nil
}

// Go runs fn in a goroutine bound to the scope.
func (s *Scope) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Cancel ends the scope. It may be called more than once.
func (s *Scope) Cancel() {
	s.cancel()
}

// Close cancels the scope and waits for goroutines started with Go.
func (s *Scope) Close() {
	s.cancel()
	s.wg.Wait()
}
