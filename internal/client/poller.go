package client

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Poller repeatedly fetches a view and applies it. Fetches may overlap; each
// fetch is numbered when issued and its result is applied only if no later
// fetch has been applied already. An applied result replaces the previous
// state entirely.
type Poller[T any] struct {
	fetch func(context.Context) (T, error)
	apply func(T)

	// OnError receives fetch failures from Run. Defaults to logging.
	OnError func(error)

	issued atomic.Uint64

	mu      sync.Mutex
	applied uint64
	state   T
}

func NewPoller[T any](fetch func(context.Context) (T, error), apply func(T)) *Poller[T] {
	return &Poller[T]{
		fetch: fetch,
		apply: apply,
		OnError: func(err error) {
			log.Printf("Poller: fetch failed: %v", err)
		},
	}
}

// Poll runs one fetch. It reports whether the result was applied; a stale
// result is dropped without error.
func (p *Poller[T]) Poll(ctx context.Context) (bool, error) {
	seq := p.issued.Add(1)
	v, err := p.fetch(ctx)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.applied {
		return false, nil
	}
	p.applied = seq
	p.state = v
	if p.apply != nil {
		p.apply(v)
	}
	return true, nil
}

// State returns the last applied value and its sequence number, zero if
// nothing has been applied.
func (p *Poller[T]) State() (T, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.applied
}

// Run polls once immediately and then on every tick, without waiting for
// earlier polls to finish. It returns ctx.Err() once ctx is done and all
// in-flight polls have returned.
func (p *Poller[T]) Run(ctx context.Context, ticks <-chan time.Time) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil && p.OnError != nil {
				p.OnError(err)
			}
		}()
	}

	start()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			start()
		}
	}
}
