package onnx

import (
	"context"
	"fmt"
	"sync"
)

// sessionPool holds a fixed set of model sessions so crops can be inferred
// in parallel without sharing input/output tensors.
type sessionPool struct {
	sessions chan *modelSession
	size     int

	mu     sync.Mutex
	closed bool
}

func newSessionPool(cfg Config) (*sessionPool, error) {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}

	pool := &sessionPool{
		sessions: make(chan *modelSession, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		session, err := newModelSession(cfg)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

func (p *sessionPool) Acquire(ctx context.Context) (*modelSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("session pool is closed")
	}

	select {
	case session := <-p.sessions:
		if session == nil {
			return nil, fmt.Errorf("session pool is closed")
		}
		return session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *sessionPool) Release(session *modelSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		return
	}
	// The channel is buffered to the pool size, so returning a session
	// acquired from it never blocks.
	p.sessions <- session
}

func (p *sessionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.sessions)
	for session := range p.sessions {
		session.Destroy()
	}
}
