// Package bus is the directed asynchronous message channel between agents.
// Addresses are opaque strings; delivery per address is ordered. The in-memory
// bus backs tests and single-process deployments, the NATS bus backs
// multi-process ones.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
)

var (
	ErrNoSubscriber = errors.New("no subscriber for address")
	ErrClosed       = errors.New("bus is closed")
)

// Bus delivers envelopes to subscribed addresses. Publish returns once the
// envelope is handed to the channel; it does not wait for processing.
type Bus interface {
	Publish(ctx context.Context, env contractx.Envelope) error
	Subscribe(addr string) (<-chan contractx.Envelope, func(), error)
}

const memoryBusBuffer = 256

// MemoryBus fans envelopes out to in-process subscribers, one buffered channel
// each. Delivery order per address follows publish order.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan contractx.Envelope
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan contractx.Envelope)}
}

func (b *MemoryBus) Publish(ctx context.Context, env contractx.Envelope) error {
	if env.To == "" {
		return fmt.Errorf("%w: envelope has no recipient", contractx.ErrValidation)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := append([]chan contractx.Envelope(nil), b.subs[env.To]...)
	b.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscriber, env.To)
	}

	for _, ch := range targets {
		select {
		case ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(addr string) (<-chan contractx.Envelope, func(), error) {
	if addr == "" {
		return nil, nil, fmt.Errorf("%w: address is empty", contractx.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}

	ch := make(chan contractx.Envelope, memoryBusBuffer)
	b.subs[addr] = append(b.subs[addr], ch)

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[addr]
		for i, c := range subs {
			if c == ch {
				b.subs[addr] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe, nil
}

// Close drops all subscriptions. Further publishes fail with ErrClosed.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for addr, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, addr)
	}
}
