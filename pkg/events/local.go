package events

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// LocalBus entrega eventos em processo. Cada handler roda na sua própria
// goroutine, então um handler lento, com erro ou em pânico não afeta os
// demais nem quem publicou
type LocalBus struct {
	mu       sync.RWMutex
	handlers []Handler
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewLocalBus cria o barramento; timeout limita cada execução de handler
func NewLocalBus(timeout time.Duration) *LocalBus {
	return &LocalBus{timeout: timeout}
}

func (b *LocalBus) Subscribe(handlers ...Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handlers...)
}

// Publish agenda os handlers e retorna sem esperar por eles
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	// handlers sobrevivem ao cancelamento de quem publicou
	base := context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.wg.Add(1)
		go b.dispatch(base, h, evt)
	}
	return nil
}

func (b *LocalBus) dispatch(ctx context.Context, h Handler, evt Event) {
	defer b.wg.Done()

	if err := Dispatch(ctx, h, evt, b.timeout); err != nil {
		log.Printf("❌ [EVENT] handler=%s type=%s event=%s key=%s | Error=%v",
			h.Name(), evt.EventType(), evt.EventID(), evt.Key(), err)
	}
}

// Wait bloqueia até todos os handlers em andamento terminarem
func (b *LocalBus) Wait() {
	b.wg.Wait()
}

// Dispatch executa um handler com timeout e converte pânico em erro
func Dispatch(ctx context.Context, h Handler, evt Event, timeout time.Duration) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), r)
		}
	}()

	return h.Handle(ctx, evt)
}
