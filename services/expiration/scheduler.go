package expiration

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/matheusmosca/order-lifecycle/pkg/config"
	"github.com/matheusmosca/order-lifecycle/pkg/lock"
)

// overlapLockTTL limita por quanto tempo um lock de varredura abandonado
// bloqueia as próximas execuções
const overlapLockTTL = 24 * time.Hour

// Runner é o ponto de entrada disparado pelo agendador
type Runner interface {
	Run(ctx context.Context, opts Options) (Summary, error)
}

// Scheduler dispara cada varredura configurada na sua própria cadência
type Scheduler struct {
	runner Runner
	sweeps []config.Sweep
	locker lock.Locker
}

func NewScheduler(runner Runner, sweeps []config.Sweep, locker lock.Locker) *Scheduler {
	return &Scheduler{runner: runner, sweeps: sweeps, locker: locker}
}

// Start bloqueia até o contexto ser cancelado
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sweep := range s.sweeps {
		wg.Add(1)
		go func(sweep config.Sweep) {
			defer wg.Done()
			s.loop(ctx, sweep)
		}(sweep)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sweep config.Sweep) {
	log.Printf("⏳ [SCHEDULER] sweep=%s every=%s timeout=%s without_overlapping=%t",
		sweep.Name, sweep.Every, sweep.Timeout, sweep.WithoutOverlapping)

	ticker := time.NewTicker(sweep.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunSweep(ctx, sweep)
		}
	}
}

// RunSweep executa uma varredura. Com WithoutOverlapping, a execução é pulada
// se outra instância ainda estiver com o lock
func (s *Scheduler) RunSweep(ctx context.Context, sweep config.Sweep) (Summary, bool) {
	if sweep.WithoutOverlapping && s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "sweep:"+sweep.Name, overlapLockTTL)
		if err != nil {
			log.Printf("❌ [SCHEDULER] sweep=%s lock error: %v", sweep.Name, err)
			return Summary{}, false
		}
		if !ok {
			log.Printf("ℹ️ [SCHEDULER] sweep=%s still running elsewhere, skipping", sweep.Name)
			return Summary{}, false
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("❌ [SCHEDULER] sweep=%s release error: %v", sweep.Name, err)
			}
		}()
	}

	summary, err := s.runner.Run(ctx, Options{Timeout: sweep.Timeout})
	if err != nil {
		log.Printf("❌ [SCHEDULER] sweep=%s failed: %v", sweep.Name, err)
		return summary, false
	}
	return summary, true
}
