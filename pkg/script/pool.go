package script

import (
	"context"
	"sync"
	"time"
)

type Runner interface {
	Runner()
}

type RunnerFactory interface {
	NewRunner() Runner
}

// RunnerPool bounds the number of live runners. Idle runners above the minimum are
// dropped by a periodic sweep until ctx is done.
type RunnerPool struct {
	pool               chan Runner
	runnerFactory      RunnerFactory
	activeRunnersCount int
	activeRunnersMu    sync.Mutex
	maxPoolSize        int
	minPoolSize        int
}

func NewRunnerPool(ctx context.Context, runnerFactory RunnerFactory, maxPoolSize, minPoolSize int) *RunnerPool {
	if maxPoolSize < 1 {
		maxPoolSize = 1
	}

	if minPoolSize > maxPoolSize {
		minPoolSize = maxPoolSize
	}

	p := &RunnerPool{
		pool:          make(chan Runner, maxPoolSize),
		runnerFactory: runnerFactory,
		maxPoolSize:   maxPoolSize,
		minPoolSize:   minPoolSize,
	}

	for range minPoolSize {
		p.pool <- runnerFactory.NewRunner()
		p.activeRunnersCount++
	}

	go p.shrink(ctx, 10*time.Minute)

	return p
}

func (p *RunnerPool) shrink(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for len(p.pool) > p.minPoolSize {
				select {
				case <-p.pool:
					p.activeRunnersMu.Lock()
					p.activeRunnersCount--
					p.activeRunnersMu.Unlock()
				default:
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Get returns an idle runner, creates one while under the maximum, or waits.
func (p *RunnerPool) Get(ctx context.Context) (Runner, error) {
	select {
	case runner := <-p.pool:
		return runner, nil
	default:
	}

	p.activeRunnersMu.Lock()
	if p.activeRunnersCount < p.maxPoolSize {
		p.activeRunnersCount++
		p.activeRunnersMu.Unlock()

		return p.runnerFactory.NewRunner(), nil
	}
	p.activeRunnersMu.Unlock()

	select {
	case runner := <-p.pool:
		return runner, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *RunnerPool) Put(runner Runner) {
	select {
	case p.pool <- runner:
	default:
		p.activeRunnersMu.Lock()
		p.activeRunnersCount--
		p.activeRunnersMu.Unlock()
	}
}

// Active reports how many runners exist, idle or in use.
func (p *RunnerPool) Active() int {
	p.activeRunnersMu.Lock()
	defer p.activeRunnersMu.Unlock()

	return p.activeRunnersCount
}
