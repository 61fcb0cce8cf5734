package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the default Loop interval.
const DefaultInterval = 5 * time.Millisecond

// Loop calls Execute of all executors from a single goroutine, once per
// interval or immediately when triggered. Runnables are started alongside.
type Loop struct {
	Interval time.Duration

	executors []Executor
	runners   []Runnable

	pending []func()
	lock    sync.Mutex

	wakeUpCh chan struct{}
	once     sync.Once
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddExecutor registers executors. An executor which is also a Runnable is
// started by Run.
func (l *Loop) AddExecutor(execs ...Executor) *Loop {
	l.executors = append(l.executors, execs...)
	for _, exec := range execs {
		if runner, ok := exec.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable. It returns when ctx is canceled or any
// runnable stops.
func (l *Loop) Run(ctx context.Context) error {
	l.init()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	stopped := runner.Stopped()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := runner.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-stopped:
			glog.Warning("loop runner stopped")
			cancel()
			return runner.Wait()
		case <-ticker.C:
			l.runIteration()
		case <-l.wakeUpCh:
			l.runIteration()
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// Post schedules fn to run on the loop goroutine before the next round of
// executors.
func (l *Loop) Post(fn func()) {
	l.lock.Lock()
	l.pending = append(l.pending, fn)
	l.lock.Unlock()
	l.TriggerNext()
}

// Do runs fn on the loop goroutine and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerNext schedules the next iteration immediately.
func (l *Loop) TriggerNext() {
	l.init()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (l *Loop) init() {
	l.once.Do(func() {
		l.wakeUpCh = make(chan struct{}, 1)
	})
}

func (l *Loop) runIteration() {
	l.lock.Lock()
	fns := l.pending
	l.pending = nil
	l.lock.Unlock()
	for _, fn := range fns {
		fn()
	}
	for _, exec := range l.executors {
		exec.Execute()
	}
}
