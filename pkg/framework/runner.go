package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name. Errors of a named Runnable are
// prefixed with its name by Runner.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// ErrForcedExit is returned by Wait after a second stop signal.
var ErrForcedExit = errors.New("forced exit")

// Runner runs Runnables in goroutines and collects their errors.
type Runner struct {
	Context context.Context
	Runners []Runnable

	errCh     chan error
	exitCh    chan struct{}
	stoppedCh chan struct{}
	results   []error
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context:   ctx,
		errCh:     make(chan error, 1),
		exitCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}, 1),
	}
}

// HandleSignals cancels Context on the first SIGINT or SIGTERM and makes
// Wait give up on the second.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		sig := <-sigCh
		glog.Infof("%s received, stopping", sig)
		cancel()
		<-sigCh
		glog.Error("stop signaled twice, exit now")
		close(r.exitCh)
	}()
	return r
}

// Go spawns Runnables with Context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.GoWith(r.Context, runners...)
}

// GoWith spawns Runnables with a specified context.
func (r *Runner) GoWith(ctx context.Context, runners ...Runnable) *Runner {
	for _, runner := range runners {
		name := fmt.Sprintf("#%d", len(r.Runners))
		named, isNamed := runner.(Named)
		if isNamed {
			name = named.Name()
		}
		r.Runners = append(r.Runners, runner)
		go func(runner Runnable, name string, isNamed bool) {
			glog.V(4).Infof("runner %s started", name)
			err := runner.Run(ctx)
			switch {
			case err == nil || errors.Is(err, context.Canceled):
				glog.V(4).Infof("runner %s stopped", name)
			case isNamed:
				err = fmt.Errorf("%s: %w", name, err)
				fallthrough
			default:
				glog.Errorf("runner %s failed: %v", name, err)
			}
			select {
			case r.stoppedCh <- struct{}{}:
			default:
			}
			r.errCh <- err
		}(runner, name, isNamed)
	}
	return r
}

// Stopped is signaled when any Runnable stops.
func (r *Runner) Stopped() <-chan struct{} {
	return r.stoppedCh
}

// Wait waits for all Runnables and aggregates their errors. Cancellation
// isn't an error.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for len(r.results) < len(r.Runners) {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err := <-r.errCh:
			r.results = append(r.results, err)
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs fn which doesn't accept a context. onCancel is
// called when ctx is done before fn returns, and fn is expected to return
// soon after.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return context.Canceled
	}
}

// RunWithContext runs fn until it returns or ctx is done.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCloser closes closer when ctx is done, which unblocks fn,
// or after fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	canceled := false
	err := RunWithContextCancel(ctx, func() {
		canceled = true
		closer.Close()
	}, fn)
	if !canceled {
		closer.Close()
	}
	return err
}
