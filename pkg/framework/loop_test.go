package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingExecutor struct {
	count int32
}

func (e *countingExecutor) Execute() {
	atomic.AddInt32(&e.count, 1)
}

func (e *countingExecutor) executed() int {
	return int(atomic.LoadInt32(&e.count))
}

type runnableFunc func(context.Context) error

func (f runnableFunc) Run(ctx context.Context) error {
	return f(ctx)
}

func TestLoopExecutesAndPosts(t *testing.T) {
	exec := &countingExecutor{}
	loop := NewLoop().AddExecutor(exec)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- loop.Run(ctx) }()

	var order []string
	require.NoError(t, loop.Do(context.Background(), func() {
		order = append(order, "first")
	}))
	require.NoError(t, loop.Do(context.Background(), func() {
		order = append(order, "second")
	}))
	require.Equal(t, []string{"first", "second"}, order)
	require.True(t, exec.executed() > 0)

	cancel()
	require.Equal(t, context.Canceled, <-doneCh)
}

func TestLoopStopsWithRunner(t *testing.T) {
	failure := errors.New("link closed")
	loop := NewLoop().AddRunnable(runnableFunc(func(ctx context.Context) error {
		return failure
	}))
	loop.Interval = time.Hour
	err := loop.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, failure.Error(), err.Error())
}

func TestRunnerWait(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	r := NewRunner().Go(
		runnableFunc(func(context.Context) error { return errA }),
		NamedRun("b", runnableFunc(func(context.Context) error { return errB })),
		runnableFunc(func(context.Context) error { return nil }),
	)
	err := r.Wait()
	require.Error(t, err)
	agg, ok := err.(*AggregatedError)
	require.True(t, ok)
	require.Len(t, agg.Errors, 2)
	require.Contains(t, agg.Error(), "multiple errors:")
	require.Contains(t, agg.Error(), "b: b")
	require.True(t, errors.Is(err, errA))
	require.True(t, errors.Is(err, errB))
}

func TestRunWithContextCloser(t *testing.T) {
	closer := &testCloser{ch: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-closer.ch
		return errors.New("closed")
	})
	require.Equal(t, context.Canceled, err)
	require.True(t, closer.closed)

	closer = &testCloser{ch: make(chan struct{})}
	err = RunWithContextCloser(context.Background(), closer, func() error { return nil })
	require.NoError(t, err)
	require.True(t, closer.closed)
}

type testCloser struct {
	ch     chan struct{}
	closed bool
}

func (c *testCloser) Close() error {
	c.closed = true
	close(c.ch)
	return nil
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("x"))
	require.Equal(t, "x", errs.Aggregate().Error())
	errs.Add(errors.New("y"))
	require.Equal(t, "multiple errors:\n  x\n  y", errs.Aggregate().Error())
}
