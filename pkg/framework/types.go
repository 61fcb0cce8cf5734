package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Executor is a poll-driven component. Execute must not block.
type Executor interface {
	Execute()
}

// ExecuteFunc is the func form of Executor.
type ExecuteFunc func()

// Execute implements Executor.
func (f ExecuteFunc) Execute() {
	f()
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}
