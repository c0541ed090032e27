package batch

import (
	"context"
	"sync/atomic"
)

// Monitor is the termination signal of a run. It is polled, never waited on:
// before each admission, periodically inside per-row loops, and while
// draining outstanding batches.
type Monitor interface {
	Terminated() bool
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func() bool

func (f MonitorFunc) Terminated() bool { return f() }

// Flag is a Monitor that flips once Terminate is called.
type Flag struct {
	v atomic.Bool
}

// Terminate marks the flag. Safe to call more than once.
func (f *Flag) Terminate() { f.v.Store(true) }

func (f *Flag) Terminated() bool { return f.v.Load() }

// ContextMonitor reports termination once ctx is done.
func ContextMonitor(ctx context.Context) Monitor {
	return MonitorFunc(func() bool { return ctx.Err() != nil })
}

// anyMonitor is terminated as soon as one of its non-nil monitors is.
type anyMonitor []Monitor

func (m anyMonitor) Terminated() bool {
	for _, mon := range m {
		if mon != nil && mon.Terminated() {
			return true
		}
	}
	return false
}
