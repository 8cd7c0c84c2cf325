package scheduler

import (
	"context"
	"sync/atomic"
)

// CancellationToken is shared by every generation of one logical task.
// Setting it stops the chain and cancels the context handed to async bodies.
type CancellationToken struct {
	set    atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCancellationToken() *CancellationToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel sets the token and reports whether this call set it.
func (t *CancellationToken) Cancel() bool {
	if !t.set.CompareAndSwap(false, true) {
		return false
	}
	t.cancel()
	return true
}

func (t *CancellationToken) IsCancelled() bool { return t.set.Load() }

// Context is done once the token is cancelled.
func (t *CancellationToken) Context() context.Context { return t.ctx }
