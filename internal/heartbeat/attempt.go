package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Iron-Ham/pairlink/internal/pairing"
)

// Attempt is one in-flight heartbeat. It is created by Start and finishes
// exactly once.
type Attempt struct {
	ID string

	cancel     context.CancelFunc
	superseded atomic.Bool
	done       chan struct{}

	mu     sync.Mutex
	result Result
}

// Start runs svc.Heartbeat on a new goroutine and calls onResult exactly
// once with its result. onResult runs on the attempt's goroutine. Cancel
// or ctx cancellation makes the service return early; onResult still fires.
func Start(ctx context.Context, svc Service, cred pairing.Credential, onResult func(*Attempt, Result)) *Attempt {
	ctx, cancel := context.WithCancel(ctx)
	a := &Attempt{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer cancel()
		r := a.run(ctx, svc, cred)

		a.mu.Lock()
		a.result = r
		a.mu.Unlock()
		close(a.done)

		if onResult != nil {
			onResult(a, r)
		}
	}()
	return a
}

func (a *Attempt) run(ctx context.Context, svc Service, cred pairing.Credential) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			r = Failure(CodeInternal, fmt.Sprintf("heartbeat service panicked: %v", p))
		}
	}()
	if err := ctx.Err(); err != nil {
		return Failure(CodeCanceled, err.Error())
	}
	return svc.Heartbeat(ctx, cred)
}

// Supersede marks the attempt as replaced by a newer one. Its result is
// still delivered but callers should treat failures as stale.
func (a *Attempt) Supersede() {
	a.superseded.Store(true)
}

// Superseded reports whether Supersede or Cancel was called.
func (a *Attempt) Superseded() bool {
	return a.superseded.Load()
}

// Cancel supersedes the attempt and cancels its context.
func (a *Attempt) Cancel() {
	a.Supersede()
	a.cancel()
}

// Done is closed once the attempt has a result.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Result returns the attempt's result and whether it has finished.
func (a *Attempt) Result() (Result, bool) {
	select {
	case <-a.done:
	default:
		return Result{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, true
}
