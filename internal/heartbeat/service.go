package heartbeat

import (
	"context"
	"sync"

	"github.com/Iron-Ham/pairlink/internal/pairing"
)

// Service performs one heartbeat against the paired host using cred. It
// blocks until the host answers, the attempt fails or ctx is done.
type Service interface {
	Heartbeat(ctx context.Context, cred pairing.Credential) Result
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, cred pairing.Credential) Result

// Heartbeat calls f.
func (f ServiceFunc) Heartbeat(ctx context.Context, cred pairing.Credential) Result {
	return f(ctx, cred)
}

// CallbackFunc adapts a callback-style heartbeat to Service. The function
// may call onResult synchronously or from another goroutine. Only the
// first call counts; later calls are ignored.
type CallbackFunc func(cred pairing.Credential, onResult func(code int32, message *string))

// Heartbeat starts f and waits for its first callback or for ctx.
func (f CallbackFunc) Heartbeat(ctx context.Context, cred pairing.Credential) Result {
	results := make(chan Result, 1)
	var once sync.Once
	go f(cred, func(code int32, message *string) {
		once.Do(func() {
			results <- FromCallback(code, message)
		})
	})

	select {
	case r := <-results:
		return r
	case <-ctx.Done():
		return Failure(CodeCanceled, ctx.Err().Error())
	}
}
