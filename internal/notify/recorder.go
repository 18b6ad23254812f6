package notify

import "sync"

// Call kinds recorded by Recorder.
const (
	CallReady     = "ready"
	CallRepair    = "repair"
	CallFatal     = "fatal"
	CallShowError = "error"
)

// Call is one recorded notification.
type Call struct {
	Kind    string
	Title   string
	Message string
}

// Recorder is a Sink and ErrorNotifier that records every call. Each call
// is also sent on Calls() if there is buffer room, so tests can wait for
// notifications instead of polling.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	ch    chan Call
}

// NewRecorder creates a Recorder whose channel buffers up to 64 calls.
func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan Call, 64)}
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()

	select {
	case r.ch <- c:
	default:
	}
}

func (r *Recorder) AdvanceToReady()     { r.record(Call{Kind: CallReady}) }
func (r *Recorder) PromptForRepairing() { r.record(Call{Kind: CallRepair}) }

func (r *Recorder) ShowFatalError(title, message string) {
	r.record(Call{Kind: CallFatal, Title: title, Message: message})
}

func (r *Recorder) ShowError(title, message string) {
	r.record(Call{Kind: CallShowError, Title: title, Message: message})
}

// Calls returns the channel of recorded calls.
func (r *Recorder) Calls() <-chan Call {
	return r.ch
}

// All returns a copy of every recorded call in order.
func (r *Recorder) All() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls of kind were recorded.
func (r *Recorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
