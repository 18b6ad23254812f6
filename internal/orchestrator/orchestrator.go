package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/pairlink/internal/clock"
	perrors "github.com/Iron-Ham/pairlink/internal/errors"
	"github.com/Iron-Ham/pairlink/internal/event"
	"github.com/Iron-Ham/pairlink/internal/heartbeat"
	"github.com/Iron-Ham/pairlink/internal/logging"
	"github.com/Iron-Ham/pairlink/internal/notify"
	"github.com/Iron-Ham/pairlink/internal/orchestrator/retry"
	"github.com/Iron-Ham/pairlink/internal/pairing"
	"github.com/Iron-Ham/pairlink/internal/proxy"
)

// DefaultEstablishTimeout is how long the lifecycle may take to reach Ready
// before the fatal error is shown.
const DefaultEstablishTimeout = 15 * time.Second

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = perrors.New("orchestrator already started")

// CredentialStore is the part of pairing.Store the orchestrator needs.
type CredentialStore interface {
	Path() string
	Exists() bool
	Load() (pairing.Credential, error)
	ImportAndReplace(src string) error
}

// ProxyLauncher starts the loopback proxy. See proxy.Launcher.
type ProxyLauncher interface {
	Start(ctx context.Context, addr string) <-chan proxy.Status
}

// Config holds the lifecycle tunables.
type Config struct {
	// EstablishTimeout arms the one-shot watchdog on the first attempt.
	EstablishTimeout time.Duration
	Retry            retry.Policy
	// ProxyAddress is passed to Deps.Proxy.Start.
	ProxyAddress string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EstablishTimeout: DefaultEstablishTimeout,
		Retry:            retry.DefaultPolicy(),
		ProxyAddress:     proxy.DefaultBindAddress,
	}
}

// Deps are the collaborators of an Orchestrator. Store, Service and Sink
// are required.
type Deps struct {
	Store   CredentialStore
	Service heartbeat.Service
	Sink    notify.Sink

	Proxy  ProxyLauncher   // nil skips the proxy launch
	Bus    *event.Bus      // nil disables event publishing
	Clock  clock.Clock     // nil uses the real clock
	Logger *logging.Logger // nil discards logs
}

// Loop events. Everything that changes lifecycle state arrives as one of
// these on Orchestrator.events and is handled by the Run goroutine.
type (
	attemptDone struct {
		attempt *heartbeat.Attempt
		result  heartbeat.Result
	}
	watchdogFired struct{}
	retryDue      struct{ seq uint64 }
	importRequest struct {
		src   string
		reply chan error
	}
)

// Orchestrator owns the connection lifecycle state machine.
type Orchestrator struct {
	cfg     Config
	store   CredentialStore
	service heartbeat.Service
	sink    notify.Sink
	proxy   ProxyLauncher
	bus     *event.Bus
	clock   clock.Clock
	logger  *logging.Logger
	tracker *retry.Tracker

	events   chan any
	ready    chan struct{}
	done     chan struct{}
	started  atomic.Bool
	importMu sync.Mutex // serialises imports after Run has returned

	mu   sync.RWMutex
	snap Snapshot

	// Fields below are owned by the Run goroutine.
	ctx         context.Context
	state       State
	reason      FailureReason
	current     *heartbeat.Attempt
	outstanding map[*heartbeat.Attempt]struct{}
	watchdog    *clock.Timer
	armed       bool
	timedOut    bool
	fatalShown  bool
	retryTimer  *clock.Timer
	retrySeq    uint64
}

// New creates an Orchestrator in StateIdle. Nothing happens until Run.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, perrors.NewValidationError("credential store is required").WithField("store")
	case deps.Service == nil:
		return nil, perrors.NewValidationError("heartbeat service is required").WithField("service")
	case deps.Sink == nil:
		return nil, perrors.NewValidationError("notification sink is required").WithField("sink")
	}
	if err := validatePolicy(cfg.Retry); err != nil {
		return nil, err
	}

	if cfg.EstablishTimeout <= 0 {
		cfg.EstablishTimeout = DefaultEstablishTimeout
	}
	if cfg.ProxyAddress == "" {
		cfg.ProxyAddress = proxy.DefaultBindAddress
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	o := &Orchestrator{
		cfg:         cfg,
		store:       deps.Store,
		service:     deps.Service,
		sink:        deps.Sink,
		proxy:       deps.Proxy,
		bus:         deps.Bus,
		clock:       clk,
		logger:      logger.WithComponent("orchestrator"),
		tracker:     retry.NewTracker(cfg.Retry, clk),
		events:      make(chan any, 16),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
		outstanding: make(map[*heartbeat.Attempt]struct{}),
	}
	o.snap = Snapshot{State: StateIdle, EnteredAt: clk.Now()}
	return o, nil
}

func validatePolicy(p retry.Policy) error {
	switch {
	case p.Jitter < 0 || p.Jitter > 1:
		return perrors.NewValidationError("jitter must be between 0 and 1").
			WithField("retry.jitter").
			WithValue(p.Jitter)
	case p.MaxAttempts < 0:
		return perrors.NewValidationError("must not be negative").
			WithField("retry.max_attempts").
			WithValue(p.MaxAttempts)
	case p.InitialBackoff < 0 || p.MaxBackoff < 0:
		return perrors.NewValidationError("backoff must not be negative").
			WithField("retry.initial_backoff").
			WithValue(p.InitialBackoff)
	}
	return nil
}

// Run launches the proxy, decides whether a heartbeat is needed and drives
// the lifecycle until Ready or until ctx is done. It returns nil on Ready
// and ctx.Err() on cancellation. The proxy keeps running under ctx after
// Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	o.launchProxy(ctx)

	attemptCtx, cancel := context.WithCancel(ctx)
	o.ctx = attemptCtx
	defer func() {
		o.shutdown()
		cancel()
		close(o.done)
	}()

	if o.store.Exists() {
		o.logger.Info("credential found, verifying connection", "path", o.store.Path())
		o.startAttempt()
	} else {
		o.logger.Info("no credential, skipping heartbeat", "path", o.store.Path())
		o.becomeReady()
	}

	for !o.state.Terminal() {
		select {
		case <-ctx.Done():
			o.logger.Info("lifecycle stopped", "state", o.state.String())
			return ctx.Err()
		case ev := <-o.events:
			o.handle(ev)
		}
	}
	return nil
}

// ImportCredential replaces the active credential with src and restarts the
// heartbeat, superseding any attempt in flight. A failed import is logged
// and leaves the lifecycle state unchanged.
//
// The import is serialised through the Run loop, so the call waits until
// Run is processing events. After Run has returned the file is imported
// without touching the lifecycle.
func (o *Orchestrator) ImportCredential(ctx context.Context, src string) error {
	req := importRequest{src: src, reply: make(chan error, 1)}

	select {
	case o.events <- req:
	case <-o.done:
		return o.importDetached(src)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-o.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return o.importDetached(src)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the lifecycle.
func (o *Orchestrator) State() Snapshot {
	o.mu.RLock()
	s := o.snap
	o.mu.RUnlock()

	if s.Proxy != nil {
		p := *s.Proxy
		s.Proxy = &p
	}
	s.Retry = o.tracker.State()
	s.Attempts = s.Retry.Attempts
	return s
}

// Ready is closed when the lifecycle reaches StateReady.
func (o *Orchestrator) Ready() <-chan struct{} {
	return o.ready
}

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) handle(ev any) {
	switch ev := ev.(type) {
	case attemptDone:
		o.handleResult(ev.attempt, ev.result)
	case watchdogFired:
		o.handleWatchdog()
	case retryDue:
		o.handleRetry(ev.seq)
	case importRequest:
		ev.reply <- o.handleImport(ev.src)
	}
}

// post delivers ev to the loop unless Run has returned.
func (o *Orchestrator) post(ev any) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) deliver(a *heartbeat.Attempt, r heartbeat.Result) {
	o.post(attemptDone{attempt: a, result: r})
}

// -----------------------------------------------------------------------------
// Attempts
// -----------------------------------------------------------------------------

func (o *Orchestrator) startAttempt() {
	n := o.tracker.RecordStart()
	// The deadline covers the whole lifecycle, including attempts that
	// never get as far as the heartbeat.
	o.armWatchdog()

	cred, err := o.store.Load()
	if err != nil {
		if perrors.Is(err, perrors.ErrCredentialMissing) {
			o.logger.Warn("credential disappeared before attempt", "path", o.store.Path())
			o.awaitPairing()
			return
		}
		err = perrors.Wrap(err, "loading credential")
		o.logger.Error("attempt failed before heartbeat", "attempt", n, "error", err.Error())
		o.handleFailure(heartbeat.Failure(heartbeat.CodeInternal, err.Error()))
		return
	}

	a := heartbeat.Start(o.ctx, o.service, cred, o.deliver)
	o.outstanding[a] = struct{}{}
	o.setCurrent(a)
	o.transition(StateAttempting, ReasonNone)

	o.logger.WithAttempt(a.ID).Info("heartbeat attempt started",
		"attempt", n,
		"host_id", cred.HostID)
	o.publish(event.NewAttemptStartedEvent(a.ID, n))
}

func (o *Orchestrator) handleResult(a *heartbeat.Attempt, r heartbeat.Result) {
	delete(o.outstanding, a)
	if o.ctx.Err() != nil {
		// Shutting down; the attempt was cancelled with everything else.
		return
	}

	stale := a != o.current || a.Superseded()
	outcome := r.Outcome()
	log := o.logger.WithAttempt(a.ID)
	o.publish(event.NewAttemptResultEvent(a.ID, r.Code, r.Message, outcome.String(), stale))

	if stale {
		// A late success is still proof the credential works.
		if outcome == heartbeat.OutcomeSuccess {
			log.Info("accepting success from superseded attempt")
			o.succeed(r)
			return
		}
		log.Debug("discarding result from superseded attempt", "code", r.Code)
		return
	}
	o.setCurrent(nil)

	if outcome == heartbeat.OutcomeSuccess {
		log.Info("heartbeat succeeded")
		o.succeed(r)
		return
	}

	err := o.attemptError(a, r)
	logAtSeverity(log, perrors.GetSeverity(err), "heartbeat failed",
		"error", err.Error(),
		"outcome", outcome.String())
	if !perrors.IsRetryable(err) {
		o.tracker.RecordFailure(r.Code, r.Message)
		o.recordResult(r)
		o.awaitPairing()
		return
	}
	o.handleFailure(r)
}

// attemptError converts a failed result into a HeartbeatError tagged with
// the attempt. Failures after the fatal error are logged quietly.
func (o *Orchestrator) attemptError(a *heartbeat.Attempt, r heartbeat.Result) error {
	err := r.Err()
	var hbErr *perrors.HeartbeatError
	if !perrors.As(err, &hbErr) {
		return err
	}
	hbErr.WithAttemptID(a.ID)
	if o.fatalShown && hbErr.IsRetryable() {
		hbErr.WithSeverity(perrors.SeverityInfo)
	}
	return hbErr
}

func logAtSeverity(log *logging.Logger, sev perrors.Severity, msg string, args ...any) {
	switch {
	case sev >= perrors.SeverityError:
		log.Error(msg, args...)
	case sev == perrors.SeverityWarning:
		log.Warn(msg, args...)
	case sev == perrors.SeverityInfo:
		log.Info(msg, args...)
	default:
		log.Debug(msg, args...)
	}
}

func (o *Orchestrator) succeed(r heartbeat.Result) {
	o.tracker.RecordSuccess()
	o.recordResult(r)
	o.becomeReady()
}

func (o *Orchestrator) handleFailure(r heartbeat.Result) {
	o.tracker.RecordFailure(r.Code, r.Message)
	o.recordResult(r)

	if !o.tracker.ShouldRetry() {
		st := o.tracker.State()
		err := perrors.Wrapf(perrors.ErrRetriesExhausted, "after %d attempts", st.Attempts)
		o.logger.Error("giving up on connection",
			"error", err.Error(),
			"attempts", st.Attempts,
			"elapsed", st.Elapsed.String(),
			"last_code", r.Code)
		o.transition(StateFailed, ReasonRetriesExhausted)
		o.showFatal()
		return
	}

	// Once the fatal error is up, retries continue without further noise.
	if !o.fatalShown {
		notify.ShowError(o.sink, notify.ConnectionErrorTitle, notify.ConnectionErrorMessage)
	}
	o.transition(StateFailed, o.failureReason())
	o.scheduleRetry()
}

func (o *Orchestrator) failureReason() FailureReason {
	if o.timedOut {
		return ReasonTimeout
	}
	return ReasonConnectivity
}

func (o *Orchestrator) scheduleRetry() {
	delay := o.tracker.NextDelay()
	next := o.tracker.State().Attempts + 1
	o.logger.Info("retry scheduled", "attempt", next, "delay", delay.String())
	o.publish(event.NewRetryScheduledEvent(next, delay))

	o.retrySeq++
	seq := o.retrySeq
	if delay <= 0 {
		// Go through the loop rather than recursing into startAttempt, so a
		// failure that never reaches the heartbeat cannot grow the stack.
		go o.post(retryDue{seq: seq})
		return
	}
	o.retryTimer = o.clock.AfterFunc(delay, func() { o.post(retryDue{seq: seq}) })
}

func (o *Orchestrator) handleRetry(seq uint64) {
	if seq != o.retrySeq || o.state != StateFailed {
		return
	}
	o.retryTimer = nil
	o.startAttempt()
}

func (o *Orchestrator) cancelRetry() {
	o.retrySeq++
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
}

func (o *Orchestrator) cancelOutstanding() {
	for a := range o.outstanding {
		a.Cancel()
	}
	clear(o.outstanding)
	o.setCurrent(nil)
}

// -----------------------------------------------------------------------------
// Watchdog
// -----------------------------------------------------------------------------

func (o *Orchestrator) armWatchdog() {
	if o.armed {
		return
	}
	o.armed = true
	o.watchdog = o.clock.AfterFunc(o.cfg.EstablishTimeout, func() { o.post(watchdogFired{}) })
}

func (o *Orchestrator) handleWatchdog() {
	o.watchdog = nil

	if o.state.Terminal() {
		return
	}

	o.timedOut = true
	o.update(func(s *Snapshot) { s.TimedOut = true })

	// Background retries continue only while a credential is in use and the
	// policy has not given up. Awaiting pairing waits for an import instead.
	retrying := o.state != StateAwaitingPairing && o.reason != ReasonRetriesExhausted
	attempts := o.tracker.State().Attempts
	err := perrors.NewTimeoutError("establishing connection", o.cfg.EstablishTimeout).
		WithCause(perrors.ErrEstablishmentTimeout).
		WithRetryable(retrying)
	o.logger.Error("connection not established in time",
		"error", err.Error(),
		"attempts", attempts,
		"state", o.state.String(),
		"retrying", perrors.IsRetryable(err))
	o.publish(event.NewConnectionTimeoutEvent(o.cfg.EstablishTimeout, attempts))

	if retrying {
		o.transition(StateFailed, ReasonTimeout)
	}
	o.showFatal()
}

func (o *Orchestrator) showFatal() {
	if o.fatalShown {
		return
	}
	o.fatalShown = true
	o.update(func(s *Snapshot) { s.FatalShown = true })
	o.sink.ShowFatalError(notify.FatalTitle, notify.FatalMessage)
}

// -----------------------------------------------------------------------------
// Terminal and pairing states
// -----------------------------------------------------------------------------

func (o *Orchestrator) becomeReady() {
	o.stopTimers()
	o.cancelOutstanding()
	o.transition(StateReady, ReasonNone)
	o.sink.AdvanceToReady()
	close(o.ready)
}

func (o *Orchestrator) awaitPairing() {
	o.cancelRetry()
	o.transition(StateAwaitingPairing, ReasonNone)
	o.sink.PromptForRepairing()
}

func (o *Orchestrator) stopTimers() {
	if o.watchdog != nil {
		o.watchdog.Stop()
		o.watchdog = nil
	}
	o.cancelRetry()
}

func (o *Orchestrator) shutdown() {
	o.stopTimers()
	o.cancelOutstanding()
}

// -----------------------------------------------------------------------------
// Import
// -----------------------------------------------------------------------------

func (o *Orchestrator) handleImport(src string) error {
	if err := o.importFile(src); err != nil {
		return err
	}

	o.cancelOutstanding()
	o.cancelRetry()
	o.tracker.Reset()
	o.startAttempt()
	return nil
}

// importDetached imports src once the loop is gone.
func (o *Orchestrator) importDetached(src string) error {
	o.importMu.Lock()
	defer o.importMu.Unlock()
	return o.importFile(src)
}

func (o *Orchestrator) importFile(src string) error {
	if err := o.store.ImportAndReplace(src); err != nil {
		o.logger.Warn("credential import rejected",
			"source", src,
			"error", err.Error(),
			"state", o.State().State.String())
		o.publish(event.NewPairingImportFailedEvent(src, err))
		return err
	}

	var hostID string
	if cred, err := o.store.Load(); err == nil {
		hostID = cred.HostID
	}
	o.logger.Info("credential replaced", "source", src, "host_id", hostID)
	o.publish(event.NewPairingImportedEvent(src, o.store.Path(), hostID))
	return nil
}

// -----------------------------------------------------------------------------
// Proxy
// -----------------------------------------------------------------------------

func (o *Orchestrator) launchProxy(ctx context.Context) {
	if o.proxy == nil {
		return
	}
	ch := o.proxy.Start(ctx, o.cfg.ProxyAddress)

	go func() {
		select {
		case st := <-ch:
			o.recordProxy(st)
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) recordProxy(st proxy.Status) {
	addr := st.Addr
	if addr == "" {
		addr = o.cfg.ProxyAddress
	}
	if st.Err != nil {
		o.logger.Warn("proxy launch failed, continuing without it",
			"addr", addr,
			"error", st.Err.Error())
	} else {
		o.logger.Info("proxy running", "addr", addr)
	}

	o.update(func(s *Snapshot) { s.Proxy = &st })
	o.publish(event.NewProxyStatusEvent(addr, st.Started, st.Err))
}

// -----------------------------------------------------------------------------
// Bookkeeping
// -----------------------------------------------------------------------------

func (o *Orchestrator) transition(to State, reason FailureReason) {
	from, fromReason := o.state, o.reason
	if from == to && fromReason == reason {
		return
	}
	o.state, o.reason = to, reason

	now := o.clock.Now()
	o.update(func(s *Snapshot) {
		s.State = to
		s.Reason = reason
		s.EnteredAt = now
	})

	o.logger.WithState(to.String()).Info("state changed",
		"from", from.String(),
		"reason", reason.String())
	o.publish(event.NewStateChangedEvent(from.String(), to.String(), reason.String()))
}

func (o *Orchestrator) setCurrent(a *heartbeat.Attempt) {
	o.current = a
	id := ""
	if a != nil {
		id = a.ID
	}
	o.update(func(s *Snapshot) { s.CurrentAttempt = id })
}

func (o *Orchestrator) recordResult(r heartbeat.Result) {
	o.update(func(s *Snapshot) {
		s.LastResult = r
		s.HasResult = true
	})
}

func (o *Orchestrator) update(fn func(*Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.snap)
}

func (o *Orchestrator) publish(e event.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}
