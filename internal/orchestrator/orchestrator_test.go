package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/pairlink/internal/clock"
	perrors "github.com/Iron-Ham/pairlink/internal/errors"
	"github.com/Iron-Ham/pairlink/internal/event"
	"github.com/Iron-Ham/pairlink/internal/heartbeat"
	"github.com/Iron-Ham/pairlink/internal/heartbeat/heartbeattest"
	"github.com/Iron-Ham/pairlink/internal/notify"
	"github.com/Iron-Ham/pairlink/internal/orchestrator/retry"
	"github.com/Iron-Ham/pairlink/internal/pairing"
	"github.com/Iron-Ham/pairlink/internal/proxy"
	"github.com/Iron-Ham/pairlink/internal/testutil"
)

const waitTimeout = 2 * time.Second

type harness struct {
	t        *testing.T
	storeDir string
	inbox    string
	store    *pairing.Store
	svc      *heartbeattest.Service
	sink     *notify.Recorder
	clock    *clock.FakeClock
	bus      *event.Bus
	orch     *Orchestrator

	ctx    context.Context
	cancel context.CancelFunc
	errCh  chan error

	mu          sync.Mutex
	transitions []string
}

// testConfig retries immediately, never gives up and times out after 15s.
func testConfig() Config {
	return Config{
		EstablishTimeout: 15 * time.Second,
		Retry:            retry.Policy{Multiplier: 2},
		ProxyAddress:     "127.0.0.1:0",
	}
}

func newHarness(t *testing.T, cfg Config, hostID string, steps ...heartbeattest.Step) *harness {
	t.Helper()

	root := t.TempDir()
	h := &harness{
		t:        t,
		storeDir: filepath.Join(root, "state"),
		inbox:    filepath.Join(root, "inbox"),
		svc:      heartbeattest.New(steps...),
		sink:     notify.NewRecorder(),
		clock:    clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		bus:      event.NewBus(),
	}
	h.store = pairing.NewStore(pairing.StoreConfig{Path: filepath.Join(h.storeDir, "pairingFile.plist")})
	if hostID != "" {
		testutil.WriteCredential(t, h.storeDir, "pairingFile.plist", hostID)
	}

	h.bus.Subscribe(event.TypeStateChanged, func(e event.Event) {
		sc := e.(event.StateChangedEvent)
		h.mu.Lock()
		h.transitions = append(h.transitions, sc.From+"->"+sc.To)
		h.mu.Unlock()
	})

	orch, err := New(cfg, Deps{
		Store:   h.store,
		Service: h.svc,
		Sink:    h.sink,
		Bus:     h.bus,
		Clock:   h.clock,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = orch
	h.ctx, h.cancel = context.WithCancel(context.Background())
	t.Cleanup(h.cancel)
	return h
}

// unreadableStore claims a credential exists but can never load it.
type unreadableStore struct {
	*pairing.Store
	loads atomic.Int64
}

func (s *unreadableStore) Exists() bool { return true }

func (s *unreadableStore) Load() (pairing.Credential, error) {
	s.loads.Add(1)
	return pairing.Credential{}, errors.New("permission denied")
}

// useStore rebuilds the orchestrator around store. Call before start.
func (h *harness) useStore(cfg Config, store CredentialStore) {
	h.t.Helper()
	orch, err := New(cfg, Deps{
		Store:   store,
		Service: h.svc,
		Sink:    h.sink,
		Bus:     h.bus,
		Clock:   h.clock,
	})
	if err != nil {
		h.t.Fatalf("New() error = %v", err)
	}
	h.orch = orch
}

func (h *harness) start() {
	h.errCh = make(chan error, 1)
	go func() { h.errCh <- h.orch.Run(h.ctx) }()
}

func (h *harness) waitRun() error {
	h.t.Helper()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(waitTimeout):
		h.t.Fatalf("Run did not return; state = %s", h.orch.State().State)
		return nil
	}
}

func (h *harness) waitCall(kind string) notify.Call {
	h.t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case c := <-h.sink.Calls():
			if c.Kind == kind {
				return c
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for %q notification; got %+v", kind, h.sink.All())
			return notify.Call{}
		}
	}
}

func (h *harness) waitStarted(n int) {
	h.t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case got := <-h.svc.Started():
			if got == n {
				return
			}
		case <-timeout:
			h.t.Fatalf("heartbeat call %d never started; calls = %d", n, h.svc.Calls())
		}
	}
}

// sync round-trips a failing import through the event loop, so every event
// queued before it has been handled when it returns.
func (h *harness) sync() {
	h.t.Helper()
	err := h.orch.ImportCredential(h.ctx, filepath.Join(h.inbox, "missing.plist"))
	if err == nil {
		h.t.Fatal("importing a missing file should fail")
	}
}

func (h *harness) importCredential(hostID string) {
	h.t.Helper()
	src := testutil.WriteCredential(h.t, h.inbox, "new.mobiledevicepairing", hostID)
	if err := h.orch.ImportCredential(h.ctx, src); err != nil {
		h.t.Fatalf("ImportCredential() error = %v", err)
	}
}

func (h *harness) getTransitions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.transitions))
	copy(out, h.transitions)
	return out
}

func assertReady(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Ready():
	default:
		t.Fatal("Ready() channel not closed")
	}
	if s := o.State(); s.State != StateReady {
		t.Fatalf("State = %s, want ready", s.State)
	}
}

func TestRun_NoCredentialGoesStraightToReady(t *testing.T) {
	h := newHarness(t, testConfig(), "")
	h.start()

	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)

	if calls := h.svc.Calls(); calls != 0 {
		t.Errorf("heartbeat called %d times, want 0", calls)
	}
	all := h.sink.All()
	if len(all) != 1 || all[0].Kind != notify.CallReady {
		t.Errorf("sink calls = %+v, want exactly one ready", all)
	}
	if got := h.getTransitions(); len(got) != 1 || got[0] != "idle->ready" {
		t.Errorf("transitions = %v, want [idle->ready]", got)
	}
	if h.clock.PendingCount() != 0 {
		t.Errorf("timers pending after Ready: %d", h.clock.PendingCount())
	}
}

func TestRun_SuccessReachesReadyOnce(t *testing.T) {
	h := newHarness(t, testConfig(), "HOST-1",
		heartbeattest.Return(heartbeat.CodeNoRoute, "no route"),
		heartbeattest.Return(heartbeat.CodeSuccess),
		heartbeattest.Return(heartbeat.CodeSuccess),
	)
	h.start()

	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)

	if n := h.sink.Count(notify.CallReady); n != 1 {
		t.Errorf("AdvanceToReady called %d times, want 1", n)
	}
	if calls := h.svc.Calls(); calls != 2 {
		t.Errorf("heartbeat called %d times, want 2 (nothing after the first success)", calls)
	}
	s := h.orch.State()
	if !s.HasResult || s.LastResult.Code != heartbeat.CodeSuccess {
		t.Errorf("LastResult = %+v, want success", s.LastResult)
	}
	if !s.Retry.Succeeded {
		t.Error("retry state should record the success")
	}
}

func TestRun_NoRouteThenSuccess(t *testing.T) {
	h := newHarness(t, testConfig(), "HOST-1",
		heartbeattest.Return(heartbeat.CodeNoRoute, "no route"),
		heartbeattest.Return(heartbeat.CodeSuccess),
	)
	h.start()

	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)

	if n := h.sink.Count(notify.CallFatal); n != 0 {
		t.Errorf("ShowFatalError called %d times, want 0", n)
	}
	var shown []notify.Call
	for _, c := range h.sink.All() {
		if c.Kind == notify.CallShowError {
			shown = append(shown, c)
		}
	}
	if len(shown) != 1 {
		t.Fatalf("ShowError called %d times, want 1", len(shown))
	}
	if shown[0].Title != notify.ConnectionErrorTitle || shown[0].Message != notify.ConnectionErrorMessage {
		t.Errorf("ShowError(%q, %q), want connection error text", shown[0].Title, shown[0].Message)
	}

	want := []string{"idle->attempting", "attempting->failed", "failed->attempting", "attempting->ready"}
	got := h.getTransitions()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRun_GenericFailureSchedulesExactlyOneRetry(t *testing.T) {
	cfg := testConfig()
	cfg.Retry = retry.Policy{InitialBackoff: time.Second, Multiplier: 2}

	var retries []event.RetryScheduledEvent
	var mu sync.Mutex
	h := newHarness(t, cfg, "HOST-1", heartbeattest.Return(heartbeat.CodeNoRoute, "no route"))
	h.bus.Subscribe(event.TypeRetryScheduled, func(e event.Event) {
		mu.Lock()
		retries = append(retries, e.(event.RetryScheduledEvent))
		mu.Unlock()
	})
	h.start()

	h.waitCall(notify.CallShowError)
	h.sync()
	if s := h.orch.State(); s.State != StateFailed || s.Reason != ReasonConnectivity {
		t.Fatalf("state = %s/%s, want failed/connectivity", s.State, s.Reason)
	}

	// Watchdog plus the pending retry.
	h.clock.WaitForTimers(2)
	h.clock.Advance(time.Second)
	h.waitStarted(2)

	h.clock.Advance(5 * time.Second)
	h.sync()

	if calls := h.svc.Calls(); calls != 2 {
		t.Errorf("heartbeat called %d times, want 2", calls)
	}
	s := h.orch.State()
	if s.State != StateAttempting || s.Attempts != 2 {
		t.Errorf("state = %s attempts = %d, want attempting/2", s.State, s.Attempts)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(retries) != 1 {
		t.Fatalf("retry scheduled %d times, want 1", len(retries))
	}
	if retries[0].Attempt != 2 || retries[0].Delay != time.Second {
		t.Errorf("retry = attempt %d after %s, want attempt 2 after 1s", retries[0].Attempt, retries[0].Delay)
	}
}

func TestRun_InvalidHostIDAwaitsPairing(t *testing.T) {
	h := newHarness(t, testConfig(), "HOST-1", heartbeattest.Return(heartbeat.CodeInvalidHostID))
	h.start()

	h.waitCall(notify.CallRepair)
	h.sync()

	s := h.orch.State()
	if s.State != StateAwaitingPairing {
		t.Fatalf("State = %s, want awaiting_pairing", s.State)
	}
	if s.LastResult.Code != heartbeat.CodeInvalidHostID {
		t.Errorf("LastResult.Code = %d, want %d", s.LastResult.Code, heartbeat.CodeInvalidHostID)
	}
	if calls := h.svc.Calls(); calls != 1 {
		t.Errorf("heartbeat called %d times, want 1 (no automatic retry)", calls)
	}
	if n := h.sink.Count(notify.CallFatal); n != 0 {
		t.Errorf("ShowFatalError called %d times, want 0", n)
	}
	if n := h.sink.Count(notify.CallShowError); n != 0 {
		t.Errorf("ShowError called %d times, want 0", n)
	}
}

func TestWatchdog_FiresWhileAwaitingPairing(t *testing.T) {
	h := newHarness(t, testConfig(), "HOST-OLD",
		heartbeattest.Return(heartbeat.CodeInvalidHostID),
		heartbeattest.Return(heartbeat.CodeSuccess),
	)
	var timeouts atomic.Int64
	h.bus.Subscribe(event.TypeConnectionTimeout, func(event.Event) { timeouts.Add(1) })
	h.start()

	h.waitCall(notify.CallRepair)
	h.clock.WaitForTimers(1)
	h.clock.Advance(15 * time.Second)
	h.waitCall(notify.CallFatal)
	h.sync()

	s := h.orch.State()
	if s.State != StateAwaitingPairing || s.Reason != ReasonNone {
		t.Fatalf("state = %s/%s, want awaiting_pairing with no reason", s.State, s.Reason)
	}
	if !s.TimedOut || !s.FatalShown {
		t.Errorf("snapshot = %+v, want timed out with fatal shown", s)
	}
	if calls := h.svc.Calls(); calls != 1 {
		t.Errorf("heartbeat called %d times, want 1 (no retry while awaiting pairing)", calls)
	}
	if got := timeouts.Load(); got != 1 {
		t.Errorf("timeout events = %d, want 1", got)
	}
	if h.clock.PendingCount() != 0 {
		t.Errorf("timers pending while awaiting pairing: %d", h.clock.PendingCount())
	}

	// The prompt is still live: a new credential completes the lifecycle.
	h.importCredential("HOST-NEW")
	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)
	if n := h.sink.Count(notify.CallFatal); n != 1 {
		t.Errorf("ShowFatalError called %d times, want 1", n)
	}
}

func TestRun_ImportAfterInvalidHostIDReachesReady(t *testing.T) {
	h := newHarness(t, testConfig(), "HOST-OLD",
		heartbeattest.Return(heartbeat.CodeInvalidHostID),
		heartbeattest.Return(heartbeat.CodeSuccess),
	)
	h.start()

	h.waitCall(notify.CallRepair)
	h.importCredential("HOST-NEW")

	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)

	creds := h.svc.Credentials()
	if len(creds) != 2 {
		t.Fatalf("heartbeat called %d times, want 2", len(creds))
	}
	if creds[0].HostID != "HOST-OLD" || creds[1].HostID != "HOST-NEW" {
		t.Errorf("host IDs = %q, %q, want HOST-OLD, HOST-NEW", creds[0].HostID, creds[1].HostID)
	}
	if n := testutil.CountFiles(t, h.storeDir); n != 1 {
		t.Errorf("credential files after import = %d, want 1", n)
	}
	if n := h.sink.Count(notify.CallReady); n != 1 {
		t.Errorf("AdvanceToReady called %d times, want 1", n)
	}
}

func TestRun_FailedImportLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, testConfig(), "HOST-1", heartbeattest.Return(heartbeat.CodeInvalidHostID))
	h.start()
	h.waitCall(notify.CallRepair)

	bad := testutil.WriteFile(t, h.inbox, "notes.txt", []byte("hello"))
	err := h.orch.ImportCredential(h.ctx, bad)
	if !errors.Is(err, perrors.ErrInvalidCredentialFile) {
		t.Fatalf("ImportCredential() error = %v, want ErrInvalidCredentialFile", err)
	}

	if s := h.orch.State(); s.State != StateAwaitingPairing {
		t.Errorf("State = %s, want awaiting_pairing", s.State)
	}
	if calls := h.svc.Calls(); calls != 1 {
		t.Errorf("heartbeat called %d times, want 1", calls)
	}
	cred, err := h.store.Load()
	if err != nil || cred.HostID != "HOST-1" {
		t.Errorf("stored credential = %q, %v; want HOST-1 untouched", cred.HostID, err)
	}
}

func TestWatchdog_FiresOnceAndLateSuccessStillReady(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, testConfig(), "HOST-1", heartbeattest.Gated(gate, heartbeat.CodeSuccess))

	var timeouts int
	var mu sync.Mutex
	h.bus.Subscribe(event.TypeConnectionTimeout, func(event.Event) {
		mu.Lock()
		timeouts++
		mu.Unlock()
	})
	h.start()

	h.waitStarted(1)
	h.clock.WaitForTimers(1)
	h.clock.Advance(15 * time.Second)

	fatal := h.waitCall(notify.CallFatal)
	if fatal.Title != notify.FatalTitle || fatal.Message != notify.FatalMessage {
		t.Errorf("ShowFatalError(%q, %q), want establishment text", fatal.Title, fatal.Message)
	}
	h.sync()
	s := h.orch.State()
	if s.State != StateFailed || s.Reason != ReasonTimeout || !s.TimedOut || !s.FatalShown {
		t.Fatalf("snapshot = %+v, want failed/timeout with fatal shown", s)
	}
	if s.CurrentAttempt == "" {
		t.Error("in-flight attempt should not be cancelled by the watchdog")
	}

	close(gate)
	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)

	h.clock.Advance(time.Hour)
	if n := h.sink.Count(notify.CallFatal); n != 1 {
		t.Errorf("ShowFatalError called %d times, want 1", n)
	}
	if n := h.sink.Count(notify.CallReady); n != 1 {
		t.Errorf("AdvanceToReady called %d times, want 1", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if timeouts != 1 {
		t.Errorf("timeout events = %d, want 1", timeouts)
	}
}

func TestWatchdog_RetriesSilentlyAfterFatal(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, testConfig(), "HOST-1",
		heartbeattest.Gated(gate, heartbeat.CodeNoRoute, "no route"),
		heartbeattest.Return(heartbeat.CodeNoRoute, "no route"),
		heartbeattest.Return(heartbeat.CodeSuccess),
	)
	h.start()

	h.waitStarted(1)
	h.clock.WaitForTimers(1)
	h.clock.Advance(15 * time.Second)
	h.waitCall(notify.CallFatal)

	close(gate)
	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)

	if n := h.sink.Count(notify.CallShowError); n != 0 {
		t.Errorf("ShowError called %d times after the fatal error, want 0", n)
	}
	if n := h.sink.Count(notify.CallFatal); n != 1 {
		t.Errorf("ShowFatalError called %d times, want 1", n)
	}
	if calls := h.svc.Calls(); calls != 3 {
		t.Errorf("heartbeat called %d times, want 3", calls)
	}
}

func TestRun_RetriesExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Retry = retry.Policy{MaxAttempts: 2}
	h := newHarness(t, cfg, "HOST-1",
		heartbeattest.Return(heartbeat.CodeNoRoute, "first"),
		heartbeattest.Return(heartbeat.CodeNoRoute, "second"),
		heartbeattest.Return(heartbeat.CodeSuccess),
	)
	h.start()

	h.waitCall(notify.CallFatal)
	h.sync()

	s := h.orch.State()
	if s.State != StateFailed || s.Reason != ReasonRetriesExhausted {
		t.Fatalf("state = %s/%s, want failed/retries_exhausted", s.State, s.Reason)
	}
	if !s.Retry.Exhausted || s.Retry.LastError != "second" {
		t.Errorf("retry state = %+v, want exhausted after %q", s.Retry, "second")
	}
	if calls := h.svc.Calls(); calls != 2 {
		t.Errorf("heartbeat called %d times, want 2", calls)
	}
	if n := h.sink.Count(notify.CallShowError); n != 1 {
		t.Errorf("ShowError called %d times, want 1", n)
	}

	// A fresh credential starts a new retry sequence.
	h.importCredential("HOST-2")
	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)
	if n := h.sink.Count(notify.CallFatal); n != 1 {
		t.Errorf("ShowFatalError called %d times, want 1", n)
	}
	if got := h.orch.State().Attempts; got != 1 {
		t.Errorf("Attempts after import = %d, want 1", got)
	}
}

func TestRun_ImportSupersedesInFlightAttempt(t *testing.T) {
	never := make(chan struct{})
	h := newHarness(t, testConfig(), "HOST-1",
		heartbeattest.Gated(never, heartbeat.CodeNoRoute, "late"),
		heartbeattest.Return(heartbeat.CodeSuccess),
	)
	h.start()

	h.waitStarted(1)
	h.sync()
	first := h.orch.State().CurrentAttempt
	h.importCredential("HOST-2")

	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)

	if first == "" {
		t.Error("first attempt ID should be visible in the snapshot")
	}
	if n := h.sink.Count(notify.CallShowError); n != 0 {
		t.Errorf("superseded attempt produced %d ShowError calls, want 0", n)
	}
	if n := h.sink.Count(notify.CallReady); n != 1 {
		t.Errorf("AdvanceToReady called %d times, want 1", n)
	}
}

func TestRun_StaleFailureIsDiscarded(t *testing.T) {
	never := make(chan struct{})
	gate := make(chan struct{})
	h := newHarness(t, testConfig(), "HOST-1",
		heartbeattest.Gated(never, heartbeat.CodeNoRoute, "late"),
		heartbeattest.Gated(gate, heartbeat.CodeSuccess),
	)
	var stale, retries atomic.Int64
	h.bus.Subscribe(event.TypeAttemptResult, func(e event.Event) {
		if e.(event.AttemptResultEvent).Stale {
			stale.Add(1)
		}
	})
	h.bus.Subscribe(event.TypeRetryScheduled, func(event.Event) { retries.Add(1) })
	h.start()

	h.waitStarted(1)
	h.importCredential("HOST-2")
	h.waitStarted(2)

	// The superseded attempt is cancelled and reports a failure.
	testutil.Eventually(t, waitTimeout, func() bool { return stale.Load() == 1 }, "stale result delivered")
	h.sync()

	s := h.orch.State()
	if s.State != StateAttempting {
		t.Fatalf("State = %s, want attempting", s.State)
	}
	if n := h.sink.Count(notify.CallShowError); n != 0 {
		t.Errorf("stale failure produced %d ShowError calls, want 0", n)
	}
	if got := retries.Load(); got != 0 {
		t.Errorf("stale failure scheduled %d retries, want 0", got)
	}
	if calls := h.svc.Calls(); calls != 2 {
		t.Errorf("heartbeat called %d times, want 2", calls)
	}

	close(gate)
	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertReady(t, h.orch)
}

func TestRun_UnreadableCredentialKeepsLoopResponsive(t *testing.T) {
	h := newHarness(t, testConfig(), "")
	store := &unreadableStore{Store: h.store}
	h.useStore(testConfig(), store)
	h.start()

	// Zero backoff: every retry fails before reaching the heartbeat.
	testutil.Eventually(t, waitTimeout, func() bool { return store.loads.Load() >= 200 }, "repeated load attempts")

	// The watchdog is armed even though no heartbeat ever started.
	h.clock.WaitForTimers(1)
	h.clock.Advance(15 * time.Second)
	h.waitCall(notify.CallFatal)

	if calls := h.svc.Calls(); calls != 0 {
		t.Errorf("heartbeat called %d times, want 0", calls)
	}
	s := h.orch.State()
	if s.Retry.LastCode != heartbeat.CodeInternal {
		t.Errorf("LastCode = %d, want %d", s.Retry.LastCode, heartbeat.CodeInternal)
	}

	h.cancel()
	if err := h.waitRun(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_UnreadableCredentialExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Retry = retry.Policy{MaxAttempts: 3}
	h := newHarness(t, cfg, "")
	store := &unreadableStore{Store: h.store}
	h.useStore(cfg, store)
	h.start()

	h.waitCall(notify.CallFatal)
	h.sync()

	s := h.orch.State()
	if s.State != StateFailed || s.Reason != ReasonRetriesExhausted {
		t.Fatalf("state = %s/%s, want failed/retries_exhausted", s.State, s.Reason)
	}
	if got := store.loads.Load(); got != 3 {
		t.Errorf("credential loaded %d times, want 3", got)
	}
	if n := h.sink.Count(notify.CallFatal); n != 1 {
		t.Errorf("ShowFatalError called %d times, want 1", n)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	h := newHarness(t, testConfig(), "HOST-1")
	h.start()
	h.waitStarted(1)

	h.cancel()
	if err := h.waitRun(); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	select {
	case <-h.orch.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}
	select {
	case <-h.orch.Ready():
		t.Error("Ready() closed after cancellation")
	default:
	}
	if n := len(h.sink.All()); n != 0 {
		t.Errorf("sink calls after cancel = %d, want 0", n)
	}
}

func TestRun_Twice(t *testing.T) {
	h := newHarness(t, testConfig(), "")
	h.start()
	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := h.orch.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestImportCredential_AfterReady(t *testing.T) {
	h := newHarness(t, testConfig(), "")
	h.start()
	if err := h.waitRun(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	h.importCredential("HOST-LATE")

	if !h.store.Exists() {
		t.Error("credential should be imported after Ready")
	}
	if s := h.orch.State(); s.State != StateReady {
		t.Errorf("State = %s, want ready", s.State)
	}
	if calls := h.svc.Calls(); calls != 0 {
		t.Errorf("heartbeat called %d times, want 0", calls)
	}
}

func TestImportCredential_ContextDone(t *testing.T) {
	h := newHarness(t, testConfig(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Run was never started, so only ctx can end the wait.
	err := h.orch.ImportCredential(ctx, filepath.Join(h.inbox, "x.plist"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ImportCredential() error = %v, want context.Canceled", err)
	}
}

type fakeLauncher struct {
	mu     sync.Mutex
	addrs  []string
	status proxy.Status
}

func (f *fakeLauncher) Start(_ context.Context, addr string) <-chan proxy.Status {
	f.mu.Lock()
	f.addrs = append(f.addrs, addr)
	f.mu.Unlock()

	ch := make(chan proxy.Status, 1)
	ch <- f.status
	return ch
}

func TestRun_ProxyFailureDoesNotBlockLifecycle(t *testing.T) {
	launcher := &fakeLauncher{status: proxy.Status{Err: errors.New("address already in use")}}
	bus := event.NewBus()
	got := make(chan event.ProxyStatusEvent, 1)
	bus.Subscribe(event.TypeProxyStatus, func(e event.Event) {
		got <- e.(event.ProxyStatusEvent)
	})

	store := pairing.NewStore(pairing.StoreConfig{Path: filepath.Join(t.TempDir(), "pairingFile.plist")})
	sink := notify.NewRecorder()
	cfg := testConfig()
	cfg.ProxyAddress = "127.0.0.1:51820"
	orch, err := New(cfg, Deps{
		Store:   store,
		Service: heartbeattest.New(),
		Sink:    sink,
		Proxy:   launcher,
		Bus:     bus,
		Clock:   clock.Fake(time.Now()),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	select {
	case ev := <-got:
		if ev.Started || ev.Addr != "127.0.0.1:51820" {
			t.Errorf("proxy event = %+v, want failed launch on the configured address", ev)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no proxy status event")
	}
	testutil.Eventually(t, waitTimeout, func() bool { return orch.State().Proxy != nil }, "proxy status recorded")

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	if len(launcher.addrs) != 1 || launcher.addrs[0] != "127.0.0.1:51820" {
		t.Errorf("launcher started with %v, want one start on 127.0.0.1:51820", launcher.addrs)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	store := pairing.NewStore(pairing.StoreConfig{Path: filepath.Join(t.TempDir(), "p.plist")})
	svc := heartbeattest.New()
	sink := notify.NewRecorder()

	tests := []struct {
		name string
		deps Deps
	}{
		{"no store", Deps{Service: svc, Sink: sink}},
		{"no service", Deps{Store: store, Sink: sink}},
		{"no sink", Deps{Store: store, Service: svc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(DefaultConfig(), tt.deps); !errors.Is(err, perrors.ErrInvalidInput) {
				t.Errorf("New() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestNew_RejectsInvalidRetryPolicy(t *testing.T) {
	deps := Deps{
		Store:   pairing.NewStore(pairing.StoreConfig{Path: filepath.Join(t.TempDir(), "p.plist")}),
		Service: heartbeattest.New(),
		Sink:    notify.NewRecorder(),
	}
	tests := []struct {
		name   string
		policy retry.Policy
		field  string
	}{
		{"jitter above one", retry.Policy{Jitter: 1.5}, "retry.jitter"},
		{"negative jitter", retry.Policy{Jitter: -0.1}, "retry.jitter"},
		{"negative max attempts", retry.Policy{MaxAttempts: -1}, "retry.max_attempts"},
		{"negative backoff", retry.Policy{InitialBackoff: -time.Second}, "retry.initial_backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Retry = tt.policy
			_, err := New(cfg, deps)
			var vErr *perrors.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("New() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.field || vErr.Value == nil {
				t.Errorf("field = %q value = %v, want %q with a value", vErr.Field, vErr.Value, tt.field)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	orch, err := New(Config{}, Deps{
		Store:   pairing.NewStore(pairing.StoreConfig{Path: filepath.Join(t.TempDir(), "p.plist")}),
		Service: heartbeattest.New(),
		Sink:    notify.NewRecorder(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if orch.cfg.EstablishTimeout != DefaultEstablishTimeout {
		t.Errorf("EstablishTimeout = %s, want %s", orch.cfg.EstablishTimeout, DefaultEstablishTimeout)
	}
	if orch.cfg.ProxyAddress != proxy.DefaultBindAddress {
		t.Errorf("ProxyAddress = %q, want %q", orch.cfg.ProxyAddress, proxy.DefaultBindAddress)
	}
	if s := orch.State(); s.State != StateIdle {
		t.Errorf("initial State = %s, want idle", s.State)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateAwaitingPairing, "awaiting_pairing"},
		{StateAttempting, "attempting"},
		{StateReady, "ready"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if !StateReady.Terminal() || StateFailed.Terminal() {
		t.Error("only Ready is terminal")
	}
}

func TestFailureReason_String(t *testing.T) {
	tests := []struct {
		reason FailureReason
		want   string
	}{
		{ReasonNone, ""},
		{ReasonConnectivity, "connectivity"},
		{ReasonTimeout, "timeout"},
		{ReasonRetriesExhausted, "retries_exhausted"},
		{FailureReason(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("FailureReason(%d).String() = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
