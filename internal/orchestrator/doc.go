// Package orchestrator drives the connection lifecycle from process start to
// a usable connection.
//
// # States
//
//   - [StateIdle]: before [Orchestrator.Run]
//   - [StateAttempting]: a heartbeat attempt is in flight
//   - [StateFailed]: the last attempt failed; a retry may be pending
//   - [StateAwaitingPairing]: the host rejected the credential and a new one
//     must be imported
//   - [StateReady]: terminal, the sink has been told to advance
//
// Without a stored credential the lifecycle goes straight from Idle to
// Ready and no heartbeat is sent.
//
// # Event Loop
//
// All state is owned by the goroutine running [Orchestrator.Run]. Attempt
// results, watchdog and retry timers, and imports arrive as messages on one
// channel, so there are no shared flags to poll. [Orchestrator.State] reads
// a mutex-guarded [Snapshot] and is safe from any goroutine.
//
// # Timeouts and Retries
//
// A one-shot watchdog is armed on the first attempt. If it fires before
// Ready the fatal error is shown once; attempts keep running and a later
// success still reaches Ready. While awaiting pairing the state is left
// alone so an import can still complete the lifecycle. Generic
// failures are retried with the backoff from package retry until the policy
// is exhausted. An invalid host ID is never retried automatically.
//
// # Basic Usage
//
//	orch, err := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{
//	    Store:   store,
//	    Service: &heartbeat.DialService{Address: addr},
//	    Sink:    notify.NewLogSink(logger),
//	    Proxy:   proxy.NewLauncher(proxy.Config{Logger: logger}),
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return orch.Run(ctx)
package orchestrator
