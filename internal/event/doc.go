// Package event provides a pub-sub event bus for the connection lifecycle.
//
// The orchestrator publishes every state transition and heartbeat result on
// a [Bus]; the terminal UI, the notification sinks and tests subscribe to
// them without the orchestrator knowing who listens.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Connection:
//   - [StateChangedEvent]: every state transition
//   - [ConnectionTimeoutEvent]: the establishment watchdog fired
//
// Heartbeat:
//   - [AttemptStartedEvent], [AttemptResultEvent], [RetryScheduledEvent]
//
// Proxy and pairing:
//   - [ProxyStatusEvent]
//   - [PairingImportedEvent], [PairingImportFailedEvent]
//
// # Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeStateChanged, func(e event.Event) {
//	    sc := e.(event.StateChangedEvent)
//	    fmt.Println(sc.From, "->", sc.To)
//	})
//
// Handlers run synchronously on the publisher's goroutine and must not
// block; a panicking handler is recovered and logged.
package event
