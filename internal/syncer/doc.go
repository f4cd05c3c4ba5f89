// Package syncer drains locally pending records to a remote authority.
//
// # Sessions
//
// Engine.SyncAll opens a Session, which is the engine's mutual-exclusion
// lock. A second SyncAll while a session is live returns
// OutcomeAlreadySyncing immediately; the request is dropped, not queued.
// The session is released on every exit path, panics included.
//
// Records are pushed one at a time. A failed push leaves the record
// pending (it is retried by the next run) and bumps the session's error
// count; it never aborts the run. Every failure is treated the same way;
// the engine does not try to tell transient failures from permanent ones.
//
// Engine.SyncOne pushes a single pending record without taking the lock.
//
// # Events
//
//	events := engine.Subscribe(ctx)
//	for ev := range events {
//		switch ev.Kind {
//		case syncer.EventStatus:   // ev.State, ev.Message
//		case syncer.EventProgress: // ev.Completed, ev.Total
//		case syncer.EventLastSync: // ev.LastSync
//		}
//	}
//
// Delivery is best effort: a subscriber whose buffer is full misses events.
// A bulk run always ends with exactly one terminal status event,
// sync-success or sync-error. A run with failures is reported as
// sync-error with partial counts, never as a crash.
package syncer
