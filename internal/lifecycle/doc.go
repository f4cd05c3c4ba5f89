// Package lifecycle connects the sync engine to the events that should
// start a run: connectivity coming back and a periodic timer.
//
// Every source goes through a Trigger. A trigger that fires while the
// daemon is offline is skipped, and one that fires while a run is live is
// dropped; the next event or tick picks up whatever is still pending.
package lifecycle
