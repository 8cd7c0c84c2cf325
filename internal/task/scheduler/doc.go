// Package scheduler runs deferred and periodic work in logical ticks.
//
// A host calls (*Scheduler).AdvanceTick once per simulation step. Each call
// runs every pending task whose execution tick has been reached, in
// execution-tick order with insertion order breaking ties, then advances the
// tick counter by one. Sync bodies run on the caller's goroutine; async bodies
// are handed to the shared engine and observe cancellation through their
// context.
//
// Cron bridges wall-clock schedules onto the same tick thread.
package scheduler
