// Package runner provides the lifecycle primitive behind every long-lived
// goroutine in the gateway.
//
// # Overview
//
// A Runner owns one goroutine that calls a task function repeatedly. The
// caller drives it through four control calls:
//
//	Start  -> Stopped to Running
//	Pause  -> Running to Paused (blocks until the loop acknowledges)
//	Resume -> Paused to Running
//	Stop   -> Running or Paused to Stopped (blocks until the clear hook has run)
//
// Control calls are serialized by one instance lock. The task itself runs
// unlocked, so a slow task never blocks control calls beyond the point where
// they wait for the loop's checkpoint between iterations.
//
// # Interrupts
//
// A task that blocks (accepting a connection, reading a line) can delay the
// checkpoint. WithInterrupt registers a hook called after a pause or stop has
// been requested, which should make the blocked call return early:
//
//	r := runner.New("accept", acceptOnce,
//	    runner.WithInterrupt(wakeAccept),
//	    runner.WithClear(closeListener),
//	)
//
// # Failures
//
// Errors returned by the task are logged and panics are recovered; neither
// ends the loop. ForceStop abandons a hung goroutine without running the
// clear hook and should only be used when Stop cannot complete.
package runner
