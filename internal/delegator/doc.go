// Package delegator serves one client connection.
//
// A Delegator owns a runner.Runner whose task handles exactly one request
// line: read, parse, check the session, pick a backend, dispatch, write. The
// native protocol keeps looping until the client quits or the socket closes;
// an HTTP request line gets one response and the connection is closed.
//
// The first native request must carry credentials. Once they are accepted a
// Session is attached to the Delegator and later requests only re-check its
// privileges against what each action requires.
//
// Pause and Stop interrupt a read that is waiting on an idle client by moving
// the read deadline to now; any bytes of a half-received line are kept for
// the next iteration.
package delegator
