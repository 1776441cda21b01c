// Package gateway is the recgate front end.
//
// A Server owns the client listener, one delegator per accepted connection,
// the backend registry and a maintenance loop that keeps the registry in
// shape. The accept loop, every delegator and the maintenance loop are
// runner.Runner instances, so Pause, Resume and Stop move them in lockstep.
//
// # Policies
//
// The registry is driven by a Policy:
//
//   - Listener binds the first configured backend and forwards every request
//     to it.
//   - Balancer binds every configured backend and forwards each request to
//     the one reporting the lowest activity.
//
// Both drop unreachable backends on every maintenance pass and immediately
// when a backend announces that it is exiting.
//
// # Side HTTP server
//
// When server.http_addr is set the gateway also serves /health,
// /health/ready and, if enabled, Prometheus metrics.
package gateway
