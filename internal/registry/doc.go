// Package registry keeps the set of backends the gateway is bound to.
//
// A BindServerList is an ordered list of BindServer entries, unique by
// (host, port). Entries are added by Bind, which dials the backend through a
// Dialer and checks its credentials, and removed by Unbind or by Prune when a
// liveness probe fails. IdleServer picks the least busy entry by comparing
// the Activity each backend reports.
//
// Two locks are involved. The list lock guards the slice and is only held for
// short copies and swaps, so request-time reads never wait on the network.
// The operations lock serializes bind, unbind and prune so that slow dials and
// probes do not race each other.
package registry
