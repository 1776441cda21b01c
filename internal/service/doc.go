// Package service defines the boundary between the gateway and the backend
// recommendation servers.
//
// Service lists every operation a backend offers: estimation and
// recommendation, rating and profile maintenance for users and items,
// nominal values, external id records, account validation and
// introspection. The gateway never knows how a backend computes anything; it
// only relays calls and results.
//
// Backends also push lifecycle events (started, paused, exit, ...). Anything
// interested in them implements Observer; the gateway itself publishes its
// own lifecycle through the same Event type.
package service
