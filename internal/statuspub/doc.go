// Package statuspub mirrors gateway lifecycle events to a Redis pub/sub
// channel so dashboards and other gateways can follow them.
package statuspub
