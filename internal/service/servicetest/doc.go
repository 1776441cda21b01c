// Package servicetest provides in-memory Service and registry.Backend fakes
// for tests of the gateway, delegator and transport packages.
package servicetest
