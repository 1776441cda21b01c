// Package remote carries the Service interface over gRPC.
//
// The server side registers a "recgate.Service" descriptor built with
// grpcjson, one unary method per Service operation plus a server-streaming
// Watch that pushes backend lifecycle events. Liveness uses the standard gRPC
// health service, so any health-aware tooling can probe a backend.
//
// The client side is what the gateway registry binds to. Dial checks the
// configured credentials before returning, so a bound backend is always one
// the gateway may talk to.
package remote
