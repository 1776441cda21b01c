// Package control exposes the gateway's lifecycle to operators over gRPC.
//
// The service is registered under a configurable name (control.name) and
// uses the JSON codec from grpcjson, so no generated stubs are involved:
//
//	Start, Stop, Pause, Resume, Exit
//	GetConfig, SetConfig
//	ValidateAccount, Status
//	Watch (server stream of lifecycle events)
//
// When control.jwt_secret is set every call must carry an HS256 bearer token;
// otherwise calls run as the anonymous operator. Client wraps the calls for
// the recgate-admin CLI.
package control
