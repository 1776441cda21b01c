// Package auth covers the two ways callers prove who they are.
//
// # Client accounts
//
// Native-protocol clients send an account, a password and a privilege
// bitmask with their first request. The bitmask must include Access; the
// Validator then asks the selected backend, or falls back to the single local
// account from configuration when no backend can answer:
//
//	v := auth.NewValidator(auth.LocalAccount{Name: "admin", Password: hash, Privileges: auth.All}, cache, logger)
//	ok := v.Validate(ctx, backend, "admin", "secret", auth.Access|auth.Update)
//
// Local passwords may be stored as bcrypt hashes ("$2a$..."). Positive answers
// are remembered in a ValidationCache for account.cache_ttl.
//
// # Control surface tokens
//
// The control gRPC service accepts HS256 JWTs in the "authorization: Bearer"
// metadata header. UnaryInterceptor and StreamInterceptor verify them and put
// the token subject into the context; the NoAuth variants inject an anonymous
// principal when no secret is configured.
package auth
