// Package middleware exposes HTTP middleware adapters over authx.Engine.
//
// # Guards
//
//   - [Guard] reads the session cookie, resolves it through Engine.ResolveSession, and
//     injects the resolved account into the request context.
//   - [RequestMeta] copies the client IP and User-Agent into the context for audit events.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT parse tokens or
// read the account store; all decisions are delegated to Engine.ResolveSession.
package middleware
