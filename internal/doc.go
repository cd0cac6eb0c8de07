// Package internal contains helpers that are private to authx. The package itself holds
// the numeric code generator used for verification and reset codes.
//
// # Sub-packages
//
//   - audit: async audit event dispatch (Dispatcher + Sink implementations)
//   - config: layered configuration loading for the authx binary
//   - logger: zap logger construction with optional file rotation
//   - queue: bounded worker queue behind notification and audit delivery
//   - server: HTTP server construction and graceful shutdown
//   - stores: AccountStore implementations (memory, Redis, PostgreSQL)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authx API.
//   - Be imported by any package outside the authx module.
package internal
