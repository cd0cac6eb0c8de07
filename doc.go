// Package authx provides a credential authentication engine: registration with
// email-code verification, password login, signed session tokens, and password reset
// through single-use time-limited codes.
//
// Engine methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authx is the public surface. It exposes [Engine], [Builder], [Config], the request and
// result types of each operation, and the two capabilities the Engine depends on:
// [AccountStore] for persistence and [Notifier] for outbound messages. Concrete stores
// live under internal/stores, notifiers under notify, and the HTTP transport under api
// and middleware.
//
// # Consistency
//
// The Engine holds no mutable per-account state. Uniqueness of email and username, and
// single use of verification and reset codes, are enforced by the AccountStore's atomic
// operations. Notifications are dispatched after the state change is committed and are
// always best-effort.
//
// # Sessions
//
// A session token carries the account id and the account's token epoch. The epoch is
// bumped by a password reset and by [Engine.LogoutAll]; a token whose epoch no longer
// matches is rejected with [ErrTokenRevoked].
package authx
