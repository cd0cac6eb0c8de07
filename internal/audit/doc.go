// Package audit records security-relevant outcomes of Engine operations.
//
// An [Event] names what happened (register, login, verification, reset) together with
// the account and client it concerns. A [Dispatcher] relays events to a [Sink] off the
// request path; sinks exist for zap, line-delimited JSON, channels, and discarding.
//
// The Engine decides which events to emit. This package never filters them and never
// imports authx.
package audit
