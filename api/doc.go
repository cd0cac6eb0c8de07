// Package api mounts the authx operations on a chi router under /api/v1/auth.
//
// Handlers decode JSON or form bodies into the explicit authx request types, call the
// Engine, and answer {success, message} envelopes. The session token travels only in an
// HttpOnly cookie. Business failures answer 400 with the Engine's client message;
// internal failures answer 500 with a generic message, plus the error text in
// development mode.
package api
