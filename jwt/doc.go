// Package jwt issues and verifies the session tokens carried in the auth cookie.
//
// A token embeds the account id (uid), the account's token epoch (av), and an absolute
// expiry. Parse failures are reported through distinct sentinels so callers can tell a
// missing, malformed, forged, expired, or otherwise unacceptable token apart.
package jwt
