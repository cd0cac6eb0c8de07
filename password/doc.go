// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Digests starting with $2a$, $2b$ or $2y$ are bcrypt digests imported from the earlier
// deployment. [Argon2.Verify] accepts them and [Argon2.NeedsUpgrade] always reports them,
// so the caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum length) and
// concurrency limits are enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other authx package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
